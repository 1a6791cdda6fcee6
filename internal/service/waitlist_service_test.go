package service

import (
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitlist_SkipMovesToTail(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 3)
	s3, s4, s5 := waiting[0], waiting[1], waiting[2]

	entry, err := f.waitlist.Skip(f.ctx, f.classroom, f.entryOf(t, s3).ID)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Position)
	assert.Equal(t, model.WaitlistStatusWaiting, entry.Status)

	assert.Equal(t, 1, f.entryOf(t, s4).Position)
	assert.Equal(t, 2, f.entryOf(t, s5).Position)
	assert.Equal(t, 3, f.entryOf(t, s3).Position)
	requireDense(t, f.active(bathroom.ID))
}

func TestWaitlist_RemoveCompacts(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 3)

	entry, err := f.waitlist.Remove(f.ctx, f.classroom, f.entryOf(t, waiting[1]).ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusCancelled, entry.Status)

	active := f.active(bathroom.ID)
	require.Len(t, active, 2)
	assert.Equal(t, waiting[0], active[0].StudentID)
	assert.Equal(t, waiting[2], active[1].StudentID)
	requireDense(t, active)
}

func TestWaitlist_SkipApprovedRefillsSlot(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	occupant, waiting := f.fullQueue(t, bathroom, 2)
	f.in(t, occupant)
	require.Equal(t, model.WaitlistStatusApproved, f.entryOf(t, waiting[0]).Status)

	entry, err := f.waitlist.Skip(f.ctx, f.classroom, f.entryOf(t, waiting[0]).ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusWaiting, entry.Status)
	assert.Nil(t, entry.ApprovedAt)
	assert.Equal(t, 2, entry.Position)

	next := f.entryOf(t, waiting[1])
	assert.Equal(t, model.WaitlistStatusApproved, next.Status)
	assert.Equal(t, 1, next.Position)
	assert.Equal(t, 1, f.occupancy(bathroom))
}

func TestWaitlist_RemoveApprovedRefillsSlot(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	occupant, waiting := f.fullQueue(t, bathroom, 2)
	f.in(t, occupant)

	_, err := f.waitlist.Remove(f.ctx, f.classroom, f.entryOf(t, waiting[0]).ID)
	require.NoError(t, err)

	next := f.entryOf(t, waiting[1])
	assert.Equal(t, model.WaitlistStatusApproved, next.Status)
	assert.Equal(t, 1, next.Position)
	assert.Equal(t, int64(2), f.recorder.ByDestination(bathroom.ID)[stats.KindPromoted])
}

func TestWaitlist_ApproveIgnoresPositionAndCapacity(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 3)

	entry, err := f.waitlist.Approve(f.ctx, f.classroom, f.entryOf(t, waiting[2]).ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusApproved, entry.Status)
	assert.NotNil(t, entry.ApprovedAt)
	assert.Equal(t, 3, entry.Position)

	assert.Equal(t, model.WaitlistStatusWaiting, f.entryOf(t, waiting[0]).Status)
	assert.Equal(t, 2, f.occupancy(bathroom))

	// одобренный выходит без проверки вместимости
	res := f.out(t, waiting[2], "Bathroom")
	assert.Equal(t, OutcomeAdmitted, res.Outcome)
	requireDense(t, f.active(bathroom.ID))
}

func TestWaitlist_Apply(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 2)
	first := f.entryOf(t, waiting[0]).ID

	_, err := f.waitlist.Apply(f.ctx, f.classroom, first, model.WaitlistAction("promote"))
	assert.ErrorIs(t, err, ErrInvalidAction)

	entry, err := f.waitlist.Apply(f.ctx, f.classroom, first, model.WaitlistActionSkip)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Position)

	entry, err = f.waitlist.Apply(f.ctx, f.classroom, first, model.WaitlistActionApprove)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusApproved, entry.Status)

	entry, err = f.waitlist.Apply(f.ctx, f.classroom, first, model.WaitlistActionRemove)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusCancelled, entry.Status)
}

func TestWaitlist_IllegalTransitions(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	occupant, waiting := f.fullQueue(t, bathroom, 2)
	f.in(t, occupant)

	approved := f.entryOf(t, waiting[0]).ID
	_, err := f.waitlist.Approve(f.ctx, f.classroom, approved)
	assert.ErrorIs(t, err, ErrInvalidAction)

	removed := f.entryOf(t, waiting[1]).ID
	_, err = f.waitlist.Remove(f.ctx, f.classroom, removed)
	require.NoError(t, err)

	for _, action := range []model.WaitlistAction{model.WaitlistActionSkip, model.WaitlistActionRemove, model.WaitlistActionApprove} {
		_, err = f.waitlist.Apply(f.ctx, f.classroom, removed, action)
		assert.ErrorIs(t, err, ErrInvalidAction, "action %s", action)
	}
}

func TestWaitlist_EntryOfAnotherClassroom(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 1)

	_, err := f.waitlist.Skip(f.ctx, uuid.New(), f.entryOf(t, waiting[0]).ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = f.waitlist.Remove(f.ctx, f.classroom, uuid.New())
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = f.waitlist.Approve(f.ctx, f.classroom, uuid.Nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWaitlist_QueueOrder(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 3)

	_, err := f.waitlist.Skip(f.ctx, f.classroom, f.entryOf(t, waiting[1]).ID)
	require.NoError(t, err)

	queue, err := f.waitlist.Queue(f.ctx, bathroom.ID)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, waiting[0], queue[0].StudentID)
	assert.Equal(t, waiting[2], queue[1].StudentID)
	assert.Equal(t, waiting[1], queue[2].StudentID)
}

func TestWaitlist_ExpireStaleDisabledByDefault(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	f.fullQueue(t, bathroom, 2)

	f.clock.Advance(24 * time.Hour)
	n, err := f.waitlist.ExpireStale(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.active(bathroom.ID), 2)
}

func TestWaitlist_ExpireStaleWaiting(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{WaitingTTL: 10 * time.Minute})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 2)

	f.clock.Advance(5 * time.Minute)
	late := f.student()
	f.out(t, late, "Bathroom")

	f.clock.Advance(6 * time.Minute)
	n, err := f.waitlist.ExpireStale(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, model.WaitlistStatusCancelled, f.entryOf(t, waiting[0]).Status)
	assert.Equal(t, model.WaitlistStatusCancelled, f.entryOf(t, waiting[1]).Status)

	active := f.active(bathroom.ID)
	require.Len(t, active, 1)
	assert.Equal(t, late, active[0].StudentID)
	requireDense(t, active)
	assert.Equal(t, int64(2), f.recorder.Total()[stats.KindExpired])
}

func TestWaitlist_ExpireStaleApprovedRefillsSlot(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{ApprovedTTL: 3 * time.Minute})
	bathroom := f.destination(t, "Bathroom", 1)
	occupant, waiting := f.fullQueue(t, bathroom, 2)
	f.in(t, occupant)

	f.clock.Advance(4 * time.Minute)
	n, err := f.waitlist.ExpireStale(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.WaitlistStatusCancelled, f.entryOf(t, waiting[0]).Status)
	next := f.entryOf(t, waiting[1])
	assert.Equal(t, model.WaitlistStatusApproved, next.Status)
	assert.Equal(t, 1, next.Position)
	assert.Equal(t, 1, f.occupancy(bathroom))
}

func TestWaitlist_ExpireStaleContinuesPastFailedEntry(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{WaitingTTL: 10 * time.Minute})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 1)

	// второй класс со своим ограниченным местом
	otherClassroom := uuid.New()
	one := 1
	nurse, err := f.destinations.Create(f.ctx, otherClassroom, "Nurse", &one)
	require.NoError(t, err)
	nurseQueue := make([]uuid.UUID, 2)
	for i := range nurseQueue {
		nurseQueue[i] = uuid.New()
		f.enrollment.add(nurseQueue[i], otherClassroom)
		_, err := f.checkout.AttemptCheckout(f.ctx, CheckoutRequest{StudentID: nurseQueue[i], ClassroomID: otherClassroom, Destination: "Nurse"})
		require.NoError(t, err)
	}

	f.locks.failOn(repository.DestinationLockKey(bathroom.ID), errors.New("connection reset"))

	f.clock.Advance(11 * time.Minute)
	n, err := f.waitlist.ExpireStale(f.ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.WaitlistStatusWaiting, f.entryOf(t, waiting[0]).Status)
	assert.Equal(t, model.WaitlistStatusCancelled, f.entryOf(t, nurseQueue[1]).Status)
	assert.Empty(t, f.active(nurse.ID))
}
