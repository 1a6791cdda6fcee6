package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocking_CheckoutLocksStudentThenDestination(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	occupant := f.student()

	f.locks.reset()
	f.out(t, occupant, "Bathroom")
	assert.Equal(t, []string{
		repository.StudentLockKey(occupant),
		repository.DestinationLockKey(bathroom.ID),
	}, f.locks.taken())

	waiting := f.student()
	f.out(t, waiting, "Bathroom")

	// возвращение освобождает слот и продвигает очередь под теми же блокировками
	f.locks.reset()
	f.in(t, occupant)
	assert.Equal(t, []string{
		repository.StudentLockKey(occupant),
		repository.DestinationLockKey(bathroom.ID),
	}, f.locks.taken())
	waitingEntry := f.entryOf(t, waiting)
	require.True(t, waitingEntry.IsApproved())

	f.locks.reset()
	res := f.out(t, waiting, "Bathroom")
	require.Equal(t, OutcomeAdmitted, res.Outcome)
	assert.Equal(t, []string{
		repository.StudentLockKey(waiting),
		repository.DestinationLockKey(bathroom.ID),
	}, f.locks.taken())
}

func TestLocking_AdminActionsLockOnlyDestination(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	_, waiting := f.fullQueue(t, bathroom, 2)

	entry := f.entryOf(t, waiting[0])
	f.locks.reset()
	_, err := f.waitlist.Skip(f.ctx, f.classroom, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{repository.DestinationLockKey(bathroom.ID)}, f.locks.taken())

	entry = f.entryOf(t, waiting[1])
	f.locks.reset()
	_, err = f.waitlist.Remove(f.ctx, f.classroom, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{repository.DestinationLockKey(bathroom.ID)}, f.locks.taken())

	two := 2
	f.locks.reset()
	_, err = f.destinations.SetCapacity(f.ctx, bathroom.ID, &two)
	require.NoError(t, err)
	assert.Equal(t, []string{
		repository.ClassroomLockKey(f.classroom),
		repository.DestinationLockKey(bathroom.ID),
	}, f.locks.taken())
}

func TestLocking_DestinationLockBlocksOnlyItsQueue(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	bathroom := f.destination(t, "Bathroom", 1)
	f.destination(t, "Library", 0)

	release := f.holdLock(t, repository.DestinationLockKey(bathroom.ID))

	// другое место не ждёт чужую блокировку
	library := make(chan error, 1)
	go func() {
		_, err := f.checkout.AttemptCheckout(f.ctx, CheckoutRequest{StudentID: f.student(), ClassroomID: f.classroom, Destination: "Library"})
		library <- err
	}()
	select {
	case err := <-library:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkout to Library waited for Bathroom lock")
	}

	blocked := make(chan *AdmissionResult, 1)
	go func() {
		res, err := f.checkout.AttemptCheckout(f.ctx, CheckoutRequest{StudentID: f.student(), ClassroomID: f.classroom, Destination: "Bathroom"})
		assert.NoError(t, err)
		blocked <- res
	}()
	select {
	case <-blocked:
		t.Fatal("checkout to Bathroom ignored the destination lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case res := <-blocked:
		require.NotNil(t, res)
		assert.Equal(t, OutcomeAdmitted, res.Outcome)
	case <-time.After(time.Second):
		t.Fatal("checkout to Bathroom did not finish after release")
	}
}

func TestLocking_StudentLockSerializesOwnRequests(t *testing.T) {
	f := newFixture(t, ExpiryPolicy{})
	f.destination(t, "Library", 0)
	student := f.student()

	release := f.holdLock(t, repository.StudentLockKey(student))

	ctx, cancel := context.WithTimeout(f.ctx, 50*time.Millisecond)
	defer cancel()
	_, err := f.checkout.AttemptCheckout(ctx, CheckoutRequest{StudentID: student, ClassroomID: f.classroom, Destination: "Library"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// другой ученик проходит
	f.out(t, f.student(), "Library")

	release()
	res := f.out(t, student, "Library")
	assert.Equal(t, OutcomeAdmitted, res.Outcome)
	assert.Equal(t, 2, f.openRecords("Library"))
}
