package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/Freeeeeet/hallpass/internal/repository/memory"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type enrollment struct {
	mu       sync.Mutex
	enrolled map[uuid.UUID]map[uuid.UUID]bool
}

func (e *enrollment) add(studentID, classroomID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enrolled[classroomID] == nil {
		e.enrolled[classroomID] = make(map[uuid.UUID]bool)
	}
	e.enrolled[classroomID][studentID] = true
}

func (e *enrollment) IsEnrolled(_ context.Context, studentID, classroomID uuid.UUID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enrolled[classroomID][studentID], nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// lockLog пропускает транзакции в хранилище и запоминает ключи Lock по порядку
type lockLog struct {
	repository.Store

	mu   sync.Mutex
	keys []string
	// fail ключи, Lock которых возвращает ошибку
	fail map[string]error
}

func (l *lockLog) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return l.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, loggedTx{Tx: tx, log: l})
	})
}

func (l *lockLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = nil
}

func (l *lockLog) taken() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

type loggedTx struct {
	repository.Tx
	log *lockLog
}

func (l *lockLog) failOn(key string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail == nil {
		l.fail = make(map[string]error)
	}
	l.fail[key] = err
}

func (t loggedTx) Lock(ctx context.Context, key string) error {
	t.log.mu.Lock()
	t.log.keys = append(t.log.keys, key)
	err := t.log.fail[key]
	t.log.mu.Unlock()
	if err != nil {
		return err
	}
	return t.Tx.Lock(ctx, key)
}

type fixture struct {
	ctx          context.Context
	store        *memory.Store
	locks        *lockLog
	recorder     *stats.MemoryRecorder
	clock        *clock
	enrollment   *enrollment
	waitlist     *WaitlistService
	checkout     *CheckoutService
	destinations *DestinationService
	classroom    uuid.UUID
}

func newFixture(t *testing.T, expiry ExpiryPolicy) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	f := &fixture{
		ctx:        context.Background(),
		store:      memory.NewStore(),
		recorder:   stats.NewMemoryRecorder(),
		clock:      &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		enrollment: &enrollment{enrolled: make(map[uuid.UUID]map[uuid.UUID]bool)},
		classroom:  uuid.New(),
	}
	f.locks = &lockLog{Store: f.store}

	f.waitlist = NewWaitlistService(f.locks, f.recorder, expiry, logger)
	f.waitlist.now = f.clock.Now
	f.checkout = NewCheckoutService(f.locks, f.enrollment, f.waitlist, f.recorder, logger)
	f.checkout.now = f.clock.Now
	f.destinations = NewDestinationService(f.locks, f.waitlist, logger)
	f.destinations.now = f.clock.Now

	return f
}

func (f *fixture) student() uuid.UUID {
	id := uuid.New()
	f.enrollment.add(id, f.classroom)
	return id
}

func (f *fixture) destination(t *testing.T, name string, capacity int) *model.Destination {
	t.Helper()
	var c *int
	if capacity > 0 {
		c = &capacity
	}
	dest, err := f.destinations.Create(f.ctx, f.classroom, name, c)
	require.NoError(t, err)
	return dest
}

func (f *fixture) out(t *testing.T, studentID uuid.UUID, destination string) *AdmissionResult {
	t.Helper()
	res, err := f.checkout.AttemptCheckout(f.ctx, CheckoutRequest{
		StudentID:   studentID,
		ClassroomID: f.classroom,
		Destination: destination,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) in(t *testing.T, studentID uuid.UUID) {
	t.Helper()
	_, err := f.checkout.CompleteCheckIn(f.ctx, studentID, f.classroom, false)
	require.NoError(t, err)
}

// fullQueue занимает единственный слот места и ставит в очередь n учеников
func (f *fixture) fullQueue(t *testing.T, dest *model.Destination, n int) (occupant uuid.UUID, waiting []uuid.UUID) {
	t.Helper()
	occupant = f.student()
	require.Equal(t, OutcomeAdmitted, f.out(t, occupant, dest.Name).Outcome)

	for i := 0; i < n; i++ {
		s := f.student()
		res := f.out(t, s, dest.Name)
		require.Equal(t, OutcomeWaitlisted, res.Outcome)
		require.Equal(t, i+1, res.Position)
		waiting = append(waiting, s)
	}
	return occupant, waiting
}

// active активные записи места по позициям
func (f *fixture) active(destinationID uuid.UUID) []model.WaitListEntry {
	var out []model.WaitListEntry
	for _, e := range f.store.Entries() {
		if e.DestinationID == destinationID && !e.Status.IsTerminal() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (f *fixture) entryOf(t *testing.T, studentID uuid.UUID) model.WaitListEntry {
	t.Helper()
	var found []model.WaitListEntry
	for _, e := range f.store.Entries() {
		if e.StudentID == studentID {
			found = append(found, e)
		}
	}
	require.Len(t, found, 1)
	return found[0]
}

func (f *fixture) openRecords(destination string) int {
	n := 0
	for _, r := range f.store.Records() {
		if r.IsOpen() && r.Destination == destination {
			n++
		}
	}
	return n
}

func (f *fixture) occupancy(dest *model.Destination) int {
	n := f.openRecords(dest.Name)
	for _, e := range f.active(dest.ID) {
		if e.IsApproved() {
			n++
		}
	}
	return n
}

// holdLock держит ключ в отдельной транзакции до вызова release
func (f *fixture) holdLock(t *testing.T, key string) (release func()) {
	t.Helper()

	acquired := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		err := f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.Lock(ctx, key); err != nil {
				return err
			}
			close(acquired)
			<-done
			return nil
		})
		assert.NoError(t, err)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("lock %s was not acquired", key)
	}

	return func() {
		close(done)
		<-finished
	}
}

func requireDense(t *testing.T, entries []model.WaitListEntry) {
	t.Helper()
	for i, e := range entries {
		require.Equal(t, i+1, e.Position, "entry %s", e.ID)
	}
}
