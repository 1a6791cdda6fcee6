package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/hallpass/internal/app"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type pgFixture struct {
	ctx          context.Context
	pool         *pgxpool.Pool
	store        *repository.PostgresStore
	enrollment   *enrollment
	waitlist     *WaitlistService
	checkout     *CheckoutService
	destinations *DestinationService
	classroom    uuid.UUID
}

// Движок на настоящем Postgres: TEST_DB_DSN=postgres://... go test ./internal/service/
func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := app.NewMigrator(pool, "../../migrations", logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Run(ctx))
	require.NoError(t, migrator.Close())

	teacher := &model.User{TelegramID: time.Now().UnixNano(), FirstName: "Teacher", IsTeacher: true}
	require.NoError(t, repository.NewUserRepository(pool).Create(ctx, teacher))

	classroomID := uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO classrooms (id, teacher_id, name) VALUES ($1, $2, $3)`, classroomID, teacher.ID, "7B")
	require.NoError(t, err)

	f := &pgFixture{
		ctx:        ctx,
		pool:       pool,
		store:      repository.NewPostgresStore(pool),
		enrollment: &enrollment{enrolled: make(map[uuid.UUID]map[uuid.UUID]bool)},
		classroom:  classroomID,
	}
	recorder := stats.NewMemoryRecorder()
	f.waitlist = NewWaitlistService(f.store, recorder, ExpiryPolicy{}, logger)
	f.checkout = NewCheckoutService(f.store, f.enrollment, f.waitlist, recorder, logger)
	f.destinations = NewDestinationService(f.store, f.waitlist, logger)
	return f
}

func (f *pgFixture) students(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
		f.enrollment.add(out[i], f.classroom)
	}
	return out
}

func TestPostgres_ConcurrentCheckoutAndCheckIn(t *testing.T) {
	f := newPgFixture(t)

	two := 2
	bathroom, err := f.destinations.Create(f.ctx, f.classroom, "Bathroom", &two)
	require.NoError(t, err)

	const n = 12
	students := f.students(n)
	results := make([]*AdmissionResult, n)

	var wg sync.WaitGroup
	for i, s := range students {
		wg.Add(1)
		go func(i int, s uuid.UUID) {
			defer wg.Done()
			res, err := f.checkout.AttemptCheckout(f.ctx, CheckoutRequest{StudentID: s, ClassroomID: f.classroom, Destination: "Bathroom"})
			assert.NoError(t, err)
			results[i] = res
		}(i, s)
	}
	wg.Wait()

	var out []uuid.UUID
	for i, res := range results {
		require.NotNil(t, res)
		if res.Outcome == OutcomeAdmitted {
			out = append(out, students[i])
		}
	}
	require.Len(t, out, 2)

	queue, err := f.waitlist.Queue(f.ctx, bathroom.ID)
	require.NoError(t, err)
	require.Len(t, queue, n-2)
	for i, e := range queue {
		assert.Equal(t, i+1, e.Position)
	}

	for _, s := range out {
		wg.Add(1)
		go func(s uuid.UUID) {
			defer wg.Done()
			_, err := f.checkout.CompleteCheckIn(f.ctx, s, f.classroom, false)
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	queue, err = f.waitlist.Queue(f.ctx, bathroom.ID)
	require.NoError(t, err)
	approved := 0
	for i, e := range queue {
		assert.Equal(t, i+1, e.Position)
		if e.IsApproved() {
			approved++
			assert.LessOrEqual(t, e.Position, 2)
		}
	}
	assert.Equal(t, 2, approved)

	open, err := f.checkout.ListOut(f.ctx, f.classroom)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPostgres_DestinationLockDoesNotBlockOtherDestination(t *testing.T) {
	f := newPgFixture(t)

	one := 1
	bathroom, err := f.destinations.Create(f.ctx, f.classroom, "Bathroom", &one)
	require.NoError(t, err)
	_, err = f.destinations.Create(f.ctx, f.classroom, "Library", nil)
	require.NoError(t, err)

	acquired := make(chan struct{})
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		defer close(held)
		_ = f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.Lock(ctx, repository.DestinationLockKey(bathroom.ID)); err != nil {
				return err
			}
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	students := f.students(2)

	ctx, cancel := context.WithTimeout(f.ctx, 2*time.Second)
	defer cancel()
	res, err := f.checkout.AttemptCheckout(ctx, CheckoutRequest{StudentID: students[0], ClassroomID: f.classroom, Destination: "Library"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, res.Outcome)

	short, cancelShort := context.WithTimeout(f.ctx, 100*time.Millisecond)
	defer cancelShort()
	_, err = f.checkout.AttemptCheckout(short, CheckoutRequest{StudentID: students[1], ClassroomID: f.classroom, Destination: "Bathroom"})
	require.Error(t, err)

	close(release)
	<-held

	res, err = f.checkout.AttemptCheckout(f.ctx, CheckoutRequest{StudentID: students[1], ClassroomID: f.classroom, Destination: "Bathroom"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, res.Outcome)
}
