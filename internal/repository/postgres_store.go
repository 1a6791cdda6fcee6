package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore выполняет составные операции в транзакциях pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithinTx открывает транзакцию, передаёт её в fn и коммитит при успехе
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, newPostgresTx(pgTx)); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

type postgresTx struct {
	tx           pgx.Tx
	destinations *DestinationRepository
	records      *CheckInRepository
	waitlist     *WaitlistRepository
}

func newPostgresTx(tx pgx.Tx) *postgresTx {
	return &postgresTx{
		tx:           tx,
		destinations: NewDestinationRepository(tx),
		records:      NewCheckInRepository(tx),
		waitlist:     NewWaitlistRepository(tx),
	}
}

// Lock берёт транзакционную advisory-блокировку; снимается при commit/rollback
func (t *postgresTx) Lock(ctx context.Context, key string) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	return nil
}

func (t *postgresTx) Destinations() DestinationStore { return t.destinations }
func (t *postgresTx) Records() RecordStore           { return t.records }
func (t *postgresTx) Waitlist() WaitlistStore        { return t.waitlist }
