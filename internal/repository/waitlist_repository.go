package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entryColumns = `id, student_id, classroom_id, destination_id, position, status, created_at, approved_at, updated_at`

type WaitlistRepository struct {
	*base.Repository
}

func NewWaitlistRepository(db base.DBTX) *WaitlistRepository {
	return &WaitlistRepository{Repository: base.NewRepository(db)}
}

func scanEntry(row pgx.Row) (*model.WaitListEntry, error) {
	var e model.WaitListEntry
	err := row.Scan(
		&e.ID,
		&e.StudentID,
		&e.ClassroomID,
		&e.DestinationID,
		&e.Position,
		&e.Status,
		&e.CreatedAt,
		&e.ApprovedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *WaitlistRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*model.WaitListEntry, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.WaitListEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetByID получает запись очереди по ID
func (r *WaitlistRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WaitListEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE id = $1`

	e, err := scanEntry(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry by id: %w", err)
	}
	return e, nil
}

// FindActiveByStudent получает waiting/approved запись ученика в классе
func (r *WaitlistRepository) FindActiveByStudent(ctx context.Context, studentID, classroomID uuid.UUID) (*model.WaitListEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
		WHERE student_id = $1 AND classroom_id = $2 AND status IN ('waiting', 'approved')
	`

	e, err := scanEntry(r.QueryRow(ctx, query, studentID, classroomID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active entry: %w", err)
	}
	return e, nil
}

// CountByStatus считает записи места с указанным статусом
func (r *WaitlistRepository) CountByStatus(ctx context.Context, destinationID uuid.UUID, status model.WaitlistStatus) (int, error) {
	query := `SELECT COUNT(*) FROM waitlist_entries WHERE destination_id = $1 AND status = $2`

	var count int
	if err := r.QueryRow(ctx, query, destinationID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// MaxPosition получает последнюю занятую позицию очереди
func (r *WaitlistRepository) MaxPosition(ctx context.Context, destinationID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(MAX(position), 0)
		FROM waitlist_entries
		WHERE destination_id = $1 AND status IN ('waiting', 'approved')
	`

	var maxPosition int
	if err := r.QueryRow(ctx, query, destinationID).Scan(&maxPosition); err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return maxPosition, nil
}

// FirstWaiting получает первую ожидающую запись
func (r *WaitlistRepository) FirstWaiting(ctx context.Context, destinationID uuid.UUID) (*model.WaitListEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
		WHERE destination_id = $1 AND status = 'waiting'
		ORDER BY position ASC, created_at ASC, id ASC
		LIMIT 1
	`

	e, err := scanEntry(r.QueryRow(ctx, query, destinationID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("first waiting entry: %w", err)
	}
	return e, nil
}

// ListActive получает очередь места
func (r *WaitlistRepository) ListActive(ctx context.Context, destinationID uuid.UUID) ([]*model.WaitListEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
		WHERE destination_id = $1 AND status IN ('waiting', 'approved')
		ORDER BY position ASC, created_at ASC, id ASC
	`

	entries, err := r.queryEntries(ctx, query, destinationID)
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}
	return entries, nil
}

// ListStale получает записи, просидевшие в статусе дольше допустимого
func (r *WaitlistRepository) ListStale(ctx context.Context, status model.WaitlistStatus, before time.Time) ([]*model.WaitListEntry, error) {
	column := "updated_at"
	if status == model.WaitlistStatusApproved {
		column = "approved_at"
	}

	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
		WHERE status = $1 AND ` + column + ` < $2
		ORDER BY destination_id, position ASC
	`

	entries, err := r.queryEntries(ctx, query, status, before)
	if err != nil {
		return nil, fmt.Errorf("list stale entries: %w", err)
	}
	return entries, nil
}

// Create ставит запись в очередь
func (r *WaitlistRepository) Create(ctx context.Context, e *model.WaitListEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
		INSERT INTO waitlist_entries (id, student_id, classroom_id, destination_id, position, status, created_at, approved_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.DB().Exec(
		ctx, query,
		e.ID,
		e.StudentID,
		e.ClassroomID,
		e.DestinationID,
		e.Position,
		e.Status,
		e.CreatedAt,
		e.ApprovedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create entry: %w", err)
	}

	return nil
}

// Update сохраняет позицию, статус и время одобрения
func (r *WaitlistRepository) Update(ctx context.Context, e *model.WaitListEntry) error {
	query := `
		UPDATE waitlist_entries
		SET position = $1, status = $2, approved_at = $3, updated_at = $4
		WHERE id = $5
	`

	affected, err := r.ExecAffected(ctx, query, e.Position, e.Status, e.ApprovedAt, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("entry not found")
	}

	return nil
}

// Compact перенумеровывает активные записи места в 1..N одним запросом
func (r *WaitlistRepository) Compact(ctx context.Context, destinationID uuid.UUID) error {
	query := `
		UPDATE waitlist_entries w
		SET position = ranked.rn
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position ASC, created_at ASC, id ASC) AS rn
			FROM waitlist_entries
			WHERE destination_id = $1 AND status IN ('waiting', 'approved')
		) ranked
		WHERE w.id = ranked.id AND w.position <> ranked.rn
	`

	if _, err := r.DB().Exec(ctx, query, destinationID); err != nil {
		return fmt.Errorf("compact waitlist: %w", err)
	}

	return nil
}
