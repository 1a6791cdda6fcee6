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

const recordColumns = `id, student_id, classroom_id, destination, checked_out_at, checked_in_at, manual_override`

type CheckInRepository struct {
	*base.Repository
}

func NewCheckInRepository(db base.DBTX) *CheckInRepository {
	return &CheckInRepository{Repository: base.NewRepository(db)}
}

func scanRecord(row pgx.Row) (*model.CheckInRecord, error) {
	var rec model.CheckInRecord
	err := row.Scan(
		&rec.ID,
		&rec.StudentID,
		&rec.ClassroomID,
		&rec.Destination,
		&rec.CheckedOutAt,
		&rec.CheckedInAt,
		&rec.ManualOverride,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindOpenByStudent получает открытую отметку ученика
func (r *CheckInRepository) FindOpenByStudent(ctx context.Context, studentID uuid.UUID) (*model.CheckInRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM checkin_records
		WHERE student_id = $1 AND checked_in_at IS NULL
	`

	rec, err := scanRecord(r.QueryRow(ctx, query, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open record: %w", err)
	}
	return rec, nil
}

// CountOpenByDestination считает учеников, которые сейчас находятся в месте
func (r *CheckInRepository) CountOpenByDestination(ctx context.Context, classroomID uuid.UUID, destination string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM checkin_records
		WHERE classroom_id = $1 AND lower(destination) = lower($2) AND checked_in_at IS NULL
	`

	var count int
	if err := r.QueryRow(ctx, query, classroomID, destination).Scan(&count); err != nil {
		return 0, fmt.Errorf("count open records: %w", err)
	}
	return count, nil
}

// ListOpenByClassroom получает всех, кто сейчас вне класса
func (r *CheckInRepository) ListOpenByClassroom(ctx context.Context, classroomID uuid.UUID) ([]*model.CheckInRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM checkin_records
		WHERE classroom_id = $1 AND checked_in_at IS NULL
		ORDER BY checked_out_at ASC
	`

	rows, err := r.Query(ctx, query, classroomID)
	if err != nil {
		return nil, fmt.Errorf("list open records: %w", err)
	}
	defer rows.Close()

	var records []*model.CheckInRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Create открывает отметку
func (r *CheckInRepository) Create(ctx context.Context, rec *model.CheckInRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO checkin_records (id, student_id, classroom_id, destination, checked_out_at, checked_in_at, manual_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.DB().Exec(
		ctx, query,
		rec.ID,
		rec.StudentID,
		rec.ClassroomID,
		rec.Destination,
		rec.CheckedOutAt,
		rec.CheckedInAt,
		rec.ManualOverride,
	)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create record: %w", err)
	}

	return nil
}

// Close закрывает отметку; флаг ручной отметки только накапливается
func (r *CheckInRepository) Close(ctx context.Context, id uuid.UUID, checkedInAt time.Time, manualOverride bool) error {
	query := `
		UPDATE checkin_records
		SET checked_in_at = $1, manual_override = manual_override OR $2
		WHERE id = $3 AND checked_in_at IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, checkedInAt, manualOverride, id)
	if err != nil {
		return fmt.Errorf("close record: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("open record not found")
	}

	return nil
}
