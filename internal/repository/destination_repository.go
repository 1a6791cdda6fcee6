package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const destinationColumns = `id, classroom_id, name, capacity, is_active, display_order, created_at, updated_at`

type DestinationRepository struct {
	*base.Repository
}

func NewDestinationRepository(db base.DBTX) *DestinationRepository {
	return &DestinationRepository{Repository: base.NewRepository(db)}
}

func scanDestination(row pgx.Row) (*model.Destination, error) {
	var d model.Destination
	err := row.Scan(
		&d.ID,
		&d.ClassroomID,
		&d.Name,
		&d.Capacity,
		&d.IsActive,
		&d.DisplayOrder,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByID получает место по ID
func (r *DestinationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Destination, error) {
	query := `SELECT ` + destinationColumns + ` FROM destinations WHERE id = $1`

	d, err := scanDestination(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get destination by id: %w", err)
	}
	return d, nil
}

// GetByName получает активное место класса по имени
func (r *DestinationRepository) GetByName(ctx context.Context, classroomID uuid.UUID, name string) (*model.Destination, error) {
	query := `
		SELECT ` + destinationColumns + `
		FROM destinations
		WHERE classroom_id = $1 AND lower(name) = lower($2) AND is_active
	`

	d, err := scanDestination(r.QueryRow(ctx, query, classroomID, name))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get destination by name: %w", err)
	}
	return d, nil
}

// ListByClassroom получает все места класса в порядке отображения
func (r *DestinationRepository) ListByClassroom(ctx context.Context, classroomID uuid.UUID) ([]*model.Destination, error) {
	query := `
		SELECT ` + destinationColumns + `
		FROM destinations
		WHERE classroom_id = $1
		ORDER BY display_order ASC, name ASC
	`

	rows, err := r.Query(ctx, query, classroomID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var destinations []*model.Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		destinations = append(destinations, d)
	}

	return destinations, rows.Err()
}

// FindCapacityLimited ищет другое активное место класса с ограничением
func (r *DestinationRepository) FindCapacityLimited(ctx context.Context, classroomID, excludeID uuid.UUID) (*model.Destination, error) {
	query := `
		SELECT ` + destinationColumns + `
		FROM destinations
		WHERE classroom_id = $1 AND id <> $2 AND is_active AND capacity IS NOT NULL
		LIMIT 1
	`

	d, err := scanDestination(r.QueryRow(ctx, query, classroomID, excludeID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find capacity limited destination: %w", err)
	}
	return d, nil
}

// Create создаёт место
func (r *DestinationRepository) Create(ctx context.Context, d *model.Destination) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	query := `
		INSERT INTO destinations (id, classroom_id, name, capacity, is_active, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.DB().Exec(
		ctx, query,
		d.ID,
		d.ClassroomID,
		d.Name,
		d.Capacity,
		d.IsActive,
		d.DisplayOrder,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create destination: %w", err)
	}

	return nil
}

// Update сохраняет имя, вместимость, активность и порядок места
func (r *DestinationRepository) Update(ctx context.Context, d *model.Destination) error {
	query := `
		UPDATE destinations
		SET name = $1, capacity = $2, is_active = $3, display_order = $4, updated_at = $5
		WHERE id = $6
	`

	affected, err := r.ExecAffected(ctx, query, d.Name, d.Capacity, d.IsActive, d.DisplayOrder, d.UpdatedAt, d.ID)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update destination: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("destination not found")
	}

	return nil
}

// Delete удаляет место
func (r *DestinationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM destinations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("destination not found")
	}

	return nil
}
