package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ClassroomRepository читает классы и состав учеников.
// Сам состав ведёт модуль ростера, здесь только чтение.
type ClassroomRepository struct {
	*base.Repository
}

func NewClassroomRepository(db base.DBTX) *ClassroomRepository {
	return &ClassroomRepository{Repository: base.NewRepository(db)}
}

func scanClassroom(row pgx.Row) (*model.Classroom, error) {
	var c model.Classroom
	if err := row.Scan(&c.ID, &c.TeacherID, &c.Name, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID получает класс по ID
func (r *ClassroomRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Classroom, error) {
	query := `SELECT id, teacher_id, name, created_at FROM classrooms WHERE id = $1`

	c, err := scanClassroom(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get classroom: %w", err)
	}
	return c, nil
}

// IsEnrolled проверяет, что ученик числится в классе
func (r *ClassroomRepository) IsEnrolled(ctx context.Context, studentID, classroomID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE student_id = $1 AND classroom_id = $2
		)
	`

	var enrolled bool
	if err := r.QueryRow(ctx, query, studentID, classroomID).Scan(&enrolled); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// ListByStudent получает классы ученика
func (r *ClassroomRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Classroom, error) {
	query := `
		SELECT c.id, c.teacher_id, c.name, c.created_at
		FROM classrooms c
		JOIN enrollments e ON e.classroom_id = c.id
		WHERE e.student_id = $1
		ORDER BY c.name
	`
	return r.list(ctx, query, studentID)
}

// ListByTeacher получает классы учителя
func (r *ClassroomRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]*model.Classroom, error) {
	query := `
		SELECT id, teacher_id, name, created_at
		FROM classrooms
		WHERE teacher_id = $1
		ORDER BY name
	`
	return r.list(ctx, query, teacherID)
}

func (r *ClassroomRepository) list(ctx context.Context, query string, id uuid.UUID) ([]*model.Classroom, error) {
	rows, err := r.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	defer rows.Close()

	var classrooms []*model.Classroom
	for rows.Next() {
		c, err := scanClassroom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classroom: %w", err)
		}
		classrooms = append(classrooms, c)
	}

	return classrooms, rows.Err()
}
