package model

import (
	"time"

	"github.com/google/uuid"
)

// Classroom класс учителя; состав учеников ведётся во внешнем модуле
type Classroom struct {
	ID        uuid.UUID `json:"id"`
	TeacherID uuid.UUID `json:"teacher_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
