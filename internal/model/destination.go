package model

import (
	"time"

	"github.com/google/uuid"
)

// Destination место, куда ученик может выйти из класса (туалет, медпункт, библиотека)
type Destination struct {
	ID           uuid.UUID `json:"id"`
	ClassroomID  uuid.UUID `json:"classroom_id"`
	Name         string    `json:"name"`
	Capacity     *int      `json:"capacity"` // nil = без ограничения
	IsActive     bool      `json:"is_active"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasCapacity сообщает, ограничена ли вместимость места
func (d *Destination) HasCapacity() bool {
	return d.Capacity != nil
}

// NormalizeCapacity приводит ввод к хранимому виду: nil, 0 и отрицательные
// значения означают "без ограничения".
func NormalizeCapacity(capacity *int) *int {
	if capacity == nil || *capacity <= 0 {
		return nil
	}
	c := *capacity
	return &c
}
