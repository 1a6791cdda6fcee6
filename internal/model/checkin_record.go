package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckInRecord интервал отсутствия ученика: открыт, пока CheckedInAt == nil
type CheckInRecord struct {
	ID             uuid.UUID  `json:"id"`
	StudentID      uuid.UUID  `json:"student_id"`
	ClassroomID    uuid.UUID  `json:"classroom_id"`
	Destination    string     `json:"destination"` // денормализованное имя, может быть пустым при ручной отметке
	CheckedOutAt   time.Time  `json:"checked_out_at"`
	CheckedInAt    *time.Time `json:"checked_in_at"`
	ManualOverride bool       `json:"manual_override"` // только для аудита
}

// IsOpen проверяет, что ученик ещё не вернулся
func (r *CheckInRecord) IsOpen() bool {
	return r.CheckedInAt == nil
}

// ScanAction действие при сканировании QR-кода
type ScanAction string

const (
	ScanActionOut ScanAction = "out"
	ScanActionIn  ScanAction = "in"
)

// ParseScanAction разбирает действие сканирования; неизвестные значения - ошибка
func ParseScanAction(s string) (ScanAction, bool) {
	switch ScanAction(s) {
	case ScanActionOut:
		return ScanActionOut, true
	case ScanActionIn:
		return ScanActionIn, true
	}
	return "", false
}
