// Package stats считает события движка допуска: кого пропустили сразу,
// кого поставили в очередь, кого продвинули.
//
// Запись статистики best-effort: ошибка записи логируется и не откатывает
// уже зафиксированную операцию.
package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAdmitted   Kind = "admitted"
	KindWaitlisted Kind = "waitlisted"
	KindPromoted   Kind = "promoted"
	KindCheckedIn  Kind = "checked_in"
	KindSkipped    Kind = "skipped"
	KindRemoved    Kind = "removed"
	KindApproved   Kind = "approved"
	KindExpired    Kind = "expired"
)

// Event одно событие по месту назначения
type Event struct {
	Kind          Kind
	ClassroomID   uuid.UUID
	DestinationID uuid.UUID // uuid.Nil для мест без записи в реестре
	At            time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Reader читает накопленные счётчики места
type Reader interface {
	Destination(ctx context.Context, id uuid.UUID) (Counters, error)
}

// Store пишет и читает статистику
type Store interface {
	Recorder
	Reader
}

// Nop ничего не записывает
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
