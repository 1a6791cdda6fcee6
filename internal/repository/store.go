package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/google/uuid"
)

// ErrDuplicate нарушение уникального индекса (одна открытая отметка на ученика,
// одна активная запись очереди на ученика в классе, уникальное имя места)
var ErrDuplicate = errors.New("duplicate record")

// Store выдаёт транзакции, в которых выполняются составные операции движка.
// Все изменения внутри fn фиксируются вместе или не фиксируются вовсе.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx набор хранилищ, привязанных к одной транзакции
type Tx interface {
	// Lock блокирует ключ до конца транзакции
	Lock(ctx context.Context, key string) error

	Destinations() DestinationStore
	Records() RecordStore
	Waitlist() WaitlistStore
}

// Ключи блокировок
func DestinationLockKey(id uuid.UUID) string { return "destination:" + id.String() }
func StudentLockKey(id uuid.UUID) string     { return "student:" + id.String() }
func ClassroomLockKey(id uuid.UUID) string   { return "classroom:" + id.String() }

// Методы Get*/Find* возвращают nil, nil если запись не найдена.

type DestinationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Destination, error)
	// GetByName ищет активное место класса по имени без учёта регистра
	GetByName(ctx context.Context, classroomID uuid.UUID, name string) (*model.Destination, error)
	ListByClassroom(ctx context.Context, classroomID uuid.UUID) ([]*model.Destination, error)
	// FindCapacityLimited ищет другое активное место класса с ограничением вместимости
	FindCapacityLimited(ctx context.Context, classroomID, excludeID uuid.UUID) (*model.Destination, error)
	Create(ctx context.Context, d *model.Destination) error
	Update(ctx context.Context, d *model.Destination) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type RecordStore interface {
	FindOpenByStudent(ctx context.Context, studentID uuid.UUID) (*model.CheckInRecord, error)
	CountOpenByDestination(ctx context.Context, classroomID uuid.UUID, destination string) (int, error)
	ListOpenByClassroom(ctx context.Context, classroomID uuid.UUID) ([]*model.CheckInRecord, error)
	Create(ctx context.Context, r *model.CheckInRecord) error
	Close(ctx context.Context, id uuid.UUID, checkedInAt time.Time, manualOverride bool) error
}

type WaitlistStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.WaitListEntry, error)
	// FindActiveByStudent ищет waiting/approved запись ученика в классе
	FindActiveByStudent(ctx context.Context, studentID, classroomID uuid.UUID) (*model.WaitListEntry, error)
	CountByStatus(ctx context.Context, destinationID uuid.UUID, status model.WaitlistStatus) (int, error)
	// MaxPosition максимум позиции среди waiting/approved, 0 если очередь пуста
	MaxPosition(ctx context.Context, destinationID uuid.UUID) (int, error)
	// FirstWaiting waiting запись с наименьшей позицией
	FirstWaiting(ctx context.Context, destinationID uuid.UUID) (*model.WaitListEntry, error)
	// ListActive waiting/approved записи в порядке позиций
	ListActive(ctx context.Context, destinationID uuid.UUID) ([]*model.WaitListEntry, error)
	// ListStale записи со статусом status старше before: waiting по updated_at,
	// approved по approved_at
	ListStale(ctx context.Context, status model.WaitlistStatus, before time.Time) ([]*model.WaitListEntry, error)
	Create(ctx context.Context, e *model.WaitListEntry) error
	Update(ctx context.Context, e *model.WaitListEntry) error
	// Compact перенумеровывает waiting/approved записи места в 1..N
	// в порядке (position, created_at, id)
	Compact(ctx context.Context, destinationID uuid.UUID) error
}
