package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DestinationService реестр мест класса и их вместимости.
// В классе не больше одного активного места с ограничением вместимости.
type DestinationService struct {
	store    repository.Store
	waitlist *WaitlistService
	logger   *zap.Logger
	now      func() time.Time
}

func NewDestinationService(store repository.Store, waitlist *WaitlistService, logger *zap.Logger) *DestinationService {
	return &DestinationService{
		store:    store,
		waitlist: waitlist,
		logger:   logger,
		now:      time.Now,
	}
}

// withDestination блокирует класс и место и передаёт в fn актуальную запись места
func (s *DestinationService) withDestination(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx repository.Tx, dest *model.Destination) error) error {
	if id == uuid.Nil {
		return &ValidationError{Field: "destination_id"}
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		dest, err := tx.Destinations().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get destination: %w", err)
		}
		if dest == nil {
			return ErrDestinationNotFound
		}

		if err := tx.Lock(ctx, repository.ClassroomLockKey(dest.ClassroomID)); err != nil {
			return err
		}
		if err := tx.Lock(ctx, repository.DestinationLockKey(dest.ID)); err != nil {
			return err
		}

		dest, err = tx.Destinations().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload destination: %w", err)
		}
		if dest == nil {
			return ErrDestinationNotFound
		}

		return fn(ctx, tx, dest)
	})
}

// checkCapacityConflict ищет другое активное место класса с ограничением
func checkCapacityConflict(ctx context.Context, tx repository.Tx, classroomID, excludeID uuid.UUID) error {
	other, err := tx.Destinations().FindCapacityLimited(ctx, classroomID, excludeID)
	if err != nil {
		return fmt.Errorf("find capacity limited destination: %w", err)
	}
	if other != nil {
		return &CapacityConflictError{Conflicting: other}
	}
	return nil
}

func nameTaken(ctx context.Context, tx repository.Tx, classroomID, excludeID uuid.UUID, name string) (bool, error) {
	list, err := tx.Destinations().ListByClassroom(ctx, classroomID)
	if err != nil {
		return false, fmt.Errorf("list destinations: %w", err)
	}
	for _, d := range list {
		if d.ID != excludeID && strings.EqualFold(d.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func hasActiveEntries(ctx context.Context, tx repository.Tx, destinationID uuid.UUID) (bool, error) {
	entries, err := tx.Waitlist().ListActive(ctx, destinationID)
	if err != nil {
		return false, fmt.Errorf("list active entries: %w", err)
	}
	return len(entries) > 0, nil
}

// Create создаёт место в классе
func (s *DestinationService) Create(ctx context.Context, classroomID uuid.UUID, name string, capacity *int) (*model.Destination, error) {
	name = strings.TrimSpace(name)
	if classroomID == uuid.Nil {
		return nil, &ValidationError{Field: "classroom_id"}
	}
	if name == "" {
		return nil, &ValidationError{Field: "name"}
	}

	now := s.now()
	dest := &model.Destination{
		ClassroomID: classroomID,
		Name:        name,
		Capacity:    model.NormalizeCapacity(capacity),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.ClassroomLockKey(classroomID)); err != nil {
			return err
		}

		list, err := tx.Destinations().ListByClassroom(ctx, classroomID)
		if err != nil {
			return fmt.Errorf("list destinations: %w", err)
		}
		for _, d := range list {
			if strings.EqualFold(d.Name, name) {
				return ErrNameTaken
			}
			if d.DisplayOrder > dest.DisplayOrder {
				dest.DisplayOrder = d.DisplayOrder
			}
		}
		dest.DisplayOrder++

		if dest.HasCapacity() {
			if err := checkCapacityConflict(ctx, tx, classroomID, uuid.Nil); err != nil {
				return err
			}
		}

		if err := tx.Destinations().Create(ctx, dest); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrNameTaken
			}
			return fmt.Errorf("create destination: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Destination created",
		zap.Stringer("destination_id", dest.ID),
		zap.Stringer("classroom_id", classroomID),
		zap.String("name", dest.Name),
		zap.Bool("limited", dest.HasCapacity()),
	)

	return dest, nil
}

// Rename переименовывает место. Отметки хранят имя места, поэтому
// переименование невозможно, пока кто-то вышел в это место; смена одного
// регистра разрешена всегда.
func (s *DestinationService) Rename(ctx context.Context, id uuid.UUID, name string) (*model.Destination, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name"}
	}

	var result *model.Destination
	err := s.withDestination(ctx, id, func(ctx context.Context, tx repository.Tx, dest *model.Destination) error {
		if dest.Name == name {
			result = dest
			return nil
		}

		taken, err := nameTaken(ctx, tx, dest.ClassroomID, dest.ID, name)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameTaken
		}

		// отметки сравниваются с местом без учёта регистра, смена регистра их не теряет
		if !strings.EqualFold(dest.Name, name) {
			out, err := tx.Records().CountOpenByDestination(ctx, dest.ClassroomID, dest.Name)
			if err != nil {
				return fmt.Errorf("count open records: %w", err)
			}
			if out > 0 {
				return invalidAction("%d students are out to %q", out, dest.Name)
			}
		}

		dest.Name = name
		dest.UpdatedAt = s.now()
		if err := tx.Destinations().Update(ctx, dest); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrNameTaken
			}
			return fmt.Errorf("update destination: %w", err)
		}
		result = dest
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Destination renamed",
		zap.Stringer("destination_id", result.ID),
		zap.String("name", result.Name),
	)

	return result, nil
}

// Delete удаляет место, если в его очереди никого нет
func (s *DestinationService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.withDestination(ctx, id, func(ctx context.Context, tx repository.Tx, dest *model.Destination) error {
		busy, err := hasActiveEntries(ctx, tx, dest.ID)
		if err != nil {
			return err
		}
		if busy {
			return invalidAction("destination %q has a waitlist", dest.Name)
		}

		if err := tx.Destinations().Delete(ctx, dest.ID); err != nil {
			return fmt.Errorf("delete destination: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Destination deleted", zap.Stringer("destination_id", id))
	return nil
}

// SetActive включает или скрывает место. Скрыть место с очередью нельзя,
// включить ограниченное место можно только если в классе нет другого ограниченного.
func (s *DestinationService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*model.Destination, error) {
	var result *model.Destination
	err := s.withDestination(ctx, id, func(ctx context.Context, tx repository.Tx, dest *model.Destination) error {
		result = dest
		if dest.IsActive == active {
			return nil
		}

		if active && dest.HasCapacity() {
			if err := checkCapacityConflict(ctx, tx, dest.ClassroomID, dest.ID); err != nil {
				return err
			}
		}
		if !active {
			busy, err := hasActiveEntries(ctx, tx, dest.ID)
			if err != nil {
				return err
			}
			if busy {
				return invalidAction("destination %q has a waitlist", dest.Name)
			}
		}

		dest.IsActive = active
		dest.UpdatedAt = s.now()
		if err := tx.Destinations().Update(ctx, dest); err != nil {
			return fmt.Errorf("update destination: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Destination visibility changed",
		zap.Stringer("destination_id", result.ID),
		zap.Bool("active", result.IsActive),
	)

	return result, nil
}

// SetCapacity задаёт вместимость места. nil, ноль и отрицательные значения
// снимают ограничение. После изменения свободные слоты отдаются очереди.
func (s *DestinationService) SetCapacity(ctx context.Context, id uuid.UUID, capacity *int) (*model.Destination, error) {
	capacity = model.NormalizeCapacity(capacity)

	var result *model.Destination
	var events []stats.Event

	err := s.withDestination(ctx, id, func(ctx context.Context, tx repository.Tx, dest *model.Destination) error {
		if capacity != nil {
			if err := checkCapacityConflict(ctx, tx, dest.ClassroomID, dest.ID); err != nil {
				return err
			}
		}

		now := s.now()
		dest.Capacity = capacity
		dest.UpdatedAt = now
		if err := tx.Destinations().Update(ctx, dest); err != nil {
			return fmt.Errorf("update destination: %w", err)
		}
		result = dest

		promoted, err := s.waitlist.refill(ctx, tx, dest, now)
		if err != nil {
			return err
		}
		events = promotedEvents(promoted, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordEvents(ctx, s.waitlist.recorder, s.logger, events)

	fields := []zap.Field{
		zap.Stringer("destination_id", result.ID),
		zap.Int("promoted", len(events)),
	}
	if result.Capacity != nil {
		fields = append(fields, zap.Int("capacity", *result.Capacity))
	}
	s.logger.Info("Destination capacity changed", fields...)

	return result, nil
}

// Reorder задаёт порядок показа мест класса. ids должен содержать все места класса.
func (s *DestinationService) Reorder(ctx context.Context, classroomID uuid.UUID, ids []uuid.UUID) error {
	if classroomID == uuid.Nil {
		return &ValidationError{Field: "classroom_id"}
	}

	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.ClassroomLockKey(classroomID)); err != nil {
			return err
		}

		list, err := tx.Destinations().ListByClassroom(ctx, classroomID)
		if err != nil {
			return fmt.Errorf("list destinations: %w", err)
		}

		byID := make(map[uuid.UUID]*model.Destination, len(list))
		for _, d := range list {
			byID[d.ID] = d
		}
		if len(ids) != len(byID) {
			return &ValidationError{Field: "order"}
		}

		now := s.now()
		for i, id := range ids {
			d, ok := byID[id]
			if !ok {
				return &ValidationError{Field: "order"}
			}
			delete(byID, id)

			if d.DisplayOrder == i+1 {
				continue
			}
			d.DisplayOrder = i + 1
			d.UpdatedAt = now
			if err := tx.Destinations().Update(ctx, d); err != nil {
				return fmt.Errorf("update destination: %w", err)
			}
		}
		return nil
	})
}

// List возвращает места класса в порядке показа
func (s *DestinationService) List(ctx context.Context, classroomID uuid.UUID) ([]*model.Destination, error) {
	var list []*model.Destination
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		list, err = tx.Destinations().ListByClassroom(ctx, classroomID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	return list, nil
}

// Get получает место по ID
func (s *DestinationService) Get(ctx context.Context, id uuid.UUID) (*model.Destination, error) {
	var dest *model.Destination
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		dest, err = tx.Destinations().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	if dest == nil {
		return nil, ErrDestinationNotFound
	}
	return dest, nil
}

// FindByName ищет активное место класса по имени
func (s *DestinationService) FindByName(ctx context.Context, classroomID uuid.UUID, name string) (*model.Destination, error) {
	var dest *model.Destination
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		dest, err = tx.Destinations().GetByName(ctx, classroomID, strings.TrimSpace(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	if dest == nil {
		return nil, ErrDestinationNotFound
	}
	return dest, nil
}
