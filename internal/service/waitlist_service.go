package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiryPolicy сколько запись может провисеть в очереди. Ноль отключает истечение.
type ExpiryPolicy struct {
	WaitingTTL  time.Duration
	ApprovedTTL time.Duration
}

// Enabled включено ли истечение хотя бы для одного статуса
func (p ExpiryPolicy) Enabled() bool {
	return p.WaitingTTL > 0 || p.ApprovedTTL > 0
}

func (p ExpiryPolicy) isStale(e *model.WaitListEntry, now time.Time) bool {
	switch e.Status {
	case model.WaitlistStatusWaiting:
		return p.WaitingTTL > 0 && e.UpdatedAt.Before(now.Add(-p.WaitingTTL))
	case model.WaitlistStatusApproved:
		return p.ApprovedTTL > 0 && e.ApprovedAt != nil && e.ApprovedAt.Before(now.Add(-p.ApprovedTTL))
	case model.WaitlistStatusCheckedOut, model.WaitlistStatusCancelled:
		return false
	}
	return false
}

// WaitlistService ведёт очереди на места с ограниченной вместимостью.
// Все изменения очереди места выполняются под блокировкой этого места.
type WaitlistService struct {
	store    repository.Store
	recorder stats.Recorder
	expiry   ExpiryPolicy
	logger   *zap.Logger
	now      func() time.Time
}

func NewWaitlistService(
	store repository.Store,
	recorder stats.Recorder,
	expiry ExpiryPolicy,
	logger *zap.Logger,
) *WaitlistService {
	if recorder == nil {
		recorder = stats.Nop{}
	}
	return &WaitlistService{
		store:    store,
		recorder: recorder,
		expiry:   expiry,
		logger:   logger,
		now:      time.Now,
	}
}

// occupancy занято мест: кто вышел сейчас плюс одобренные резервы
func occupancy(ctx context.Context, tx repository.Tx, dest *model.Destination) (int, error) {
	open, err := tx.Records().CountOpenByDestination(ctx, dest.ClassroomID, dest.Name)
	if err != nil {
		return 0, fmt.Errorf("count open records: %w", err)
	}

	approved, err := tx.Waitlist().CountByStatus(ctx, dest.ID, model.WaitlistStatusApproved)
	if err != nil {
		return 0, fmt.Errorf("count approved entries: %w", err)
	}

	return open + approved, nil
}

// nextPosition позиция для новой записи в хвосте очереди.
// Вызывать только под блокировкой места.
func nextPosition(ctx context.Context, tx repository.Tx, destinationID uuid.UUID) (int, error) {
	maxPosition, err := tx.Waitlist().MaxPosition(ctx, destinationID)
	if err != nil {
		return 0, fmt.Errorf("get max position: %w", err)
	}
	return maxPosition + 1, nil
}

// promoteNext одобряет ровно одну запись - ожидающую с наименьшей позицией
func (s *WaitlistService) promoteNext(ctx context.Context, tx repository.Tx, destinationID uuid.UUID, now time.Time) (*model.WaitListEntry, error) {
	entry, err := tx.Waitlist().FirstWaiting(ctx, destinationID)
	if err != nil {
		return nil, fmt.Errorf("get first waiting: %w", err)
	}
	if entry == nil {
		return nil, nil
	}

	approvedAt := now
	entry.Status = model.WaitlistStatusApproved
	entry.ApprovedAt = &approvedAt
	entry.UpdatedAt = now

	if err := tx.Waitlist().Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("approve entry: %w", err)
	}

	return entry, nil
}

// promoteIfFree продвигает очередь на одну запись, только если занято меньше вместимости
func (s *WaitlistService) promoteIfFree(ctx context.Context, tx repository.Tx, dest *model.Destination, now time.Time) (*model.WaitListEntry, error) {
	if dest.HasCapacity() {
		occupied, err := occupancy(ctx, tx, dest)
		if err != nil {
			return nil, err
		}
		if occupied >= *dest.Capacity {
			return nil, nil
		}
	}
	return s.promoteNext(ctx, tx, dest.ID, now)
}

// refill продвигает очередь по одной записи на каждый свободный слот
func (s *WaitlistService) refill(ctx context.Context, tx repository.Tx, dest *model.Destination, now time.Time) ([]*model.WaitListEntry, error) {
	var promoted []*model.WaitListEntry
	for {
		entry, err := s.promoteIfFree(ctx, tx, dest, now)
		if err != nil {
			return promoted, err
		}
		if entry == nil {
			return promoted, nil
		}
		promoted = append(promoted, entry)
	}
}

// compact единственный способ восстановить плотную нумерацию 1..N
func compact(ctx context.Context, tx repository.Tx, destinationID uuid.UUID) error {
	if err := tx.Waitlist().Compact(ctx, destinationID); err != nil {
		return fmt.Errorf("compact waitlist: %w", err)
	}
	return nil
}

func entryEvent(kind stats.Kind, e *model.WaitListEntry, at time.Time) stats.Event {
	return stats.Event{Kind: kind, ClassroomID: e.ClassroomID, DestinationID: e.DestinationID, At: at}
}

func promotedEvents(entries []*model.WaitListEntry, at time.Time) []stats.Event {
	events := make([]stats.Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, entryEvent(stats.KindPromoted, e, at))
	}
	return events
}

// recordEvents пишет статистику после коммита; ошибки только логируются
func recordEvents(ctx context.Context, recorder stats.Recorder, logger *zap.Logger, events []stats.Event) {
	for _, ev := range events {
		if err := recorder.Record(ctx, ev); err != nil {
			logger.Warn("Failed to record admission stats",
				zap.String("kind", string(ev.Kind)),
				zap.Stringer("destination_id", ev.DestinationID),
				zap.Error(err),
			)
		}
	}
}

// Queue возвращает активные записи места по порядку
func (s *WaitlistService) Queue(ctx context.Context, destinationID uuid.UUID) ([]*model.WaitListEntry, error) {
	var entries []*model.WaitListEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entries, err = tx.Waitlist().ListActive(ctx, destinationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get queue: %w", err)
	}
	return entries, nil
}

// Apply выполняет административное действие над записью
func (s *WaitlistService) Apply(ctx context.Context, classroomID, entryID uuid.UUID, action model.WaitlistAction) (*model.WaitListEntry, error) {
	switch action {
	case model.WaitlistActionSkip:
		return s.Skip(ctx, classroomID, entryID)
	case model.WaitlistActionRemove:
		return s.Remove(ctx, classroomID, entryID)
	case model.WaitlistActionApprove:
		return s.Approve(ctx, classroomID, entryID)
	}
	return nil, invalidAction("unknown waitlist action %q", action)
}

type entryMutation func(ctx context.Context, tx repository.Tx, entry *model.WaitListEntry, dest *model.Destination, now time.Time) ([]stats.Event, error)

// mutateEntry находит запись класса, блокирует её место, перечитывает запись
// и применяет fn в одной транзакции
func (s *WaitlistService) mutateEntry(ctx context.Context, classroomID, entryID uuid.UUID, action model.WaitlistAction, fn entryMutation) (*model.WaitListEntry, error) {
	if classroomID == uuid.Nil {
		return nil, &ValidationError{Field: "classroom_id"}
	}
	if entryID == uuid.Nil {
		return nil, &ValidationError{Field: "entry_id"}
	}

	now := s.now()
	var result *model.WaitListEntry
	var events []stats.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		entry, err := tx.Waitlist().GetByID(ctx, entryID)
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		if entry == nil || entry.ClassroomID != classroomID {
			return ErrEntryNotFound
		}

		if err := tx.Lock(ctx, repository.DestinationLockKey(entry.DestinationID)); err != nil {
			return err
		}

		// Место записи не меняется, а статус мог измениться до блокировки
		entry, err = tx.Waitlist().GetByID(ctx, entryID)
		if err != nil {
			return fmt.Errorf("reload entry: %w", err)
		}
		if entry == nil {
			return ErrEntryNotFound
		}

		dest, err := tx.Destinations().GetByID(ctx, entry.DestinationID)
		if err != nil {
			return fmt.Errorf("get destination: %w", err)
		}
		if dest == nil {
			return ErrDestinationNotFound
		}

		events, err = fn(ctx, tx, entry, dest, now)
		if err != nil {
			return err
		}

		result, err = tx.Waitlist().GetByID(ctx, entryID)
		if err != nil {
			return fmt.Errorf("reload entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordEvents(ctx, s.recorder, s.logger, events)

	s.logger.Info("Waitlist entry updated",
		zap.String("action", string(action)),
		zap.Stringer("entry_id", result.ID),
		zap.Stringer("destination_id", result.DestinationID),
		zap.String("status", string(result.Status)),
		zap.Int("position", result.Position),
	)

	return result, nil
}

// Skip переносит запись в хвост очереди в статусе waiting.
// Если запись была одобрена, освободившийся слот отдаётся следующему.
func (s *WaitlistService) Skip(ctx context.Context, classroomID, entryID uuid.UUID) (*model.WaitListEntry, error) {
	return s.mutateEntry(ctx, classroomID, entryID, model.WaitlistActionSkip,
		func(ctx context.Context, tx repository.Tx, entry *model.WaitListEntry, dest *model.Destination, now time.Time) ([]stats.Event, error) {
			if entry.Status.IsTerminal() {
				return nil, invalidAction("cannot skip %s entry", entry.Status)
			}
			wasApproved := entry.IsApproved()

			tail, err := nextPosition(ctx, tx, entry.DestinationID)
			if err != nil {
				return nil, err
			}

			entry.Position = tail
			entry.Status = model.WaitlistStatusWaiting
			entry.ApprovedAt = nil
			entry.UpdatedAt = now
			if err := tx.Waitlist().Update(ctx, entry); err != nil {
				return nil, fmt.Errorf("move entry to tail: %w", err)
			}

			if err := compact(ctx, tx, entry.DestinationID); err != nil {
				return nil, err
			}

			events := []stats.Event{entryEvent(stats.KindSkipped, entry, now)}
			if wasApproved {
				promoted, err := s.promoteIfFree(ctx, tx, dest, now)
				if err != nil {
					return nil, err
				}
				if promoted != nil {
					events = append(events, entryEvent(stats.KindPromoted, promoted, now))
				}
			}
			return events, nil
		})
}

// Remove отменяет запись и сжимает очередь
func (s *WaitlistService) Remove(ctx context.Context, classroomID, entryID uuid.UUID) (*model.WaitListEntry, error) {
	return s.mutateEntry(ctx, classroomID, entryID, model.WaitlistActionRemove,
		func(ctx context.Context, tx repository.Tx, entry *model.WaitListEntry, dest *model.Destination, now time.Time) ([]stats.Event, error) {
			if entry.Status.IsTerminal() {
				return nil, invalidAction("cannot remove %s entry", entry.Status)
			}
			return s.cancel(ctx, tx, entry, dest, now, stats.KindRemoved)
		})
}

// Approve принудительно одобряет ожидающую запись независимо от позиции и занятости
func (s *WaitlistService) Approve(ctx context.Context, classroomID, entryID uuid.UUID) (*model.WaitListEntry, error) {
	return s.mutateEntry(ctx, classroomID, entryID, model.WaitlistActionApprove,
		func(ctx context.Context, tx repository.Tx, entry *model.WaitListEntry, _ *model.Destination, now time.Time) ([]stats.Event, error) {
			if !entry.IsWaiting() {
				return nil, invalidAction("cannot approve %s entry", entry.Status)
			}

			approvedAt := now
			entry.Status = model.WaitlistStatusApproved
			entry.ApprovedAt = &approvedAt
			entry.UpdatedAt = now
			if err := tx.Waitlist().Update(ctx, entry); err != nil {
				return nil, fmt.Errorf("approve entry: %w", err)
			}

			return []stats.Event{entryEvent(stats.KindApproved, entry, now)}, nil
		})
}

// cancel переводит активную запись в cancelled, сжимает очередь
// и отдаёт слот одобренной записи следующему
func (s *WaitlistService) cancel(ctx context.Context, tx repository.Tx, entry *model.WaitListEntry, dest *model.Destination, now time.Time, kind stats.Kind) ([]stats.Event, error) {
	wasApproved := entry.IsApproved()

	entry.Status = model.WaitlistStatusCancelled
	entry.UpdatedAt = now
	if err := tx.Waitlist().Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("cancel entry: %w", err)
	}

	if err := compact(ctx, tx, entry.DestinationID); err != nil {
		return nil, err
	}

	events := []stats.Event{entryEvent(kind, entry, now)}
	if wasApproved {
		promoted, err := s.promoteIfFree(ctx, tx, dest, now)
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			events = append(events, entryEvent(stats.KindPromoted, promoted, now))
		}
	}
	return events, nil
}

// ExpireStale отменяет записи, просидевшие в очереди дольше политики.
// Ошибка одной записи не останавливает обход остальных.
// Возвращает число отменённых записей.
func (s *WaitlistService) ExpireStale(ctx context.Context) (int, error) {
	if !s.expiry.Enabled() {
		return 0, nil
	}

	now := s.now()
	var stale []*model.WaitListEntry

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if s.expiry.WaitingTTL > 0 {
			entries, err := tx.Waitlist().ListStale(ctx, model.WaitlistStatusWaiting, now.Add(-s.expiry.WaitingTTL))
			if err != nil {
				return err
			}
			stale = append(stale, entries...)
		}
		if s.expiry.ApprovedTTL > 0 {
			entries, err := tx.Waitlist().ListStale(ctx, model.WaitlistStatusApproved, now.Add(-s.expiry.ApprovedTTL))
			if err != nil {
				return err
			}
			stale = append(stale, entries...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list stale entries: %w", err)
	}

	expired, failed := 0, 0
	for _, entry := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		ok, err := s.expireEntry(ctx, entry.ID, now)
		if err != nil {
			failed++
			s.logger.Warn("Failed to expire waitlist entry",
				zap.Stringer("entry_id", entry.ID),
				zap.Stringer("destination_id", entry.DestinationID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			expired++
		}
	}

	if expired > 0 {
		s.logger.Info("Stale waitlist entries expired", zap.Int("count", expired))
	}
	if failed > 0 {
		return expired, fmt.Errorf("expire stale entries: %d of %d failed", failed, len(stale))
	}

	return expired, nil
}

func (s *WaitlistService) expireEntry(ctx context.Context, entryID uuid.UUID, now time.Time) (bool, error) {
	var events []stats.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		entry, err := tx.Waitlist().GetByID(ctx, entryID)
		if err != nil || entry == nil {
			return err
		}

		if err := tx.Lock(ctx, repository.DestinationLockKey(entry.DestinationID)); err != nil {
			return err
		}

		entry, err = tx.Waitlist().GetByID(ctx, entryID)
		if err != nil {
			return fmt.Errorf("reload entry: %w", err)
		}
		// запись могли сдвинуть или одобрить, пока мы ждали блокировку
		if entry == nil || !s.expiry.isStale(entry, now) {
			return nil
		}

		dest, err := tx.Destinations().GetByID(ctx, entry.DestinationID)
		if err != nil {
			return fmt.Errorf("get destination: %w", err)
		}
		if dest == nil {
			return nil
		}

		events, err = s.cancel(ctx, tx, entry, dest, now, stats.KindExpired)
		return err
	})
	if err != nil {
		return false, err
	}

	recordEvents(ctx, s.recorder, s.logger, events)
	return len(events) > 0, nil
}
