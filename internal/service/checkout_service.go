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

// EnrollmentChecker проверка состава класса, её ведёт модуль ростера
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, classroomID uuid.UUID) (bool, error)
}

// CheckoutRequest запрос ученика на выход из класса
type CheckoutRequest struct {
	StudentID   uuid.UUID
	ClassroomID uuid.UUID
	// Destination имя места; может быть пустым только при ManualOverride
	Destination    string
	ManualOverride bool
	// BypassWaitlist пропускает проверку вместимости
	BypassWaitlist bool
}

type Outcome string

const (
	OutcomeAdmitted       Outcome = "admitted"
	OutcomeWaitlisted     Outcome = "waitlisted"
	OutcomeAlreadyWaiting Outcome = "already_waiting"
)

// AdmissionResult итог попытки выхода.
// Position заполнена для waitlisted и already_waiting, Record для admitted.
type AdmissionResult struct {
	Outcome  Outcome
	Position int
	Record   *model.CheckInRecord
	Entry    *model.WaitListEntry
}

// StudentStatus текущее состояние ученика: открытая отметка и/или запись в очереди
type StudentStatus struct {
	Record *model.CheckInRecord
	Entry  *model.WaitListEntry
}

// maxCheckoutPlans сколько раз AttemptCheckout перестраивает план,
// если запись ученика в очереди изменили между чтением и блокировкой
const maxCheckoutPlans = 3

var errReplan = errors.New("waitlist entry changed while planning checkout")

type CheckoutService struct {
	store      repository.Store
	enrollment EnrollmentChecker
	waitlist   *WaitlistService
	recorder   stats.Recorder
	logger     *zap.Logger
	now        func() time.Time
}

func NewCheckoutService(
	store repository.Store,
	enrollment EnrollmentChecker,
	waitlist *WaitlistService,
	recorder stats.Recorder,
	logger *zap.Logger,
) *CheckoutService {
	if recorder == nil {
		recorder = stats.Nop{}
	}
	return &CheckoutService{
		store:      store,
		enrollment: enrollment,
		waitlist:   waitlist,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// AttemptCheckout пропускает ученика, ставит его в очередь или сообщает текущую позицию
func (s *CheckoutService) AttemptCheckout(ctx context.Context, req CheckoutRequest) (*AdmissionResult, error) {
	if req.StudentID == uuid.Nil {
		return nil, &ValidationError{Field: "student_id"}
	}
	if req.ClassroomID == uuid.Nil {
		return nil, &ValidationError{Field: "classroom_id"}
	}

	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" && !req.ManualOverride {
		return nil, ErrDestinationRequired
	}

	enrolled, err := s.enrollment.IsEnrolled(ctx, req.StudentID, req.ClassroomID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	for attempt := 1; ; attempt++ {
		result, events, err := s.attempt(ctx, req)
		if errors.Is(err, errReplan) {
			if attempt < maxCheckoutPlans {
				s.logger.Debug("Replanning checkout",
					zap.Stringer("student_id", req.StudentID),
					zap.Int("attempt", attempt),
				)
				continue
			}
			s.logger.Warn("Checkout gave up replanning",
				zap.Stringer("student_id", req.StudentID),
				zap.Int("attempts", attempt),
			)
			return nil, invalidAction("waitlist entry kept changing, try again")
		}
		if err != nil {
			return nil, err
		}

		recordEvents(ctx, s.recorder, s.logger, events)

		s.logger.Info("Checkout attempted",
			zap.Stringer("student_id", req.StudentID),
			zap.Stringer("classroom_id", req.ClassroomID),
			zap.String("destination", req.Destination),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("position", result.Position),
			zap.Bool("manual_override", req.ManualOverride),
			zap.Bool("bypass_waitlist", req.BypassWaitlist),
		)

		return result, nil
	}
}

func (s *CheckoutService) attempt(ctx context.Context, req CheckoutRequest) (*AdmissionResult, []stats.Event, error) {
	now := s.now()
	var result *AdmissionResult
	var events []stats.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.StudentLockKey(req.StudentID)); err != nil {
			return err
		}

		open, err := tx.Records().FindOpenByStudent(ctx, req.StudentID)
		if err != nil {
			return fmt.Errorf("find open record: %w", err)
		}
		if open != nil {
			return ErrAlreadyCheckedOut
		}

		entry, err := tx.Waitlist().FindActiveByStudent(ctx, req.StudentID, req.ClassroomID)
		if err != nil {
			return fmt.Errorf("find active entry: %w", err)
		}
		if entry != nil {
			result, events, err = s.admitFromEntry(ctx, tx, req, entry.ID, now)
			return err
		}

		result, events, err = s.admitNew(ctx, tx, req, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return result, events, nil
}

// admitFromEntry обрабатывает ученика, который уже стоит в очереди
func (s *CheckoutService) admitFromEntry(ctx context.Context, tx repository.Tx, req CheckoutRequest, entryID uuid.UUID, now time.Time) (*AdmissionResult, []stats.Event, error) {
	entry, err := tx.Waitlist().GetByID(ctx, entryID)
	if err != nil {
		return nil, nil, fmt.Errorf("get entry: %w", err)
	}
	if entry == nil {
		return nil, nil, errReplan
	}

	if err := tx.Lock(ctx, repository.DestinationLockKey(entry.DestinationID)); err != nil {
		return nil, nil, err
	}

	entry, err = tx.Waitlist().GetByID(ctx, entryID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload entry: %w", err)
	}
	if entry == nil || entry.Status.IsTerminal() {
		return nil, nil, errReplan
	}

	if entry.IsWaiting() {
		return &AdmissionResult{Outcome: OutcomeAlreadyWaiting, Position: entry.Position, Entry: entry}, nil, nil
	}

	// Одобренная запись: пропускаем в её место, какое бы место ни назвал ученик
	dest, err := tx.Destinations().GetByID(ctx, entry.DestinationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get destination: %w", err)
	}
	if dest == nil {
		return nil, nil, ErrDestinationNotFound
	}

	record, err := s.createRecord(ctx, tx, req, dest.Name, now)
	if err != nil {
		return nil, nil, err
	}

	entry.Status = model.WaitlistStatusCheckedOut
	entry.UpdatedAt = now
	if err := tx.Waitlist().Update(ctx, entry); err != nil {
		return nil, nil, fmt.Errorf("check out entry: %w", err)
	}

	// резерв израсходован, а не освобождён: только сжатие, без продвижения
	if err := compact(ctx, tx, entry.DestinationID); err != nil {
		return nil, nil, err
	}

	events := []stats.Event{{Kind: stats.KindAdmitted, ClassroomID: dest.ClassroomID, DestinationID: dest.ID, At: now}}
	return &AdmissionResult{Outcome: OutcomeAdmitted, Record: record, Entry: entry}, events, nil
}

// admitNew проверяет вместимость места и пропускает ученика или ставит в очередь
func (s *CheckoutService) admitNew(ctx context.Context, tx repository.Tx, req CheckoutRequest, now time.Time) (*AdmissionResult, []stats.Event, error) {
	var dest *model.Destination
	if req.Destination != "" {
		var err error
		dest, err = tx.Destinations().GetByName(ctx, req.ClassroomID, req.Destination)
		if err != nil {
			return nil, nil, fmt.Errorf("get destination: %w", err)
		}
	}

	if dest == nil {
		// без зарегистрированного места выпустить может только ручная отметка
		if !req.ManualOverride {
			return nil, nil, ErrDestinationNotFound
		}
		record, err := s.createRecord(ctx, tx, req, req.Destination, now)
		if err != nil {
			return nil, nil, err
		}
		events := []stats.Event{{Kind: stats.KindAdmitted, ClassroomID: req.ClassroomID, At: now}}
		return &AdmissionResult{Outcome: OutcomeAdmitted, Record: record}, events, nil
	}

	if err := tx.Lock(ctx, repository.DestinationLockKey(dest.ID)); err != nil {
		return nil, nil, err
	}

	// вместимость могли поменять до блокировки
	dest, err := tx.Destinations().GetByID(ctx, dest.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload destination: %w", err)
	}
	if dest == nil || !dest.IsActive {
		return nil, nil, ErrDestinationNotFound
	}

	if dest.HasCapacity() && !req.BypassWaitlist {
		occupied, err := occupancy(ctx, tx, dest)
		if err != nil {
			return nil, nil, err
		}

		if occupied >= *dest.Capacity {
			position, err := nextPosition(ctx, tx, dest.ID)
			if err != nil {
				return nil, nil, err
			}

			entry := &model.WaitListEntry{
				StudentID:     req.StudentID,
				ClassroomID:   req.ClassroomID,
				DestinationID: dest.ID,
				Position:      position,
				Status:        model.WaitlistStatusWaiting,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.Waitlist().Create(ctx, entry); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return nil, nil, errReplan
				}
				return nil, nil, fmt.Errorf("create entry: %w", err)
			}

			events := []stats.Event{entryEvent(stats.KindWaitlisted, entry, now)}
			return &AdmissionResult{Outcome: OutcomeWaitlisted, Position: position, Entry: entry}, events, nil
		}
	}

	record, err := s.createRecord(ctx, tx, req, dest.Name, now)
	if err != nil {
		return nil, nil, err
	}

	events := []stats.Event{{Kind: stats.KindAdmitted, ClassroomID: dest.ClassroomID, DestinationID: dest.ID, At: now}}
	return &AdmissionResult{Outcome: OutcomeAdmitted, Record: record}, events, nil
}

func (s *CheckoutService) createRecord(ctx context.Context, tx repository.Tx, req CheckoutRequest, destination string, now time.Time) (*model.CheckInRecord, error) {
	record := &model.CheckInRecord{
		StudentID:      req.StudentID,
		ClassroomID:    req.ClassroomID,
		Destination:    destination,
		CheckedOutAt:   now,
		ManualOverride: req.ManualOverride,
	}
	if err := tx.Records().Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyCheckedOut
		}
		return nil, fmt.Errorf("create record: %w", err)
	}
	return record, nil
}

// CompleteCheckIn закрывает открытую отметку ученика. Если у места есть
// вместимость, освободившийся слот отдаётся первому в очереди.
func (s *CheckoutService) CompleteCheckIn(ctx context.Context, studentID, classroomID uuid.UUID, manualOverride bool) (*model.CheckInRecord, error) {
	if studentID == uuid.Nil {
		return nil, &ValidationError{Field: "student_id"}
	}
	if classroomID == uuid.Nil {
		return nil, &ValidationError{Field: "classroom_id"}
	}

	now := s.now()
	var record *model.CheckInRecord
	var events []stats.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.StudentLockKey(studentID)); err != nil {
			return err
		}

		open, err := tx.Records().FindOpenByStudent(ctx, studentID)
		if err != nil {
			return fmt.Errorf("find open record: %w", err)
		}
		if open == nil {
			return ErrNotCheckedOut
		}

		// место ищем в классе, из которого ученик выходил
		var dest *model.Destination
		if open.Destination != "" {
			dest, err = tx.Destinations().GetByName(ctx, open.ClassroomID, open.Destination)
			if err != nil {
				return fmt.Errorf("get destination: %w", err)
			}
		}
		if dest != nil {
			if err := tx.Lock(ctx, repository.DestinationLockKey(dest.ID)); err != nil {
				return err
			}
		}

		if err := tx.Records().Close(ctx, open.ID, now, manualOverride); err != nil {
			return fmt.Errorf("close record: %w", err)
		}

		at := now
		open.CheckedInAt = &at
		open.ManualOverride = open.ManualOverride || manualOverride
		record = open

		ev := stats.Event{Kind: stats.KindCheckedIn, ClassroomID: open.ClassroomID, At: now}
		if dest == nil {
			events = append(events, ev)
			return nil
		}
		ev.DestinationID = dest.ID
		events = append(events, ev)

		dest, err = tx.Destinations().GetByID(ctx, dest.ID)
		if err != nil {
			return fmt.Errorf("reload destination: %w", err)
		}
		if dest == nil || !dest.HasCapacity() {
			return nil
		}

		promoted, err := s.waitlist.promoteIfFree(ctx, tx, dest, now)
		if err != nil {
			return err
		}
		if promoted != nil {
			events = append(events, entryEvent(stats.KindPromoted, promoted, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordEvents(ctx, s.recorder, s.logger, events)

	s.logger.Info("Student checked in",
		zap.Stringer("student_id", studentID),
		zap.Stringer("classroom_id", record.ClassroomID),
		zap.String("destination", record.Destination),
		zap.Bool("manual_override", manualOverride),
		zap.Bool("promoted", len(events) > 1),
	)

	return record, nil
}

// ListOut возвращает открытые отметки класса: кто сейчас вне класса
func (s *CheckoutService) ListOut(ctx context.Context, classroomID uuid.UUID) ([]*model.CheckInRecord, error) {
	var records []*model.CheckInRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		records, err = tx.Records().ListOpenByClassroom(ctx, classroomID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list open records: %w", err)
	}
	return records, nil
}

// Status возвращает открытую отметку и активную запись очереди ученика
func (s *CheckoutService) Status(ctx context.Context, studentID, classroomID uuid.UUID) (*StudentStatus, error) {
	status := &StudentStatus{}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		status.Record, err = tx.Records().FindOpenByStudent(ctx, studentID)
		if err != nil {
			return err
		}
		status.Entry, err = tx.Waitlist().FindActiveByStudent(ctx, studentID, classroomID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get student status: %w", err)
	}
	return status, nil
}
