package model

import (
	"time"

	"github.com/google/uuid"
)

type WaitlistStatus string

const (
	WaitlistStatusWaiting    WaitlistStatus = "waiting"     // В очереди
	WaitlistStatusApproved   WaitlistStatus = "approved"    // Место зарезервировано
	WaitlistStatusCheckedOut WaitlistStatus = "checked_out" // Ученик вышел по резерву
	WaitlistStatusCancelled  WaitlistStatus = "cancelled"   // Удалён из очереди
)

// IsTerminal checked_out и cancelled больше не меняются
func (s WaitlistStatus) IsTerminal() bool {
	return s == WaitlistStatusCheckedOut || s == WaitlistStatusCancelled
}

// ActiveWaitlistStatuses статусы, занимающие позицию в очереди
var ActiveWaitlistStatuses = []WaitlistStatus{WaitlistStatusWaiting, WaitlistStatusApproved}

type WaitListEntry struct {
	ID            uuid.UUID      `json:"id"`
	StudentID     uuid.UUID      `json:"student_id"`
	ClassroomID   uuid.UUID      `json:"classroom_id"`
	DestinationID uuid.UUID      `json:"destination_id"`
	Position      int            `json:"position"`
	Status        WaitlistStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ApprovedAt    *time.Time     `json:"approved_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (e *WaitListEntry) IsWaiting() bool {
	return e.Status == WaitlistStatusWaiting
}

func (e *WaitListEntry) IsApproved() bool {
	return e.Status == WaitlistStatusApproved
}

// WaitlistAction административное действие над записью очереди
type WaitlistAction string

const (
	WaitlistActionSkip    WaitlistAction = "skip"
	WaitlistActionRemove  WaitlistAction = "remove"
	WaitlistActionApprove WaitlistAction = "approve"
)

// ParseWaitlistAction разбирает действие; пустые и неизвестные строки не принимаются
func ParseWaitlistAction(s string) (WaitlistAction, bool) {
	switch WaitlistAction(s) {
	case WaitlistActionSkip:
		return WaitlistActionSkip, true
	case WaitlistActionRemove:
		return WaitlistActionRemove, true
	case WaitlistActionApprove:
		return WaitlistActionApprove, true
	}
	return "", false
}
