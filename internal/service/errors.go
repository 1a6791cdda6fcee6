package service

import (
	"errors"
	"fmt"

	"github.com/Freeeeeet/hallpass/internal/model"
)

// Ошибки движка. Вызывающий слой сам решает, как их показать пользователю.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotEnrolled         = errors.New("student is not enrolled in classroom")
	ErrAlreadyCheckedOut   = errors.New("student is already checked out")
	ErrNotCheckedOut       = errors.New("student is not checked out")
	ErrDestinationRequired = errors.New("destination is required")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrEntryNotFound       = errors.New("waitlist entry not found")
	ErrInvalidAction       = errors.New("invalid action")
	ErrCapacityConflict    = errors.New("another destination already has a capacity limit")
	ErrNameTaken           = errors.New("destination name already taken")
)

// ValidationError не заполнено обязательное поле
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s is required", e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CapacityConflictError ограничение уже стоит на другом месте класса
type CapacityConflictError struct {
	Conflicting *model.Destination
}

func (e *CapacityConflictError) Error() string {
	return fmt.Sprintf("destination %q already has a capacity limit", e.Conflicting.Name)
}

func (e *CapacityConflictError) Is(target error) bool {
	return target == ErrCapacityConflict
}

// invalidAction уточняет ErrInvalidAction причиной
func invalidAction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}
