package common

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/google/uuid"
)

// Форматы callback data. Telegram ограничивает data 64 байтами,
// самый длинный вариант wl:approve:<uuid> занимает 47.
const (
	PrefixWaitlist = "wl:"  // wl:skip:<entry-id>
	PrefixRefresh  = "wlr:" // wlr:<destination-id>
	PrefixOut      = "out:" // out:<destination-id>
)

// WaitlistActionData кнопка действия над записью очереди
func WaitlistActionData(action model.WaitlistAction, entryID uuid.UUID) string {
	return PrefixWaitlist + string(action) + ":" + entryID.String()
}

// RefreshData кнопка обновления очереди места
func RefreshData(destinationID uuid.UUID) string {
	return PrefixRefresh + destinationID.String()
}

// OutData кнопка выбора места при выходе
func OutData(destinationID uuid.UUID) string {
	return PrefixOut + destinationID.String()
}

// ParseWaitlistActionData разбирает wl:<action>:<entry-id>
func ParseWaitlistActionData(data string) (model.WaitlistAction, uuid.UUID, error) {
	rest, ok := strings.CutPrefix(data, PrefixWaitlist)
	if !ok {
		return "", uuid.Nil, ErrInvalidFormat
	}

	rawAction, rawID, ok := strings.Cut(rest, ":")
	if !ok {
		return "", uuid.Nil, ErrInvalidFormat
	}

	action, ok := model.ParseWaitlistAction(rawAction)
	if !ok {
		return "", uuid.Nil, fmt.Errorf("%w: unknown action %q", ErrInvalidFormat, rawAction)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	return action, id, nil
}

// ParseIDData извлекает UUID после префикса
// Например: "out:4f1c..." -> 4f1c...
func ParseIDData(data, prefix string) (uuid.UUID, error) {
	rawID, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return uuid.Nil, ErrInvalidFormat
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return id, nil
}
