package common

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/hallpass/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/service"
	"github.com/Freeeeeet/hallpass/internal/stats"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWaitlistActionData_RoundTrip(t *testing.T) {
	id := uuid.New()

	for _, action := range []model.WaitlistAction{model.WaitlistActionSkip, model.WaitlistActionRemove, model.WaitlistActionApprove} {
		data := WaitlistActionData(action, id)
		assert.LessOrEqual(t, len(data), 64, "telegram callback data limit")

		gotAction, gotID, err := ParseWaitlistActionData(data)
		require.NoError(t, err)
		assert.Equal(t, action, gotAction)
		assert.Equal(t, id, gotID)
	}
}

func TestParseWaitlistActionData_Rejects(t *testing.T) {
	tests := []string{
		"",
		"wl:",
		"wl:skip",
		"wl:promote:" + uuid.NewString(),
		"wl:skip:not-a-uuid",
		"out:" + uuid.NewString(),
	}

	for _, data := range tests {
		_, _, err := ParseWaitlistActionData(data)
		assert.ErrorIs(t, err, ErrInvalidFormat, data)
	}
}

func TestParseIDData(t *testing.T) {
	id := uuid.New()

	got, err := ParseIDData(OutData(id), PrefixOut)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseIDData(RefreshData(id), PrefixOut)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseIDData("out:123", PrefixOut)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestErrorMessage(t *testing.T) {
	conflict := &service.CapacityConflictError{Conflicting: &model.Destination{Name: "Bathroom"}}

	assert.Contains(t, ErrorMessage(fmt.Errorf("set capacity: %w", conflict)), "Bathroom")
	assert.Contains(t, ErrorMessage(service.ErrAlreadyCheckedOut), "/in")
	assert.Equal(t, ErrorMessage(service.ErrInvalidAction), ErrorMessage(fmt.Errorf("%w: cannot skip", service.ErrInvalidAction)))
	assert.Equal(t, "❌ Произошла ошибка", ErrorMessage(errors.New("boom")))
}

func TestBuildQueueScreen(t *testing.T) {
	capacity := 1
	dest := &model.Destination{ID: uuid.New(), Name: "Bathroom", Capacity: &capacity}
	approved := &model.WaitListEntry{ID: uuid.New(), StudentID: uuid.New(), Position: 1, Status: model.WaitlistStatusApproved}
	waiting := &model.WaitListEntry{ID: uuid.New(), StudentID: uuid.New(), Position: 2, Status: model.WaitlistStatusWaiting}

	text, kb := BuildQueueScreen(dest, []*model.WaitListEntry{approved, waiting}, map[uuid.UUID]string{approved.StudentID: "Anna"})

	assert.Contains(t, text, "Bathroom (мест: 1)")
	assert.Contains(t, text, "1. ✅ Anna")
	assert.Contains(t, text, "2. ⏳ ученик "+waiting.StudentID.String()[:8])

	require.Len(t, kb.InlineKeyboard, 3)
	// одобренного нельзя одобрить ещё раз
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Len(t, kb.InlineKeyboard[1], 3)
	assert.Equal(t, WaitlistActionData(model.WaitlistActionApprove, waiting.ID), kb.InlineKeyboard[1][1].CallbackData)
	assert.Equal(t, RefreshData(dest.ID), kb.InlineKeyboard[2][0].CallbackData)
}

func TestAdmissionAndStatusText(t *testing.T) {
	assert.Contains(t, AdmissionText(&service.AdmissionResult{Outcome: service.OutcomeWaitlisted, Position: 3}), "3")
	assert.Contains(t, AdmissionText(&service.AdmissionResult{
		Outcome: service.OutcomeAdmitted,
		Record:  &model.CheckInRecord{Destination: "Library"},
	}), "Library")

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	text := StatusText(&service.StudentStatus{
		Record: &model.CheckInRecord{Destination: "Nurse", CheckedOutAt: now.Add(-7 * time.Minute)},
	}, "", now)
	assert.True(t, strings.Contains(text, "Nurse") && strings.Contains(text, "7 мин"))

	assert.Equal(t, "🏫 Вы в классе", StatusText(&service.StudentStatus{}, "", now))
}

func TestBuildStatsText(t *testing.T) {
	capacity := 2
	bathroom := &model.Destination{ID: uuid.New(), Name: "Bathroom", Capacity: &capacity}
	library := &model.Destination{ID: uuid.New(), Name: "Library"}

	text := BuildStatsText([]*model.Destination{bathroom, library}, map[uuid.UUID]stats.Counters{
		bathroom.ID: {stats.KindAdmitted: 5, stats.KindWaitlisted: 3, stats.KindExpired: 1},
	})

	assert.Contains(t, text, "Bathroom (мест: 2)")
	assert.Contains(t, text, "вышли: 5, в очередь: 3")
	assert.Contains(t, text, "сняты учителем или по времени: 1")
	assert.Contains(t, text, "Library (без ограничения)")

	assert.Equal(t, "📊 Мест пока нет", BuildStatsText(nil, nil))
}

func TestEditMessageOrLog_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	hc := &HandlerContext{
		Handler: &callbacktypes.Handler{Logger: zap.New(core)},
		ChatID:  42,
	}

	// без сообщения редактировать нечего
	hc.EditMessageOrLog("Выход: Bathroom", nil, "out_choice")

	entries := logs.FilterMessage("Failed to edit message").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "out_choice", fields["message"])
	assert.Equal(t, ErrNoMessage.Error(), fields["error"])
}
