package handlers

import (
	"testing"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args string
	}{
		{"/out", "out", ""},
		{"/out Bathroom", "out", "Bathroom"},
		{"/OUT  Nurse office ", "out", "Nurse office"},
		{"/out@hallpass_bot Library", "out", "Library"},
		{"Bathroom", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		cmd, args := splitCommand(tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestMatchCommand(t *testing.T) {
	match := MatchCommand("in")

	assert.True(t, match(&models.Update{Message: &models.Message{Text: "/in"}}))
	assert.True(t, match(&models.Update{Message: &models.Message{Text: "/in@hallpass_bot"}}))
	assert.False(t, match(&models.Update{Message: &models.Message{Text: "/info"}}))
	assert.False(t, match(&models.Update{Message: &models.Message{Text: "in"}}))
	assert.False(t, match(&models.Update{}))
}

func TestParseStartPayload(t *testing.T) {
	id := uuid.New()

	got, action, ok := parseStartPayload("cls_" + id.String())
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Empty(t, action)

	got, action, ok = parseStartPayload("cls_" + id.String() + "_out")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, model.ScanActionOut, action)

	_, action, ok = parseStartPayload("cls_" + id.String() + "_in")
	require.True(t, ok)
	assert.Equal(t, model.ScanActionIn, action)

	for _, args := range []string{"", "cls_", "cls_123", id.String(), "cls_" + id.String() + "_sideways", "cls_" + id.String() + "_"} {
		_, _, ok := parseStartPayload(args)
		assert.False(t, ok, args)
	}
}

func TestParseCapacityArgs(t *testing.T) {
	name, capacity, err := parseCapacityArgs("Bathroom 2")
	require.NoError(t, err)
	assert.Equal(t, "Bathroom", name)
	require.NotNil(t, capacity)
	assert.Equal(t, 2, *capacity)

	name, capacity, err = parseCapacityArgs("Nurse office off")
	require.NoError(t, err)
	assert.Equal(t, "Nurse office", name)
	assert.Nil(t, capacity)

	name, capacity, err = parseCapacityArgs("Library 0")
	require.NoError(t, err)
	assert.Equal(t, "Library", name)
	assert.Nil(t, capacity)

	for _, args := range []string{"", "Bathroom", "Bathroom many", "Bathroom -2", " 2"} {
		_, _, err := parseCapacityArgs(args)
		assert.ErrorIs(t, err, errBadCapacity, args)
	}
}
