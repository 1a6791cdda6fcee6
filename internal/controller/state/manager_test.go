package state

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestManager_ClearStateKeepsClassroom(t *testing.T) {
	sm := NewManager()
	classroom := uuid.New()

	sm.SetClassroom(42, classroom)
	sm.SetState(42, StateChoosingDestination)
	sm.SetData(42, "attempt", 1)

	sm.ClearState(42)

	assert.Equal(t, StateNone, sm.GetState(42))
	_, ok := sm.GetData(42, "attempt")
	assert.False(t, ok)

	got, ok := sm.Classroom(42)
	assert.True(t, ok)
	assert.Equal(t, classroom, got)
}

func TestManager_SetStateNoneDropsData(t *testing.T) {
	sm := NewManager()

	sm.SetData(7, "k", "v")
	v, ok := sm.GetData(7, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	sm.SetState(7, StateNone)
	_, ok = sm.GetData(7, "k")
	assert.False(t, ok)

	_, ok = sm.Classroom(7)
	assert.False(t, ok)
}
