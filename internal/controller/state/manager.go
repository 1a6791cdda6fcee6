package state

import (
	"sync"

	"github.com/google/uuid"
)

// Manager управляет состояниями пользователей.
// Выбранный класс живёт отдельно от диалога и не сбрасывается /cancel.
type Manager struct {
	mu         sync.RWMutex
	states     map[int64]*UserData // telegramID -> UserData
	classrooms map[int64]uuid.UUID // telegramID -> выбранный класс
}

// NewManager создаёт новый менеджер состояний
func NewManager() *Manager {
	return &Manager{
		states:     make(map[int64]*UserData),
		classrooms: make(map[int64]uuid.UUID),
	}
}

// GetState получает текущее состояние пользователя
func (sm *Manager) GetState(telegramID int64) UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[telegramID]; exists {
		return userData.State
	}
	return StateNone
}

// SetState устанавливает состояние пользователя
func (sm *Manager) SetState(telegramID int64, state UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if state == StateNone {
		// Если состояние None, удаляем запись
		delete(sm.states, telegramID)
		return
	}

	if _, exists := sm.states[telegramID]; !exists {
		sm.states[telegramID] = &UserData{
			State: state,
			Data:  make(map[string]interface{}),
		}
	} else {
		sm.states[telegramID].State = state
	}
}

// GetData получает временные данные пользователя
func (sm *Manager) GetData(telegramID int64, key string) (interface{}, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[telegramID]; exists {
		value, ok := userData.Data[key]
		return value, ok
	}
	return nil, false
}

// SetData устанавливает временные данные пользователя
func (sm *Manager) SetData(telegramID int64, key string, value interface{}) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.states[telegramID]; !exists {
		sm.states[telegramID] = &UserData{
			State: StateNone,
			Data:  make(map[string]interface{}),
		}
	}
	sm.states[telegramID].Data[key] = value
}

// ClearState очищает состояние диалога и его данные
func (sm *Manager) ClearState(telegramID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, telegramID)
}

// SetClassroom запоминает класс, с которым работает пользователь
func (sm *Manager) SetClassroom(telegramID int64, classroomID uuid.UUID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.classrooms[telegramID] = classroomID
}

// Classroom возвращает выбранный класс
func (sm *Manager) Classroom(telegramID int64) (uuid.UUID, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	id, ok := sm.classrooms[telegramID]
	return id, ok
}
