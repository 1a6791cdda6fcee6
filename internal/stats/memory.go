package stats

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Counters счётчики по видам событий
type Counters map[Kind]int64

// MemoryRecorder держит счётчики в памяти.
// Подходит для тестов и разработки; без истечения.
type MemoryRecorder struct {
	mu            sync.Mutex
	total         Counters
	byDestination map[uuid.UUID]Counters
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		total:         make(Counters),
		byDestination: make(map[uuid.UUID]Counters),
	}
}

func (s *MemoryRecorder) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Kind]++

	c, ok := s.byDestination[ev.DestinationID]
	if !ok {
		c = make(Counters)
		s.byDestination[ev.DestinationID] = c
	}
	c[ev.Kind]++
	return nil
}

func (s *MemoryRecorder) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.total)
}

func (s *MemoryRecorder) ByDestination(id uuid.UUID) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byDestination[id])
}

// Destination реализует Reader
func (s *MemoryRecorder) Destination(_ context.Context, id uuid.UUID) (Counters, error) {
	return s.ByDestination(id), nil
}

func copyCounters(c Counters) Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
