// Package memory хранит данные движка в памяти процесса.
// Изоляцию транзакций дают только блокировки Lock, как advisory-блокировки
// в Postgres: изменения видны другим транзакциям сразу, а при ошибке fn
// откатываются по журналу.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/google/uuid"
)

type state struct {
	destinations map[uuid.UUID]model.Destination
	records      map[uuid.UUID]model.CheckInRecord
	entries      map[uuid.UUID]model.WaitListEntry
}

func newState() *state {
	return &state{
		destinations: make(map[uuid.UUID]model.Destination),
		records:      make(map[uuid.UUID]model.CheckInRecord),
		entries:      make(map[uuid.UUID]model.WaitListEntry),
	}
}

type Store struct {
	// mu защищает state и locks, но не держится всю транзакцию
	mu    sync.Mutex
	state *state
	locks map[string]chan struct{}
}

func NewStore() *Store {
	return &Store{state: newState(), locks: make(map[string]chan struct{})}
}

// WithinTx реализует repository.Store
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{store: s, held: make(map[string]chan struct{})}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) lockChan(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// Entries возвращает копию всех записей очереди (для проверок в тестах)
func (s *Store) Entries() []model.WaitListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.WaitListEntry, 0, len(s.state.entries))
	for _, e := range s.state.entries {
		out = append(out, *copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return entryLess(&out[i], &out[j]) })
	return out
}

// Records возвращает копию всех отметок
func (s *Store) Records() []model.CheckInRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CheckInRecord, 0, len(s.state.records))
	for _, r := range s.state.records {
		r.CheckedInAt = copyTime(r.CheckedInAt)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedOutAt.Before(out[j].CheckedOutAt) })
	return out
}

type tx struct {
	store *Store
	held  map[string]chan struct{}
	undo  []func(*state)
}

// Lock ждёт ключ до отмены ctx; повторный Lock того же ключа ничего не делает
func (t *tx) Lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}

	ch := t.store.lockChan(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) release() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

func (t *tx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i](t.store.state)
	}
	t.undo = nil
}

// view выполняет fn под мьютексом хранилища
func (t *tx) view(fn func(s *state)) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	fn(t.store.state)
}

// Методы put*/drop* вызываются под мьютексом и пишут обратную операцию в журнал

func (t *tx) putDestination(s *state, d model.Destination) {
	prev, existed := s.destinations[d.ID]
	t.undo = append(t.undo, func(s *state) {
		if existed {
			s.destinations[d.ID] = prev
		} else {
			delete(s.destinations, d.ID)
		}
	})
	s.destinations[d.ID] = d
}

func (t *tx) dropDestination(s *state, id uuid.UUID) {
	prev := s.destinations[id]
	t.undo = append(t.undo, func(s *state) { s.destinations[id] = prev })
	delete(s.destinations, id)
}

func (t *tx) putRecord(s *state, r model.CheckInRecord) {
	prev, existed := s.records[r.ID]
	t.undo = append(t.undo, func(s *state) {
		if existed {
			s.records[r.ID] = prev
		} else {
			delete(s.records, r.ID)
		}
	})
	s.records[r.ID] = r
}

func (t *tx) putEntry(s *state, e model.WaitListEntry) {
	prev, existed := s.entries[e.ID]
	t.undo = append(t.undo, func(s *state) {
		if existed {
			s.entries[e.ID] = prev
		} else {
			delete(s.entries, e.ID)
		}
	})
	s.entries[e.ID] = e
}

func (t *tx) dropEntry(s *state, id uuid.UUID) {
	prev := s.entries[id]
	t.undo = append(t.undo, func(s *state) { s.entries[id] = prev })
	delete(s.entries, id)
}

func (t *tx) Destinations() repository.DestinationStore { return destinationStore{t} }
func (t *tx) Records() repository.RecordStore           { return recordStore{t} }
func (t *tx) Waitlist() repository.WaitlistStore        { return waitlistStore{t} }

type destinationStore struct{ t *tx }

func (d destinationStore) GetByID(_ context.Context, id uuid.UUID) (dest *model.Destination, err error) {
	d.t.view(func(s *state) {
		if v, ok := s.destinations[id]; ok {
			dest = copyDestination(v)
		}
	})
	return dest, nil
}

func (d destinationStore) GetByName(_ context.Context, classroomID uuid.UUID, name string) (dest *model.Destination, err error) {
	d.t.view(func(s *state) {
		for _, v := range s.destinations {
			if v.ClassroomID == classroomID && v.IsActive && strings.EqualFold(v.Name, name) {
				dest = copyDestination(v)
				return
			}
		}
	})
	return dest, nil
}

func (d destinationStore) ListByClassroom(_ context.Context, classroomID uuid.UUID) ([]*model.Destination, error) {
	var out []*model.Destination
	d.t.view(func(s *state) {
		for _, v := range s.destinations {
			if v.ClassroomID == classroomID {
				out = append(out, copyDestination(v))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (d destinationStore) FindCapacityLimited(_ context.Context, classroomID, excludeID uuid.UUID) (dest *model.Destination, err error) {
	d.t.view(func(s *state) {
		for _, v := range s.destinations {
			if v.ClassroomID == classroomID && v.ID != excludeID && v.IsActive && v.Capacity != nil {
				dest = copyDestination(v)
				return
			}
		}
	})
	return dest, nil
}

func nameTaken(s *state, dest *model.Destination) bool {
	for _, other := range s.destinations {
		if other.ID != dest.ID && other.ClassroomID == dest.ClassroomID && strings.EqualFold(other.Name, dest.Name) {
			return true
		}
	}
	return false
}

func (d destinationStore) Create(_ context.Context, dest *model.Destination) (err error) {
	if dest.ID == uuid.Nil {
		dest.ID = uuid.New()
	}
	d.t.view(func(s *state) {
		if nameTaken(s, dest) {
			err = repository.ErrDuplicate
			return
		}
		d.t.putDestination(s, *copyDestination(*dest))
	})
	return err
}

func (d destinationStore) Update(_ context.Context, dest *model.Destination) (err error) {
	d.t.view(func(s *state) {
		if _, ok := s.destinations[dest.ID]; !ok {
			err = errNotFound("destination")
			return
		}
		if nameTaken(s, dest) {
			err = repository.ErrDuplicate
			return
		}
		d.t.putDestination(s, *copyDestination(*dest))
	})
	return err
}

func (d destinationStore) Delete(_ context.Context, id uuid.UUID) (err error) {
	d.t.view(func(s *state) {
		if _, ok := s.destinations[id]; !ok {
			err = errNotFound("destination")
			return
		}
		d.t.dropDestination(s, id)
		for entryID, e := range s.entries {
			if e.DestinationID == id {
				d.t.dropEntry(s, entryID)
			}
		}
	})
	return err
}

type recordStore struct{ t *tx }

func findOpen(s *state, studentID uuid.UUID) *model.CheckInRecord {
	for _, rec := range s.records {
		if rec.StudentID == studentID && rec.CheckedInAt == nil {
			c := rec
			return &c
		}
	}
	return nil
}

func (r recordStore) FindOpenByStudent(_ context.Context, studentID uuid.UUID) (rec *model.CheckInRecord, err error) {
	r.t.view(func(s *state) { rec = findOpen(s, studentID) })
	return rec, nil
}

func (r recordStore) CountOpenByDestination(_ context.Context, classroomID uuid.UUID, destination string) (count int, err error) {
	r.t.view(func(s *state) {
		for _, rec := range s.records {
			if rec.ClassroomID == classroomID && rec.CheckedInAt == nil && strings.EqualFold(rec.Destination, destination) {
				count++
			}
		}
	})
	return count, nil
}

func (r recordStore) ListOpenByClassroom(_ context.Context, classroomID uuid.UUID) ([]*model.CheckInRecord, error) {
	var out []*model.CheckInRecord
	r.t.view(func(s *state) {
		for _, rec := range s.records {
			if rec.ClassroomID == classroomID && rec.CheckedInAt == nil {
				c := rec
				out = append(out, &c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedOutAt.Before(out[j].CheckedOutAt) })
	return out, nil
}

func (r recordStore) Create(_ context.Context, rec *model.CheckInRecord) (err error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r.t.view(func(s *state) {
		if rec.CheckedInAt == nil && findOpen(s, rec.StudentID) != nil {
			err = repository.ErrDuplicate
			return
		}
		c := *rec
		c.CheckedInAt = copyTime(rec.CheckedInAt)
		r.t.putRecord(s, c)
	})
	return err
}

func (r recordStore) Close(_ context.Context, id uuid.UUID, checkedInAt time.Time, manualOverride bool) (err error) {
	r.t.view(func(s *state) {
		rec, ok := s.records[id]
		if !ok || rec.CheckedInAt != nil {
			err = errNotFound("open record")
			return
		}
		at := checkedInAt
		rec.CheckedInAt = &at
		rec.ManualOverride = rec.ManualOverride || manualOverride
		r.t.putRecord(s, rec)
	})
	return err
}

type waitlistStore struct{ t *tx }

func isActive(status model.WaitlistStatus) bool {
	return slices.Contains(model.ActiveWaitlistStatuses, status)
}

func entryLess(a, b *model.WaitListEntry) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func activeEntries(s *state, destinationID uuid.UUID) []*model.WaitListEntry {
	var out []*model.WaitListEntry
	for _, e := range s.entries {
		if e.DestinationID == destinationID && isActive(e.Status) {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return entryLess(out[i], out[j]) })
	return out
}

func findActive(s *state, studentID, classroomID uuid.UUID) *model.WaitListEntry {
	for _, e := range s.entries {
		if e.StudentID == studentID && e.ClassroomID == classroomID && isActive(e.Status) {
			return copyEntry(e)
		}
	}
	return nil
}

func (w waitlistStore) GetByID(_ context.Context, id uuid.UUID) (entry *model.WaitListEntry, err error) {
	w.t.view(func(s *state) {
		if e, ok := s.entries[id]; ok {
			entry = copyEntry(e)
		}
	})
	return entry, nil
}

func (w waitlistStore) FindActiveByStudent(_ context.Context, studentID, classroomID uuid.UUID) (entry *model.WaitListEntry, err error) {
	w.t.view(func(s *state) { entry = findActive(s, studentID, classroomID) })
	return entry, nil
}

func (w waitlistStore) CountByStatus(_ context.Context, destinationID uuid.UUID, status model.WaitlistStatus) (count int, err error) {
	w.t.view(func(s *state) {
		for _, e := range s.entries {
			if e.DestinationID == destinationID && e.Status == status {
				count++
			}
		}
	})
	return count, nil
}

func (w waitlistStore) MaxPosition(_ context.Context, destinationID uuid.UUID) (maxPosition int, err error) {
	w.t.view(func(s *state) {
		for _, e := range s.entries {
			if e.DestinationID == destinationID && isActive(e.Status) && e.Position > maxPosition {
				maxPosition = e.Position
			}
		}
	})
	return maxPosition, nil
}

func (w waitlistStore) FirstWaiting(_ context.Context, destinationID uuid.UUID) (entry *model.WaitListEntry, err error) {
	w.t.view(func(s *state) {
		for _, e := range activeEntries(s, destinationID) {
			if e.Status == model.WaitlistStatusWaiting {
				entry = e
				return
			}
		}
	})
	return entry, nil
}

func (w waitlistStore) ListActive(_ context.Context, destinationID uuid.UUID) (out []*model.WaitListEntry, err error) {
	w.t.view(func(s *state) { out = activeEntries(s, destinationID) })
	return out, nil
}

func (w waitlistStore) ListStale(_ context.Context, status model.WaitlistStatus, before time.Time) ([]*model.WaitListEntry, error) {
	var out []*model.WaitListEntry
	w.t.view(func(s *state) {
		for _, e := range s.entries {
			if e.Status != status {
				continue
			}
			at := e.UpdatedAt
			if status == model.WaitlistStatusApproved {
				if e.ApprovedAt == nil {
					continue
				}
				at = *e.ApprovedAt
			}
			if at.Before(before) {
				out = append(out, copyEntry(e))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DestinationID != out[j].DestinationID {
			return out[i].DestinationID.String() < out[j].DestinationID.String()
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (w waitlistStore) Create(_ context.Context, e *model.WaitListEntry) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	w.t.view(func(s *state) {
		if isActive(e.Status) && findActive(s, e.StudentID, e.ClassroomID) != nil {
			err = repository.ErrDuplicate
			return
		}
		w.t.putEntry(s, *copyEntry(*e))
	})
	return err
}

func (w waitlistStore) Update(_ context.Context, e *model.WaitListEntry) (err error) {
	w.t.view(func(s *state) {
		if _, ok := s.entries[e.ID]; !ok {
			err = errNotFound("entry")
			return
		}
		w.t.putEntry(s, *copyEntry(*e))
	})
	return err
}

func (w waitlistStore) Compact(_ context.Context, destinationID uuid.UUID) error {
	w.t.view(func(s *state) {
		for i, e := range activeEntries(s, destinationID) {
			stored := s.entries[e.ID]
			stored.Position = i + 1
			w.t.putEntry(s, stored)
		}
	})
	return nil
}

type notFoundError string

func (e notFoundError) Error() string { return string(e) + " not found" }

func errNotFound(what string) error { return notFoundError(what) }

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyDestination(d model.Destination) *model.Destination {
	d.Capacity = copyInt(d.Capacity)
	return &d
}

func copyEntry(e model.WaitListEntry) *model.WaitListEntry {
	e.ApprovedAt = copyTime(e.ApprovedAt)
	return &e
}
