// Package memory provides the "memory" store driver. State lives only as
// long as the process, which suits single-node and development runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{
		Snapshots: NewSnapshotRepository(),
		Events:    NewEventStore(clk),
		Closer:    store.CloserFunc(func() error { return nil }),
		Ping:      func(context.Context) error { return nil },
	}, nil
}

type SnapshotRepository struct {
	mu    sync.RWMutex
	rooms map[string]store.RoomSnapshot
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{rooms: make(map[string]store.RoomSnapshot)}
}

func (r *SnapshotRepository) LoadAll(_ context.Context) ([]store.RoomSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]store.RoomSnapshot, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, cloneSnapshot(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *SnapshotRepository) SaveAll(_ context.Context, snaps []store.RoomSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range snaps {
		if cur, ok := r.rooms[s.ID]; ok && !s.Supersedes(cur) {
			continue
		}
		r.rooms[s.ID] = cloneSnapshot(s)
	}
	return nil
}

func (r *SnapshotRepository) Delete(_ context.Context, roomIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range roomIDs {
		delete(r.rooms, id)
	}
	return nil
}

func cloneSnapshot(s store.RoomSnapshot) store.RoomSnapshot {
	s.Data = append([]byte(nil), s.Data...)
	return s
}

type EventStore struct {
	mu     sync.RWMutex
	clock  clock.Clock
	events []event.Event
}

func NewEventStore(clk clock.Clock) *EventStore {
	return &EventStore{clock: clk}
}

func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.clock.Now().UTC()
		}
		e.Data = append([]byte(nil), e.Data...)
		s.events = append(s.events, e)
	}
	return nil
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	return s.filter(func(e event.Event) bool { return e.AggregateID == aggregateID }), nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	return s.filter(func(e event.Event) bool { return e.Type == eventType }), nil
}

func (s *EventStore) filter(keep func(event.Event) bool) []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Event, 0)
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Version < out[j].Version
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
