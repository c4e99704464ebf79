package auction

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// Snapshot is the serialized form of a room. Sets are stored as sorted
// slices; order carries no meaning.
type Snapshot struct {
	ID           string            `json:"id"`
	Version      int               `json:"version"`
	Rules        Rules             `json:"rules"`
	Teams        []Team            `json:"teams"`
	Batch        BatchSnapshot     `json:"batch"`
	Sold         []string          `json:"sold"`
	Sessions     []SessionSnapshot `json:"sessions"`
	History      []SessionSnapshot `json:"history"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// BatchSnapshot is the serialized dispatcher cursor.
type BatchSnapshot struct {
	Index      int                  `json:"index"`
	Pointers   map[catalog.Type]int `json:"pointers"`
	Dispatched []string             `json:"dispatched"`
	Completed  bool                 `json:"completed"`
}

// SessionSnapshot is the serialized form of a session.
type SessionSnapshot struct {
	Player    catalog.PlayerRecord `json:"player"`
	Mode      Mode                 `json:"mode"`
	State     SessionState         `json:"state"`
	Bids      []Bid                `json:"bids"`
	StartedAt time.Time            `json:"started_at"`
	Timeout   time.Duration        `json:"timeout"`
	ClosedAt  time.Time            `json:"closed_at,omitempty"`
	Winner    *Bid                 `json:"winner,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sliceToSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func (s *session) snapshot() SessionSnapshot {
	ss := SessionSnapshot{
		Player:    s.player,
		Mode:      s.mode,
		State:     s.state,
		Bids:      append([]Bid(nil), s.bids...),
		StartedAt: s.startedAt,
		Timeout:   s.timeout,
		ClosedAt:  s.closedAt,
		Reason:    s.reason,
	}
	if s.winner != nil {
		w := *s.winner
		ss.Winner = &w
	}
	return ss
}

func restoreSession(ss SessionSnapshot) *session {
	s := &session{
		player:    ss.Player,
		mode:      ss.Mode,
		state:     ss.State,
		bids:      append([]Bid(nil), ss.Bids...),
		startedAt: ss.StartedAt,
		timeout:   ss.Timeout,
		closedAt:  ss.ClosedAt,
		reason:    ss.Reason,
	}
	if ss.Winner != nil {
		w := *ss.Winner
		s.winner = &w
	}
	return s
}

// snapshot captures r. The caller must hold r.mu.
func (r *room) snapshot() Snapshot {
	snap := Snapshot{
		ID:      r.id,
		Version: r.version,
		Rules:   r.rules,
		Batch: BatchSnapshot{
			Index:      r.batch.index,
			Pointers:   make(map[catalog.Type]int, len(r.batch.pointers)),
			Dispatched: setToSlice(r.batch.dispatched),
			Completed:  r.batch.completed,
		},
		Sold:         setToSlice(r.sold),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}
	for t, p := range r.batch.pointers {
		snap.Batch.Pointers[t] = p
	}
	for _, name := range r.order {
		t := r.teams[name]
		snap.Teams = append(snap.Teams, Team{
			Name:   t.Name,
			Budget: t.Budget,
			Roster: append([]PurchasedPlayer(nil), t.Roster...),
		})
	}
	for _, s := range r.sortedSessions() {
		snap.Sessions = append(snap.Sessions, s.snapshot())
	}
	for _, s := range r.history {
		snap.History = append(snap.History, s.snapshot())
	}
	return snap
}

// restoreRoom rebuilds a room from snap. Timers are not armed.
func restoreRoom(snap Snapshot) (*room, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("snapshot has no room id")
	}
	r := newRoom(snap.ID, snap.Rules, snap.CreatedAt)
	r.version = snap.Version
	r.lastActivity = snap.LastActivity
	for _, t := range snap.Teams {
		team, _ := r.addTeam(t.Name)
		team.Budget = t.Budget
		team.Roster = append([]PurchasedPlayer(nil), t.Roster...)
	}
	r.batch.index = snap.Batch.Index
	for t, p := range snap.Batch.Pointers {
		r.batch.pointers[t] = p
	}
	r.batch.dispatched = sliceToSet(snap.Batch.Dispatched)
	r.batch.completed = snap.Batch.Completed
	r.sold = sliceToSet(snap.Sold)
	for _, ss := range snap.Sessions {
		s := restoreSession(ss)
		r.sessions[sessionKey{s.player.Name, s.mode}] = s
	}
	for _, ss := range snap.History {
		r.history = append(r.history, restoreSession(ss))
	}
	return r, nil
}

// EncodeSnapshot converts snap into its stored form.
func EncodeSnapshot(snap Snapshot, now time.Time) (store.RoomSnapshot, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return store.RoomSnapshot{}, fmt.Errorf("encoding room %s: %w", snap.ID, err)
	}
	return store.RoomSnapshot{
		ID:        snap.ID,
		Version:   snap.Version,
		Data:      data,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: now,
	}, nil
}

// DecodeSnapshot parses a stored snapshot.
func DecodeSnapshot(rs store.RoomSnapshot) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(rs.Data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding room %s: %w", rs.ID, err)
	}
	return snap, nil
}
