package auction

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/event"
)

// Mode identifies how a player was bought or is being bid on.
type Mode string

const (
	ModeBatch   Mode = "batch"
	ModeRegular Mode = "regular"
	ModeBlind   Mode = "blind"
)

// ParseMode converts a user-supplied session mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeRegular, ModeBlind:
		return Mode(s), true
	}
	return "", false
}

// PurchasedPlayer is an immutable roster entry.
type PurchasedPlayer struct {
	catalog.PlayerRecord
	Price       int64     `json:"price"`
	PurchasedAt time.Time `json:"purchased_at"`
	Mode        Mode      `json:"mode"`
}

// Team is a bidder inside one room.
type Team struct {
	Name   string            `json:"name"`
	Budget int64             `json:"budget"`
	Roster []PurchasedPlayer `json:"roster"`
}

func (t *Team) view() TeamView {
	return TeamView{
		Name:   t.Name,
		Budget: t.Budget,
		Roster: append([]PurchasedPlayer(nil), t.Roster...),
	}
}

type sessionKey struct {
	player string
	mode   Mode
}

// room is the aggregate for one auction instance. Every field is guarded by
// mu; at most one operation mutates a room at a time.
type room struct {
	mu sync.Mutex

	id           string
	rules        Rules
	teams        map[string]*Team
	order        []string
	batch        *batchState
	sold         map[string]struct{}
	sessions     map[sessionKey]*session
	history      []*session
	createdAt    time.Time
	lastActivity time.Time
	version      int

	// removed is set when the room is swept; pending operations that
	// already hold a pointer must then fail with ErrRoomNotFound.
	removed bool
}

func newRoom(id string, rules Rules, now time.Time) *room {
	return &room{
		id:           id,
		rules:        rules,
		teams:        make(map[string]*Team),
		batch:        newBatchState(rules.TypeCycle),
		sold:         make(map[string]struct{}),
		sessions:     make(map[sessionKey]*session),
		createdAt:    now,
		lastActivity: now,
	}
}

// addTeam registers a team with the room's starting budget. It reports
// false if the team already exists.
func (r *room) addTeam(name string) (*Team, bool) {
	if t, ok := r.teams[name]; ok {
		return t, false
	}
	t := &Team{Name: name, Budget: r.rules.TeamBudget}
	r.teams[name] = t
	r.order = append(r.order, name)
	return t, true
}

func (r *room) team(name string) (*Team, error) {
	t, ok := r.teams[name]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return t, nil
}

func (r *room) isSold(player string) bool {
	_, ok := r.sold[player]
	return ok
}

// canAfford checks the purchase preconditions without mutating anything.
func (r *room) canAfford(t *Team, player string, price int64) error {
	if r.isSold(player) {
		return ErrPlayerAlreadySold
	}
	if price > t.Budget {
		return ErrBudgetExceeded
	}
	if len(t.Roster) >= r.rules.MaxRoster {
		return ErrRosterFull
	}
	return nil
}

// applyPurchase is the only place budgets are debited, rosters grow and
// players enter the sold registry. All three change together or not at all.
func (r *room) applyPurchase(t *Team, p catalog.PlayerRecord, price int64, mode Mode, now time.Time) error {
	if err := r.canAfford(t, p.Name, price); err != nil {
		return err
	}
	t.Budget -= price
	t.Roster = append(t.Roster, PurchasedPlayer{
		PlayerRecord: p,
		Price:        price,
		PurchasedAt:  now,
		Mode:         mode,
	})
	r.sold[p.Name] = struct{}{}
	return nil
}

// activeSession returns the active session for player in either mode.
func (r *room) activeSession(player string) *session {
	for _, m := range []Mode{ModeRegular, ModeBlind} {
		if s, ok := r.sessions[sessionKey{player, m}]; ok && s.state == StateActive {
			return s
		}
	}
	return nil
}

// putSession installs s in the live table, moving a terminal predecessor
// for the same key into history.
func (r *room) putSession(s *session) {
	k := sessionKey{s.player.Name, s.mode}
	if old, ok := r.sessions[k]; ok {
		r.history = append(r.history, old)
	}
	r.sessions[k] = s
}

func (r *room) newEvent(t event.Type, payload any, now time.Time) event.Event {
	data, _ := json.Marshal(payload)
	r.version++
	return event.Event{
		AggregateID: r.id,
		Type:        t,
		Data:        data,
		Version:     r.version,
		CreatedAt:   now,
	}
}
