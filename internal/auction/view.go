package auction

import (
	"sort"
	"time"

	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/event"
)

// TeamView is a copy of a team's ledger entry.
type TeamView struct {
	Name   string            `json:"name"`
	Budget int64             `json:"budget"`
	Roster []PurchasedPlayer `json:"roster"`
}

// SessionView is what an observer may see of a session. For an active blind
// session Bids holds only the viewer's own bid and HighBid is nil.
type SessionView struct {
	Player        string        `json:"player"`
	Type          catalog.Type  `json:"type"`
	Mode          Mode          `json:"mode"`
	State         SessionState  `json:"state"`
	BidCount      int           `json:"bid_count"`
	Bids          []Bid         `json:"bids,omitempty"`
	HighBid       *int64        `json:"high_bid,omitempty"`
	HighBidder    string        `json:"high_bidder,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	TimeRemaining time.Duration `json:"time_remaining"`
	ClosedAt      time.Time     `json:"closed_at,omitempty"`
	Winner        string        `json:"winner,omitempty"`
	Price         int64         `json:"price,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// RoomView is a point-in-time copy of a room.
type RoomView struct {
	ID              string        `json:"id"`
	Teams           []TeamView    `json:"teams"`
	Sold            []string      `json:"sold"`
	Sessions        []SessionView `json:"sessions"`
	Dispatched      int           `json:"dispatched"`
	NextType        catalog.Type  `json:"next_type"`
	AuctionComplete bool          `json:"auction_complete"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActivity    time.Time     `json:"last_activity"`
}

// HistoryView lists finished sessions with every bid disclosed, plus the
// room's persisted event log.
type HistoryView struct {
	Room     string        `json:"room"`
	Sessions []SessionView `json:"sessions"`
	Events   []event.Event `json:"events"`
}

// Outcome is returned by every mutating operation: whatever the operation
// touched, plus the events it emitted.
type Outcome struct {
	Room    string        `json:"room"`
	Team    *TeamView     `json:"team,omitempty"`
	Session *SessionView  `json:"session,omitempty"`
	Batch   *Batch        `json:"batch,omitempty"`
	Events  []event.Event `json:"events"`
}

// view renders s for viewer. An empty viewer sees no sealed amounts at all.
func (s *session) view(viewer string, now time.Time) SessionView {
	v := SessionView{
		Player:        s.player.Name,
		Type:          s.player.Type,
		Mode:          s.mode,
		State:         s.state,
		BidCount:      len(s.bids),
		StartedAt:     s.startedAt,
		TimeRemaining: s.remaining(now),
		ClosedAt:      s.closedAt,
		Reason:        s.reason,
	}
	if s.winner != nil {
		v.Winner = s.winner.Team
		v.Price = s.winner.Amount
	}

	sealed := s.mode == ModeBlind && s.state == StateActive
	if sealed {
		for _, b := range s.bids {
			if viewer != "" && b.Team == viewer {
				v.Bids = append(v.Bids, b)
			}
		}
		return v
	}

	v.Bids = append([]Bid(nil), s.bids...)
	if h := s.highest(); h != nil {
		amount := h.Amount
		v.HighBid = &amount
		v.HighBidder = h.Team
	}
	return v
}

func (r *room) view(cat *catalog.Catalog, viewer string, now time.Time) *RoomView {
	v := &RoomView{
		ID:           r.id,
		Dispatched:   len(r.batch.dispatched),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}
	for _, name := range r.order {
		v.Teams = append(v.Teams, r.teams[name].view())
	}
	for name := range r.sold {
		v.Sold = append(v.Sold, name)
	}
	sort.Strings(v.Sold)

	for _, s := range r.sortedSessions() {
		v.Sessions = append(v.Sessions, s.view(viewer, now))
	}

	if r.batch.completed {
		v.AuctionComplete = true
	} else if !r.batch.allExhausted(cat) {
		v.NextType = r.batch.cycle[r.batch.current(cat)]
	}
	return v
}

// sortedSessions returns the live table ordered by start time.
func (r *room) sortedSessions() []*session {
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].startedAt.Equal(out[j].startedAt) {
			return out[i].player.Name < out[j].player.Name
		}
		return out[i].startedAt.Before(out[j].startedAt)
	})
	return out
}
