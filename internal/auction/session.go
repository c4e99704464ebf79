package auction

import (
	"time"

	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/clock"
)

// SessionState is the lifecycle state of a bidding session.
type SessionState string

const (
	StateActive SessionState = "active"
	StateClosed SessionState = "closed"
	StateSold   SessionState = "sold"
)

// Bid is a single accepted bid. Bids are kept in admission order.
type Bid struct {
	Team   string    `json:"team"`
	Amount int64     `json:"amount"`
	Time   time.Time `json:"time"`
}

// session is the bidding process for one player in one mode.
type session struct {
	player    catalog.PlayerRecord
	mode      Mode
	state     SessionState
	bids      []Bid
	startedAt time.Time
	timeout   time.Duration
	closedAt  time.Time
	winner    *Bid
	reason    string

	timer clock.Timer
}

func newSession(p catalog.PlayerRecord, mode Mode, timeout time.Duration, now time.Time) *session {
	return &session{
		player:    p,
		mode:      mode,
		state:     StateActive,
		startedAt: now,
		timeout:   timeout,
	}
}

func (s *session) deadline() time.Time { return s.startedAt.Add(s.timeout) }

func (s *session) remaining(now time.Time) time.Duration {
	if s.state != StateActive {
		return 0
	}
	if d := s.deadline().Sub(now); d > 0 {
		return d
	}
	return 0
}

// highest returns the winning bid: the greatest amount, earliest on a tie.
func (s *session) highest() *Bid {
	var best *Bid
	for i := range s.bids {
		if best == nil || s.bids[i].Amount > best.Amount {
			best = &s.bids[i]
		}
	}
	return best
}

func (s *session) hasBidFrom(team string) bool {
	for _, b := range s.bids {
		if b.Team == team {
			return true
		}
	}
	return false
}

// admitRegular checks an open ascending bid against the session and the
// bidding team.
func (s *session) admitRegular(t *Team, amount int64, maxRoster int) error {
	if s.state != StateActive {
		return ErrSessionNotActive
	}
	if amount > t.Budget {
		return ErrBudgetExceeded
	}
	if len(t.Roster) >= maxRoster {
		return ErrRosterFull
	}
	if s.player.BasePrice != nil && amount < *s.player.BasePrice {
		return ErrBelowBasePrice
	}
	if amount <= 0 {
		return ErrBidTooLow
	}
	if h := s.highest(); h != nil && amount <= h.Amount {
		return ErrBidTooLow
	}
	return nil
}

// admitBlind checks a sealed bid. Each team gets exactly one.
func (s *session) admitBlind(t *Team, amount int64, maxRoster int) error {
	if s.state != StateActive {
		return ErrSessionNotActive
	}
	if s.hasBidFrom(t.Name) {
		return ErrDuplicateBid
	}
	if amount > t.Budget {
		return ErrBudgetExceeded
	}
	if len(t.Roster) >= maxRoster {
		return ErrRosterFull
	}
	if amount <= 0 {
		return ErrBidTooLow
	}
	return nil
}

func (s *session) addBid(team string, amount int64, now time.Time) {
	s.bids = append(s.bids, Bid{Team: team, Amount: amount, Time: now})
}

// cancelTimer stops the pending expiry. A timer that already fired or was
// already stopped is not an error.
func (s *session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *session) finish(state SessionState, winner *Bid, reason string, now time.Time) {
	s.state = state
	s.winner = winner
	s.reason = reason
	s.closedAt = now
	s.cancelTimer()
}
