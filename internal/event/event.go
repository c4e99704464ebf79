package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	RoomCreated Type = "room.created"
	TeamJoined  Type = "room.team_joined"
	RoomExpired Type = "room.expired"

	PhaseChanged Type = "batch.phase_changed"

	SessionStarted Type = "session.started"
	BidPlaced      Type = "session.bid_placed"
	BlindBidCount  Type = "session.blind_bid_count"
	SessionClosed  Type = "session.closed"

	PlayerSold Type = "player.sold"
)

// Event is a single room event. It is both pushed to observers and appended
// to the room's history log.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RoomCreatedData is the payload for RoomCreated events.
type RoomCreatedData struct {
	Teams  []string `json:"teams"`
	Budget int64    `json:"budget"`
}

// TeamJoinedData is the payload for TeamJoined events.
type TeamJoinedData struct {
	Team   string `json:"team"`
	Budget int64  `json:"budget"`
}

// PhaseChangedData is the payload for PhaseChanged events.
type PhaseChangedData struct {
	Served          string   `json:"served"`
	Next            string   `json:"next"`
	Players         []string `json:"players"`
	BatchComplete   bool     `json:"batch_complete"`
	AuctionComplete bool     `json:"auction_complete"`
}

// SessionStartedData is the payload for SessionStarted events.
type SessionStartedData struct {
	Player   string        `json:"player"`
	Mode     string        `json:"mode"`
	Timeout  time.Duration `json:"timeout"`
	Implicit bool          `json:"implicit,omitempty"`
}

// BidPlacedData is the payload for BidPlaced events on open sessions.
type BidPlacedData struct {
	Player        string        `json:"player"`
	Team          string        `json:"team"`
	Amount        int64         `json:"amount"`
	BidCount      int           `json:"bid_count"`
	TimeRemaining time.Duration `json:"time_remaining"`
}

// BlindBidCountData is the payload for BlindBidCount events. Amounts are
// deliberately absent.
type BlindBidCountData struct {
	Player   string `json:"player"`
	BidCount int    `json:"bid_count"`
}

// SessionClosedData is the payload for SessionClosed events.
type SessionClosedData struct {
	Player string `json:"player"`
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

// PlayerSoldData is the payload for PlayerSold events.
type PlayerSoldData struct {
	Player string `json:"player"`
	Team   string `json:"team"`
	Price  int64  `json:"price"`
	Mode   string `json:"mode"`
	Budget int64  `json:"budget"`
}

// RoomExpiredData is the payload for RoomExpired events.
type RoomExpiredData struct {
	LastActivity time.Time `json:"last_activity"`
}
