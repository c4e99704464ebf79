package auction

import (
	"time"

	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/config"
)

// Rules are the limits a room is created with.
type Rules struct {
	TeamBudget     int64                `json:"team_budget"`
	MaxRoster      int                  `json:"max_roster"`
	TypeCycle      []catalog.Type       `json:"type_cycle"`
	BatchSizes     map[catalog.Type]int `json:"batch_sizes"`
	RegularTimeout time.Duration        `json:"regular_timeout"`
	BlindTimeout   time.Duration        `json:"blind_timeout"`
}

// RulesFromConfig converts validated auction configuration into Rules.
func RulesFromConfig(cfg config.AuctionConfig) Rules {
	r := Rules{
		TeamBudget:     cfg.TeamBudget,
		MaxRoster:      cfg.MaxRoster,
		BatchSizes:     make(map[catalog.Type]int, len(cfg.BatchSizes)),
		RegularTimeout: cfg.RegularTimeout,
		BlindTimeout:   cfg.BlindTimeout,
	}
	for _, t := range cfg.TypeCycle {
		r.TypeCycle = append(r.TypeCycle, catalog.Type(t))
	}
	for t, n := range cfg.BatchSizes {
		r.BatchSizes[catalog.Type(t)] = n
	}
	return r
}

func (r Rules) timeout(m Mode) time.Duration {
	if m == ModeBlind {
		return r.BlindTimeout
	}
	return r.RegularTimeout
}
