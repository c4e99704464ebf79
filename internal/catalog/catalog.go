// Package catalog holds the immutable player pool shared by every auction room.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Type is a player position type.
type Type string

const (
	Batter     Type = "BAT"
	AllRounder Type = "AR"
	Bowler     Type = "BOWL"
	Keeper     Type = "WK"
)

// Types lists every position type.
var Types = []Type{Batter, AllRounder, Bowler, Keeper}

// Valid reports whether t is a known position type.
func (t Type) Valid() bool {
	switch t {
	case Batter, AllRounder, Bowler, Keeper:
		return true
	}
	return false
}

// PlayerRecord is a single catalog entry. A nil BasePrice places the player
// in the blind pool.
type PlayerRecord struct {
	Name      string `yaml:"name" json:"name" validate:"required"`
	Team      string `yaml:"team" json:"team"`
	Type      Type   `yaml:"type" json:"type" validate:"required,oneof=BAT AR BOWL WK"`
	BasePrice *int64 `yaml:"base_price,omitempty" json:"base_price,omitempty" validate:"omitempty,gt=0"`
}

// Priced reports whether the player has a base price.
func (p PlayerRecord) Priced() bool { return p.BasePrice != nil }

// Catalog is the partitioned, read-only player pool. It is safe for
// concurrent use because nothing mutates it after New returns.
type Catalog struct {
	byName map[string]PlayerRecord
	blind  []PlayerRecord
	priced map[Type][]PlayerRecord
}

var validate = validator.New()

// New validates records and partitions them into the blind pool and the
// priced pools, each priced pool sorted by descending base price.
func New(records []PlayerRecord) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]PlayerRecord, len(records)),
		priced: make(map[Type][]PlayerRecord, len(Types)),
	}
	for i, r := range records {
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("player %d (%q): %w", i, r.Name, err)
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate player name %q", r.Name)
		}
		c.byName[r.Name] = r
		if r.Priced() {
			c.priced[r.Type] = append(c.priced[r.Type], r)
		} else {
			c.blind = append(c.blind, r)
		}
	}
	for _, list := range c.priced {
		// Stable so equal prices keep file order.
		sort.SliceStable(list, func(i, j int) bool {
			return *list[i].BasePrice > *list[j].BasePrice
		})
	}
	return c, nil
}

// Lookup returns the record for name.
func (c *Catalog) Lookup(name string) (PlayerRecord, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// Priced returns the priced pool for t in dispatch order. Callers must not
// modify the returned slice.
func (c *Catalog) Priced(t Type) []PlayerRecord { return c.priced[t] }

// Blind returns the blind pool. Callers must not modify the returned slice.
func (c *Catalog) Blind() []PlayerRecord { return c.blind }

// Len returns the total number of players.
func (c *Catalog) Len() int { return len(c.byName) }

type file struct {
	Players []PlayerRecord `yaml:"players"`
}

// Load reads a YAML player list from path and builds a Catalog from it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return New(f.Players)
}
