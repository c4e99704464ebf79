package auction

import (
	"github.com/jensholdgaard/player-auction/internal/catalog"
)

// Batch is the result of one dispatch step.
type Batch struct {
	Players []catalog.PlayerRecord `json:"players"`
	// Served is the type this batch was drawn from.
	Served catalog.Type `json:"served"`
	// Next is the type the following call will serve, empty once every
	// type is exhausted.
	Next catalog.Type `json:"next"`
	// BatchComplete reports that Served ran out during this call.
	BatchComplete bool `json:"batch_complete"`
	// AuctionComplete reports that every type is exhausted and nothing
	// was returned.
	AuctionComplete bool `json:"auction_complete"`
}

// batchState is a room's cursor over the priced catalog.
type batchState struct {
	cycle      []catalog.Type
	index      int
	pointers   map[catalog.Type]int
	dispatched map[string]struct{}
	completed  bool
}

func newBatchState(cycle []catalog.Type) *batchState {
	return &batchState{
		cycle:      append([]catalog.Type(nil), cycle...),
		pointers:   make(map[catalog.Type]int, len(cycle)),
		dispatched: make(map[string]struct{}),
	}
}

func (b *batchState) exhausted(cat *catalog.Catalog, t catalog.Type) bool {
	return b.pointers[t] >= len(cat.Priced(t))
}

func (b *batchState) allExhausted(cat *catalog.Catalog) bool {
	for _, t := range b.cycle {
		if !b.exhausted(cat, t) {
			return false
		}
	}
	return true
}

// current returns the cycle index of the first non-exhausted type at or
// after b.index. When every type is exhausted it returns b.index.
func (b *batchState) current(cat *catalog.Catalog) int {
	n := len(b.cycle)
	for i := 0; i < n; i++ {
		idx := (b.index + i) % n
		if !b.exhausted(cat, b.cycle[idx]) {
			return idx
		}
	}
	return b.index
}

// next collects up to sizes[T] undispatched players of the current type T,
// advancing T's pointer past every player it visits.
func (b *batchState) next(cat *catalog.Catalog, sizes map[catalog.Type]int) (Batch, error) {
	if b.completed || len(b.cycle) == 0 {
		return Batch{AuctionComplete: true}, ErrAuctionComplete
	}

	b.index = b.current(cat)
	t := b.cycle[b.index]
	list := cat.Priced(t)
	p := b.pointers[t]

	var players []catalog.PlayerRecord
	for p < len(list) && len(players) < sizes[t] {
		rec := list[p]
		p++
		if _, seen := b.dispatched[rec.Name]; seen {
			continue
		}
		b.dispatched[rec.Name] = struct{}{}
		players = append(players, rec)
	}
	b.pointers[t] = p

	res := Batch{
		Players:       players,
		Served:        t,
		BatchComplete: p >= len(list),
	}
	if res.BatchComplete || len(players) == 0 {
		b.index = (b.index + 1) % len(b.cycle)
	}
	if b.allExhausted(cat) {
		if len(players) == 0 {
			b.completed = true
			res.AuctionComplete = true
		}
		return res, nil
	}
	res.Next = b.cycle[b.current(cat)]
	return res, nil
}
