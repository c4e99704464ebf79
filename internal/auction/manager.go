package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

const instrumentationName = "github.com/jensholdgaard/player-auction/internal/auction"

// Notifier receives the events of every committed room mutation, including
// those produced by timer expiry.
type Notifier interface {
	Notify(ctx context.Context, roomID string, events []event.Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, string, []event.Event) {}

// Manager is the room registry. It serializes mutations per room and owns
// session timers.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*room

	cat               *catalog.Catalog
	rules             Rules
	inactivityTimeout time.Duration

	snapshots store.SnapshotRepository
	events    event.Store
	notifier  Notifier
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     clock.Clock
	metrics   *metrics

	// pmu serializes snapshot writes. pending holds snapshots not yet
	// written; deletes holds swept rooms whose rows still exist.
	pmu     sync.Mutex
	pending map[string]store.RoomSnapshot
	deletes map[string]struct{}
}

// NewManager creates a new room Manager.
func NewManager(
	cat *catalog.Catalog,
	rules Rules,
	inactivityTimeout time.Duration,
	snapshots store.SnapshotRepository,
	events event.Store,
	notifier Notifier,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	clk clock.Clock,
) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Manager{
		rooms:             make(map[string]*room),
		cat:               cat,
		rules:             rules,
		inactivityTimeout: inactivityTimeout,
		snapshots:         snapshots,
		events:            events,
		notifier:          notifier,
		logger:            logger,
		tracer:            tp.Tracer(instrumentationName),
		clock:             clk,
		metrics:           newMetrics(mp.Meter(instrumentationName), logger),
		pending:           make(map[string]store.RoomSnapshot),
		deletes:           make(map[string]struct{}),
	}
}

func (m *Manager) now() time.Time {
	// Postgres keeps microseconds; truncating keeps stored and in-memory
	// timestamps comparable.
	return m.clock.Now().UTC().Truncate(time.Microsecond)
}

func (m *Manager) lookup(id string) (*room, error) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// mutate runs fn with the room locked. On success the room's activity time
// is bumped, and its events and snapshot are committed after the lock is
// released.
func (m *Manager) mutate(ctx context.Context, roomID string, fn func(r *room, now time.Time) (*Outcome, error)) (*Outcome, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	now := m.now()
	out, err := fn(r, now)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.lastActivity = now
	out.Room = r.id
	snap := r.snapshot()
	r.mu.Unlock()

	m.commit(ctx, roomID, out.Events, &snap)
	return out, nil
}

// commit appends events to the log, writes the snapshot and notifies
// observers. Persistence failures are logged; the in-memory state stays
// authoritative and the snapshot is retried on the next commit or sweep.
func (m *Manager) commit(ctx context.Context, roomID string, events []event.Event, snap *Snapshot) {
	if len(events) > 0 {
		if err := m.events.Append(ctx, events...); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist room events",
				slog.String("room_id", roomID),
				slog.Int("count", len(events)),
				slog.Any("error", err),
			)
		}
	}
	if snap != nil {
		m.stage(ctx, *snap)
		_ = m.Flush(ctx)
	}
	if len(events) > 0 {
		m.notifier.Notify(ctx, roomID, events)
	}
}

func (m *Manager) stage(ctx context.Context, snap Snapshot) {
	rs, err := EncodeSnapshot(snap, m.now())
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to encode room snapshot",
			slog.String("room_id", snap.ID),
			slog.Any("error", err),
		)
		return
	}
	m.pmu.Lock()
	defer m.pmu.Unlock()
	if cur, ok := m.pending[rs.ID]; ok && !rs.Supersedes(cur) {
		return
	}
	m.pending[rs.ID] = rs
	delete(m.deletes, rs.ID)
}

// Flush writes every pending snapshot and deletion.
func (m *Manager) Flush(ctx context.Context) error {
	m.pmu.Lock()
	defer m.pmu.Unlock()

	if len(m.deletes) > 0 {
		ids := setToSlice(m.deletes)
		if err := m.snapshots.Delete(ctx, ids...); err != nil {
			m.logger.ErrorContext(ctx, "failed to delete room snapshots",
				slog.Any("room_ids", ids),
				slog.Any("error", err),
			)
			return fmt.Errorf("deleting snapshots: %w", err)
		}
		clear(m.deletes)
	}

	if len(m.pending) == 0 {
		return nil
	}
	batch := make([]store.RoomSnapshot, 0, len(m.pending))
	for _, rs := range m.pending {
		batch = append(batch, rs)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

	if err := m.snapshots.SaveAll(ctx, batch); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist room snapshots",
			slog.Int("pending", len(batch)),
			slog.Any("error", err),
		)
		return fmt.Errorf("saving snapshots: %w", err)
	}
	clear(m.pending)
	return nil
}

// PendingSnapshots returns the number of rooms whose latest state has not
// been written yet.
func (m *Manager) PendingSnapshots() int {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	return len(m.pending) + len(m.deletes)
}

// CreateRoom registers a new room with the given teams.
func (m *Manager) CreateRoom(ctx context.Context, roomID string, teams []string) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateRoom",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.Int("teams", len(teams)),
		),
	)
	defer span.End()

	if roomID == "" {
		return nil, fmt.Errorf("room id is required")
	}

	now := m.now()
	r := newRoom(roomID, m.rules, now)
	for _, name := range teams {
		if name == "" {
			return nil, fmt.Errorf("team name is required")
		}
		r.addTeam(name)
	}

	m.mu.Lock()
	if _, exists := m.rooms[roomID]; exists {
		m.mu.Unlock()
		return nil, ErrRoomAlreadyExists
	}
	m.rooms[roomID] = r
	m.mu.Unlock()

	r.mu.Lock()
	evt := r.newEvent(event.RoomCreated, event.RoomCreatedData{
		Teams:  append([]string(nil), r.order...),
		Budget: r.rules.TeamBudget,
	}, now)
	snap := r.snapshot()
	r.mu.Unlock()

	m.metrics.rooms.Add(ctx, 1)
	m.commit(ctx, roomID, []event.Event{evt}, &snap)

	m.logger.InfoContext(ctx, "room created",
		slog.String("room_id", roomID),
		slog.Int("teams", len(snap.Teams)),
	)
	return &Outcome{Room: roomID, Events: []event.Event{evt}}, nil
}

// JoinRoom adds a team to an existing room. Joining twice returns the
// existing team unchanged.
func (m *Manager) JoinRoom(ctx context.Context, roomID, team string) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.JoinRoom",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("team", team),
		),
	)
	defer span.End()

	if team == "" {
		return nil, fmt.Errorf("team name is required")
	}

	return m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		t, added := r.addTeam(team)
		tv := t.view()
		out := &Outcome{Team: &tv}
		if added {
			out.Events = append(out.Events, r.newEvent(event.TeamJoined, event.TeamJoinedData{
				Team:   t.Name,
				Budget: t.Budget,
			}, now))
			m.logger.InfoContext(ctx, "team joined",
				slog.String("room_id", roomID),
				slog.String("team", team),
			)
		}
		return out, nil
	})
}

// RequestNextBatch releases the next batch of priced players.
func (m *Manager) RequestNextBatch(ctx context.Context, roomID string) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.RequestNextBatch",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	return m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		b, err := r.batch.next(m.cat, r.rules.BatchSizes)
		if err != nil {
			return nil, err
		}

		names := make([]string, 0, len(b.Players))
		for _, p := range b.Players {
			names = append(names, p.Name)
		}
		evt := r.newEvent(event.PhaseChanged, event.PhaseChangedData{
			Served:          string(b.Served),
			Next:            string(b.Next),
			Players:         names,
			BatchComplete:   b.BatchComplete,
			AuctionComplete: b.AuctionComplete,
		}, now)

		m.metrics.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(b.Served))))
		span.SetAttributes(
			attribute.String("batch.served", string(b.Served)),
			attribute.Int("batch.size", len(b.Players)),
		)
		m.logger.InfoContext(ctx, "batch dispatched",
			slog.String("room_id", roomID),
			slog.String("type", string(b.Served)),
			slog.Int("players", len(b.Players)),
			slog.Bool("batch_complete", b.BatchComplete),
			slog.Bool("auction_complete", b.AuctionComplete),
		)
		return &Outcome{Batch: &b, Events: []event.Event{evt}}, nil
	})
}

// StartRegular opens an ascending session for a priced player.
func (m *Manager) StartRegular(ctx context.Context, roomID, player string) (*Outcome, error) {
	return m.start(ctx, roomID, player, ModeRegular)
}

// StartBlind opens a sealed session for a blind-pool player.
func (m *Manager) StartBlind(ctx context.Context, roomID, player string) (*Outcome, error) {
	return m.start(ctx, roomID, player, ModeBlind)
}

func (m *Manager) start(ctx context.Context, roomID, player string, mode Mode) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.StartSession",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("player", player),
			attribute.String("mode", string(mode)),
		),
	)
	defer span.End()

	return m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		rec, err := m.sessionPlayer(player, mode)
		if err != nil {
			return nil, err
		}
		s, evt, err := m.openSession(ctx, r, rec, mode, false, now)
		if err != nil {
			return nil, err
		}
		sv := s.view("", now)
		return &Outcome{Session: &sv, Events: []event.Event{evt}}, nil
	})
}

// sessionPlayer resolves a player eligible for a session of mode: priced
// players for regular sessions, blind-pool players for blind ones.
func (m *Manager) sessionPlayer(name string, mode Mode) (catalog.PlayerRecord, error) {
	rec, ok := m.cat.Lookup(name)
	if !ok {
		return catalog.PlayerRecord{}, ErrPlayerNotFound
	}
	if (mode == ModeRegular) != rec.Priced() {
		return catalog.PlayerRecord{}, ErrPlayerNotFound
	}
	return rec, nil
}

// openSession creates an active session and arms its timer. The caller must
// hold r.mu.
func (m *Manager) openSession(ctx context.Context, r *room, rec catalog.PlayerRecord, mode Mode, implicit bool, now time.Time) (*session, event.Event, error) {
	if r.isSold(rec.Name) {
		return nil, event.Event{}, ErrPlayerAlreadySold
	}
	if r.activeSession(rec.Name) != nil {
		return nil, event.Event{}, ErrSessionAlreadyActive
	}

	s := newSession(rec, mode, r.rules.timeout(mode), now)
	r.putSession(s)
	m.arm(r, s, now)

	evt := r.newEvent(event.SessionStarted, event.SessionStartedData{
		Player:   rec.Name,
		Mode:     string(mode),
		Timeout:  s.timeout,
		Implicit: implicit,
	}, now)

	m.logger.InfoContext(ctx, "bidding session started",
		slog.String("room_id", r.id),
		slog.String("player", rec.Name),
		slog.String("mode", string(mode)),
		slog.Duration("timeout", s.timeout),
	)
	return s, evt, nil
}

// arm schedules s to resolve at its deadline. The caller must hold r.mu.
func (m *Manager) arm(r *room, s *session, now time.Time) {
	roomID := r.id
	s.timer = m.clock.AfterFunc(s.remaining(now), func() {
		m.expire(roomID, s)
	})
}

// expire is the timer callback. It re-enters the room lock and is a no-op
// if the session was already resolved or the room swept.
func (m *Manager) expire(roomID string, s *session) {
	ctx, span := m.tracer.Start(context.Background(), "Manager.expire",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("player", s.player.Name),
		),
	)
	defer span.End()

	r, err := m.lookup(roomID)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.removed || s.state != StateActive {
		r.mu.Unlock()
		return
	}
	events := m.resolve(ctx, r, s, m.now())
	snap := r.snapshot()
	r.mu.Unlock()

	m.commit(ctx, roomID, events, &snap)
}

// resolve ends an active session. The highest bid wins if, at this moment,
// the team can still afford it and has roster space; otherwise the session
// closes without a sale. Resolving a terminal session does nothing. The
// caller must hold r.mu.
func (m *Manager) resolve(ctx context.Context, r *room, s *session, now time.Time) []event.Event {
	s.cancelTimer()
	if s.state != StateActive {
		return nil
	}

	h := s.highest()
	if h == nil {
		s.finish(StateClosed, nil, "no bids", now)
		m.metrics.finished(ctx, s)
		return []event.Event{m.closedEvent(ctx, r, s, now)}
	}

	winner := *h
	t, err := r.team(winner.Team)
	if err == nil {
		err = r.applyPurchase(t, s.player, winner.Amount, s.mode, now)
	}
	if err != nil {
		s.finish(StateClosed, nil, fmt.Sprintf("winning bid from %s void: %s", winner.Team, err), now)
		m.metrics.finished(ctx, s)
		return []event.Event{m.closedEvent(ctx, r, s, now)}
	}

	s.finish(StateSold, &winner, "", now)
	m.metrics.finished(ctx, s)
	m.metrics.sold(ctx, s.mode, winner.Amount)
	m.logger.InfoContext(ctx, "player sold",
		slog.String("room_id", r.id),
		slog.String("player", s.player.Name),
		slog.String("team", winner.Team),
		slog.Int64("price", winner.Amount),
		slog.String("mode", string(s.mode)),
	)
	return []event.Event{r.newEvent(event.PlayerSold, event.PlayerSoldData{
		Player: s.player.Name,
		Team:   winner.Team,
		Price:  winner.Amount,
		Mode:   string(s.mode),
		Budget: t.Budget,
	}, now)}
}

func (m *Manager) closedEvent(ctx context.Context, r *room, s *session, now time.Time) event.Event {
	m.logger.InfoContext(ctx, "bidding session closed without sale",
		slog.String("room_id", r.id),
		slog.String("player", s.player.Name),
		slog.String("reason", s.reason),
	)
	return r.newEvent(event.SessionClosed, event.SessionClosedData{
		Player: s.player.Name,
		Mode:   string(s.mode),
		Reason: s.reason,
	}, now)
}

// PlaceRegularBid places an open ascending bid. The session must already be
// active.
func (m *Manager) PlaceRegularBid(ctx context.Context, roomID, player, team string, amount int64) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceRegularBid",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("player", player),
			attribute.String("team", team),
			attribute.Int64("bid.amount", amount),
		),
	)
	defer span.End()

	out, err := m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		t, err := r.team(team)
		if err != nil {
			return nil, err
		}
		if _, ok := m.cat.Lookup(player); !ok {
			return nil, ErrPlayerNotFound
		}
		if r.isSold(player) {
			return nil, ErrPlayerAlreadySold
		}
		s, ok := r.sessions[sessionKey{player, ModeRegular}]
		if !ok {
			return nil, ErrSessionNotActive
		}
		if err := s.admitRegular(t, amount, r.rules.MaxRoster); err != nil {
			return nil, err
		}
		s.addBid(team, amount, now)

		evt := r.newEvent(event.BidPlaced, event.BidPlacedData{
			Player:        player,
			Team:          team,
			Amount:        amount,
			BidCount:      len(s.bids),
			TimeRemaining: s.remaining(now),
		}, now)
		m.metrics.bids.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(ModeRegular))))
		m.logger.InfoContext(ctx, "bid placed",
			slog.String("room_id", roomID),
			slog.String("player", player),
			slog.String("team", team),
			slog.Int64("amount", amount),
		)
		sv := s.view(team, now)
		return &Outcome{Session: &sv, Events: []event.Event{evt}}, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// PlaceBlindBid places a sealed bid. A first bid on a blind-pool player with
// no active session opens one.
func (m *Manager) PlaceBlindBid(ctx context.Context, roomID, player, team string, amount int64) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBlindBid",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("player", player),
			attribute.String("team", team),
		),
	)
	defer span.End()

	out, err := m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		t, err := r.team(team)
		if err != nil {
			return nil, err
		}
		rec, err := m.sessionPlayer(player, ModeBlind)
		if err != nil {
			return nil, err
		}
		if r.isSold(player) {
			return nil, ErrPlayerAlreadySold
		}

		var events []event.Event
		s, ok := r.sessions[sessionKey{player, ModeBlind}]
		implicit := !ok || s.state != StateActive
		if implicit {
			// Validate against a scratch session first so a rejected
			// bid does not leave a new session behind.
			probe := newSession(rec, ModeBlind, 0, now)
			if err := probe.admitBlind(t, amount, r.rules.MaxRoster); err != nil {
				return nil, err
			}
			var started event.Event
			s, started, err = m.openSession(ctx, r, rec, ModeBlind, true, now)
			if err != nil {
				return nil, err
			}
			events = append(events, started)
		} else if err := s.admitBlind(t, amount, r.rules.MaxRoster); err != nil {
			return nil, err
		}
		s.addBid(team, amount, now)

		events = append(events, r.newEvent(event.BlindBidCount, event.BlindBidCountData{
			Player:   player,
			BidCount: len(s.bids),
		}, now))
		m.metrics.bids.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(ModeBlind))))
		m.logger.InfoContext(ctx, "blind bid placed",
			slog.String("room_id", roomID),
			slog.String("player", player),
			slog.String("team", team),
			slog.Int("bid_count", len(s.bids)),
		)
		sv := s.view(team, now)
		return &Outcome{Session: &sv, Events: events}, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// CloseSession resolves a session immediately, cancelling its timer. Closing
// a session that already ended returns it unchanged.
func (m *Manager) CloseSession(ctx context.Context, roomID, player string, mode Mode) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CloseSession",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("player", player),
			attribute.String("mode", string(mode)),
		),
	)
	defer span.End()

	return m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		s, ok := r.sessions[sessionKey{player, mode}]
		if !ok {
			return nil, ErrSessionNotActive
		}
		events := m.resolve(ctx, r, s, now)
		sv := s.view("", now)
		return &Outcome{Session: &sv, Events: events}, nil
	})
}

// Purchase sells a player directly to a team at price, bypassing bidding.
// Any active session on the player is closed without a sale.
func (m *Manager) Purchase(ctx context.Context, roomID, team, player string, price int64) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Purchase",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("player", player),
			attribute.String("team", team),
			attribute.Int64("price", price),
		),
	)
	defer span.End()

	return m.mutate(ctx, roomID, func(r *room, now time.Time) (*Outcome, error) {
		t, err := r.team(team)
		if err != nil {
			return nil, err
		}
		rec, ok := m.cat.Lookup(player)
		if !ok {
			return nil, ErrPlayerNotFound
		}
		if err := r.canAfford(t, player, price); err != nil {
			return nil, err
		}
		if rec.BasePrice != nil && price < *rec.BasePrice {
			return nil, ErrBelowBasePrice
		}

		var events []event.Event
		if s := r.activeSession(player); s != nil {
			s.finish(StateClosed, nil, "sold by direct purchase", now)
			m.metrics.finished(ctx, s)
			events = append(events, m.closedEvent(ctx, r, s, now))
		}
		if err := r.applyPurchase(t, rec, price, ModeBatch, now); err != nil {
			return nil, err
		}
		events = append(events, r.newEvent(event.PlayerSold, event.PlayerSoldData{
			Player: player,
			Team:   team,
			Price:  price,
			Mode:   string(ModeBatch),
			Budget: t.Budget,
		}, now))

		m.metrics.sold(ctx, ModeBatch, price)
		m.logger.InfoContext(ctx, "player purchased",
			slog.String("room_id", roomID),
			slog.String("player", player),
			slog.String("team", team),
			slog.Int64("price", price),
		)
		tv := t.view()
		return &Outcome{Team: &tv, Events: events}, nil
	})
}

// Room returns the state of a room as seen by viewer. Pass an empty viewer
// for an observer that belongs to no team.
func (m *Manager) Room(ctx context.Context, roomID, viewer string) (*RoomView, error) {
	_, span := m.tracer.Start(ctx, "Manager.Room",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	r, err := m.lookup(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return nil, ErrRoomNotFound
	}
	return r.view(m.cat, viewer, m.now()), nil
}

// History returns every finished session of a room with all bids disclosed,
// along with the room's event log.
func (m *Manager) History(ctx context.Context, roomID string) (*HistoryView, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.History",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	r, err := m.lookup(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	now := m.now()
	createdAt := r.createdAt
	hv := &HistoryView{Room: r.id}
	finished := append([]*session(nil), r.history...)
	for _, s := range r.sortedSessions() {
		if s.state != StateActive {
			finished = append(finished, s)
		}
	}
	sort.SliceStable(finished, func(i, j int) bool { return finished[i].closedAt.Before(finished[j].closedAt) })
	for _, s := range finished {
		hv.Sessions = append(hv.Sessions, s.view("", now))
	}
	r.mu.Unlock()

	events, err := m.events.Load(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("loading room events: %w", err)
	}
	// An earlier room may have used the same id.
	for _, e := range events {
		if !e.CreatedAt.Before(createdAt) {
			hv.Events = append(hv.Events, e)
		}
	}
	return hv, nil
}

// Rooms returns the ids of all live rooms.
func (m *Manager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SweepInactiveRooms discards rooms idle for longer than the inactivity
// timeout as of now, and returns their ids.
func (m *Manager) SweepInactiveRooms(ctx context.Context, now time.Time) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SweepInactiveRooms")
	defer span.End()

	type expiredRoom struct {
		id    string
		event event.Event
	}
	var expired []expiredRoom

	m.mu.Lock()
	for id, r := range m.rooms {
		r.mu.Lock()
		if now.Sub(r.lastActivity) > m.inactivityTimeout {
			r.removed = true
			for _, s := range r.sessions {
				s.cancelTimer()
			}
			expired = append(expired, expiredRoom{
				id:    id,
				event: r.newEvent(event.RoomExpired, event.RoomExpiredData{LastActivity: r.lastActivity}, now),
			})
			delete(m.rooms, id)
		}
		r.mu.Unlock()
	}
	m.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].id < expired[j].id })
	ids := make([]string, 0, len(expired))
	for _, e := range expired {
		ids = append(ids, e.id)
	}

	m.pmu.Lock()
	for _, id := range ids {
		delete(m.pending, id)
		m.deletes[id] = struct{}{}
	}
	m.pmu.Unlock()

	for _, e := range expired {
		m.commit(ctx, e.id, []event.Event{e.event}, nil)
		m.logger.InfoContext(ctx, "room expired", slog.String("room_id", e.id))
	}
	m.metrics.rooms.Add(ctx, -int64(len(ids)))
	span.SetAttributes(attribute.Int("rooms.expired", len(ids)))

	// Also retries snapshots left over from earlier failures.
	if err := m.Flush(ctx); err != nil {
		return ids, err
	}
	return ids, nil
}

// Recover loads every stored room snapshot into memory and re-arms the
// timers of sessions that were active. Sessions whose deadline passed while
// the process was down resolve as soon as the clock next fires.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Recover")
	defer span.End()

	snaps, err := m.snapshots.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading room snapshots: %w", err)
	}

	now := m.now()
	recovered := 0
	for _, rs := range snaps {
		snap, err := DecodeSnapshot(rs)
		if err != nil {
			m.logger.WarnContext(ctx, "failed to decode room snapshot during recovery",
				slog.String("room_id", rs.ID),
				slog.Any("error", err),
			)
			continue
		}
		r, err := restoreRoom(snap)
		if err != nil {
			m.logger.WarnContext(ctx, "failed to restore room during recovery",
				slog.String("room_id", rs.ID),
				slog.Any("error", err),
			)
			continue
		}

		m.mu.Lock()
		if _, exists := m.rooms[r.id]; exists {
			m.mu.Unlock()
			continue
		}
		m.rooms[r.id] = r
		m.mu.Unlock()

		r.mu.Lock()
		active := 0
		for _, s := range r.sessions {
			if s.state == StateActive {
				m.arm(r, s, now)
				active++
			}
		}
		r.mu.Unlock()
		recovered++

		m.logger.InfoContext(ctx, "recovered room",
			slog.String("room_id", r.id),
			slog.Int("teams", len(r.teams)),
			slog.Int("active_sessions", active),
		)
	}
	m.metrics.rooms.Add(ctx, int64(recovered))

	m.logger.InfoContext(ctx, "room recovery complete",
		slog.Int("stored", len(snaps)),
		slog.Int("recovered", recovered),
	)
	return recovered, nil
}

// Shutdown stops every pending session timer and flushes snapshots. Active
// sessions stay active in the stored state and resume on Recover.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		r.mu.Lock()
		for _, s := range r.sessions {
			s.cancelTimer()
		}
		r.mu.Unlock()
	}
	return m.Flush(ctx)
}
