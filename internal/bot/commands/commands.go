package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/telemetry"
)

// Engine is the subset of the room manager the commands drive.
type Engine interface {
	CreateRoom(ctx context.Context, roomID string, teams []string) (*auction.Outcome, error)
	JoinRoom(ctx context.Context, roomID, team string) (*auction.Outcome, error)
	RequestNextBatch(ctx context.Context, roomID string) (*auction.Outcome, error)
	StartRegular(ctx context.Context, roomID, player string) (*auction.Outcome, error)
	StartBlind(ctx context.Context, roomID, player string) (*auction.Outcome, error)
	PlaceRegularBid(ctx context.Context, roomID, player, team string, amount int64) (*auction.Outcome, error)
	PlaceBlindBid(ctx context.Context, roomID, player, team string, amount int64) (*auction.Outcome, error)
	CloseSession(ctx context.Context, roomID, player string, mode auction.Mode) (*auction.Outcome, error)
	Purchase(ctx context.Context, roomID, team, player string, price int64) (*auction.Outcome, error)
	Room(ctx context.Context, roomID, viewer string) (*auction.RoomView, error)
	History(ctx context.Context, roomID string) (*auction.HistoryView, error)
}

// Request is a parsed slash command. Each Discord channel hosts one room and
// the caller bids as the team named after their username.
type Request struct {
	Command string
	RoomID  string
	Caller  string
	Options map[string]any
}

func (r Request) str(name string) string {
	s, _ := r.Options[name].(string)
	return strings.TrimSpace(s)
}

func (r Request) integer(name string) int64 {
	n, _ := r.Options[name].(int64)
	return n
}

// Reply is the interaction response. Ephemeral replies are shown only to
// the caller.
type Reply struct {
	Content   string
	Ephemeral bool
}

// Handlers process Discord interactions.
type Handlers struct {
	engine Engine
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(engine Engine, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		engine: engine,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/player-auction/internal/bot/commands"),
	}
}

func playerOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "player",
		Description: desc,
		Required:    true,
	}
}

func amountOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "amount",
		Description: desc,
		Required:    true,
		MinValue:    new(float64),
	}
}

func modeOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "mode",
		Description: "Bidding mode",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "regular", Value: string(auction.ModeRegular)},
			{Name: "blind", Value: string(auction.ModeBlind)},
		},
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "room-create",
			Description: "Open an auction room in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "teams",
					Description: "Comma-separated team names (defaults to you)",
					Required:    false,
				},
			},
		},
		{
			Name:        "room-join",
			Description: "Join this channel's auction room as a team",
		},
		{
			Name:        "batch",
			Description: "Release the next batch of players",
		},
		{
			Name:        "bid-start",
			Description: "Open bidding on a player",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player to put up"), modeOption()},
		},
		{
			Name:        "bid",
			Description: "Place an open bid",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player to bid on"), amountOption("Bid amount")},
		},
		{
			Name:        "blind-bid",
			Description: "Place a sealed bid; only you see the amount",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player to bid on"), amountOption("Bid amount")},
		},
		{
			Name:        "bid-close",
			Description: "Resolve a bidding session now",
			Options:     []*discordgo.ApplicationCommandOption{playerOption("Player whose session to close"), modeOption()},
		},
		{
			Name:        "purchase",
			Description: "Sell a player directly to a team",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "team",
					Description: "Buying team",
					Required:    true,
				},
				playerOption("Player to sell"),
				amountOption("Price"),
			},
		},
		{
			Name:        "room-status",
			Description: "Show budgets, rosters and live sessions",
		},
		{
			Name:        "history",
			Description: "Show finished sessions with every bid",
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	req := Request{
		Command: data.Name,
		RoomID:  i.ChannelID,
		Caller:  caller(i),
		Options: make(map[string]any, len(data.Options)),
	}
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			req.Options[opt.Name] = opt.IntValue()
		default:
			req.Options[opt.Name] = opt.StringValue()
		}
	}

	reply := h.Handle(context.Background(), req)
	respond(s, i, reply)
}

func caller(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}

// Handle runs req against the engine and renders the reply.
func (h *Handlers) Handle(ctx context.Context, req Request) Reply {
	ctx, span := h.tracer.Start(ctx, "InteractionCreate",
		trace.WithAttributes(
			attribute.String("command", req.Command),
			attribute.String("room.id", req.RoomID),
		),
	)
	defer span.End()

	reply, err := h.dispatch(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if !isUserError(err) {
			telemetry.LogWithTrace(ctx, h.logger).ErrorContext(ctx, "command failed",
				slog.String("command", req.Command),
				slog.String("room_id", req.RoomID),
				slog.Any("error", err),
			)
		}
		return Reply{Content: fmt.Sprintf("%s failed: %s", req.Command, err), Ephemeral: true}
	}
	return reply
}

func (h *Handlers) dispatch(ctx context.Context, req Request) (Reply, error) {
	switch req.Command {
	case "room-create":
		return h.handleRoomCreate(ctx, req)
	case "room-join":
		out, err := h.engine.JoinRoom(ctx, req.RoomID, req.Caller)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: fmt.Sprintf("**%s** is in with %s.", out.Team.Name, money(out.Team.Budget))}, nil
	case "batch":
		out, err := h.engine.RequestNextBatch(ctx, req.RoomID)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: formatBatch(out.Batch)}, nil
	case "bid-start":
		return h.handleStart(ctx, req)
	case "bid":
		out, err := h.engine.PlaceRegularBid(ctx, req.RoomID, req.str("player"), req.Caller, req.integer("amount"))
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: fmt.Sprintf("Bid of %s on **%s** accepted.", money(req.integer("amount")), out.Session.Player)}, nil
	case "blind-bid":
		out, err := h.engine.PlaceBlindBid(ctx, req.RoomID, req.str("player"), req.Caller, req.integer("amount"))
		if err != nil {
			return Reply{}, err
		}
		return Reply{
			Content:   fmt.Sprintf("Sealed bid of %s on **%s** recorded.", money(req.integer("amount")), out.Session.Player),
			Ephemeral: true,
		}, nil
	case "bid-close":
		mode, ok := auction.ParseMode(req.str("mode"))
		if !ok {
			return Reply{}, fmt.Errorf("unknown mode %q", req.str("mode"))
		}
		out, err := h.engine.CloseSession(ctx, req.RoomID, req.str("player"), mode)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: formatSession(*out.Session)}, nil
	case "purchase":
		out, err := h.engine.Purchase(ctx, req.RoomID, req.str("team"), req.str("player"), req.integer("amount"))
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: fmt.Sprintf("**%s** bought **%s** for %s (%s left).",
			out.Team.Name, req.str("player"), money(req.integer("amount")), money(out.Team.Budget))}, nil
	case "room-status":
		v, err := h.engine.Room(ctx, req.RoomID, req.Caller)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: formatRoom(v), Ephemeral: true}, nil
	case "history":
		hv, err := h.engine.History(ctx, req.RoomID)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Content: formatHistory(hv)}, nil
	default:
		return Reply{Content: "Unknown command", Ephemeral: true}, nil
	}
}

func (h *Handlers) handleRoomCreate(ctx context.Context, req Request) (Reply, error) {
	var teams []string
	for _, name := range strings.Split(req.str("teams"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			teams = append(teams, name)
		}
	}
	if len(teams) == 0 && req.Caller != "" {
		teams = []string{req.Caller}
	}
	if _, err := h.engine.CreateRoom(ctx, req.RoomID, teams); err != nil {
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf("Auction room open with %d team(s): %s", len(teams), strings.Join(teams, ", "))}, nil
}

func (h *Handlers) handleStart(ctx context.Context, req Request) (Reply, error) {
	player := req.str("player")
	var (
		out *auction.Outcome
		err error
	)
	switch mode, _ := auction.ParseMode(req.str("mode")); mode {
	case auction.ModeRegular:
		out, err = h.engine.StartRegular(ctx, req.RoomID, player)
	case auction.ModeBlind:
		out, err = h.engine.StartBlind(ctx, req.RoomID, player)
	default:
		return Reply{}, fmt.Errorf("unknown mode %q", req.str("mode"))
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf("Bidding open on **%s** (%s, %s).",
		out.Session.Player, out.Session.Mode, out.Session.TimeRemaining)}, nil
}

var userErrors = []error{
	auction.ErrRoomNotFound, auction.ErrRoomAlreadyExists, auction.ErrTeamNotFound,
	auction.ErrPlayerNotFound, auction.ErrPlayerAlreadySold, auction.ErrSessionAlreadyActive,
	auction.ErrSessionNotActive, auction.ErrDuplicateBid, auction.ErrBidTooLow,
	auction.ErrBelowBasePrice, auction.ErrBudgetExceeded, auction.ErrRosterFull,
	auction.ErrAuctionComplete,
}

// isUserError reports whether err is a rule rejection rather than a fault.
func isUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, reply Reply) {
	data := &discordgo.InteractionResponseData{Content: reply.Content}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}
