package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/panjf2000/ants/v2"

	"github.com/jensholdgaard/player-auction/internal/bot/commands"
	"github.com/jensholdgaard/player-auction/internal/event"
)

// Sender posts a message to a channel. *discordgo.Session satisfies it.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier announces room events in the room's channel. Delivery runs on a
// bounded worker pool; messages for one room are posted in order.
type Notifier struct {
	sender Sender
	pool   *ants.Pool
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string][]string
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier with the given number of delivery workers.
func NewNotifier(sender Sender, workers int, logger *slog.Logger) (*Notifier, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating notifier pool: %w", err)
	}
	return &Notifier{
		sender: sender,
		pool:   pool,
		logger: logger,
		queues: make(map[string][]string),
	}, nil
}

// Notify queues the announcements for events.
func (n *Notifier) Notify(ctx context.Context, roomID string, events []event.Event) {
	var msgs []string
	for _, e := range events {
		if msg, ok := commands.FormatEvent(e); ok {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) == 0 {
		return
	}

	n.mu.Lock()
	q, draining := n.queues[roomID]
	n.queues[roomID] = append(q, msgs...)
	if draining {
		n.mu.Unlock()
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	if err := n.pool.Submit(func() { n.drain(roomID) }); err != nil {
		n.logger.WarnContext(ctx, "failed to schedule room notification",
			slog.String("room_id", roomID),
			slog.Any("error", err),
		)
		n.mu.Lock()
		delete(n.queues, roomID)
		n.mu.Unlock()
		n.wg.Done()
	}
}

// drain posts queued messages for roomID until its queue is empty. A room has
// a queue entry exactly while a drain is scheduled or running.
func (n *Notifier) drain(roomID string) {
	defer n.wg.Done()
	for {
		n.mu.Lock()
		q := n.queues[roomID]
		if len(q) == 0 {
			delete(n.queues, roomID)
			n.mu.Unlock()
			return
		}
		msg := q[0]
		n.queues[roomID] = q[1:]
		n.mu.Unlock()

		if _, err := n.sender.ChannelMessageSend(roomID, msg); err != nil {
			n.logger.Warn("failed to post room notification",
				slog.String("room_id", roomID),
				slog.Any("error", err),
			)
		}
	}
}

// Close waits for queued messages to be delivered and releases the pool.
func (n *Notifier) Close() {
	n.wg.Wait()
	n.pool.Release()
}
