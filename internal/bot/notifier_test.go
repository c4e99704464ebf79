package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/player-auction/internal/event"
)

type sent struct {
	channel string
	content string
}

type mockSender struct {
	mu   sync.Mutex
	msgs []sent
	fail map[string]bool
}

func (m *mockSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, sent{channel: channelID, content: content})
	if m.fail[content] {
		return nil, errors.New("discord unavailable")
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (m *mockSender) forChannel(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.msgs {
		if s.channel == id {
			out = append(out, s.content)
		}
	}
	return out
}

func joined(t *testing.T, room, team string) event.Event {
	t.Helper()
	data, err := json.Marshal(event.TeamJoinedData{Team: team})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return event.Event{AggregateID: room, Type: event.TeamJoined, Data: data}
}

func TestNotifier_PreservesOrderPerRoom(t *testing.T) {
	sender := &mockSender{}
	n, err := NewNotifier(sender, 4, slog.Default())
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}

	rooms := []string{"r1", "r2", "r3"}
	batches := make(map[string][]event.Event, len(rooms))
	for _, room := range rooms {
		for i := 0; i < 20; i++ {
			batches[room] = append(batches[room], joined(t, room, fmt.Sprintf("t%02d", i)))
		}
	}
	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func(events []event.Event) {
			defer wg.Done()
			for _, e := range events {
				n.Notify(context.Background(), e.AggregateID, []event.Event{e})
			}
		}(batches[room])
	}
	wg.Wait()
	n.Close()

	for _, room := range rooms {
		got := sender.forChannel(room)
		if len(got) != 20 {
			t.Fatalf("%s received %d messages, want 20", room, len(got))
		}
		for i, msg := range got {
			if want := fmt.Sprintf("**t%02d** joined the room.", i); msg != want {
				t.Errorf("%s message %d = %q, want %q", room, i, msg, want)
			}
		}
	}
}

func TestNotifier_SkipsUnannouncedEvents(t *testing.T) {
	sender := &mockSender{}
	n, err := NewNotifier(sender, 1, slog.Default())
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}
	n.Notify(context.Background(), "r1", []event.Event{{AggregateID: "r1", Type: event.PhaseChanged, Data: json.RawMessage(`{}`)}})
	n.Close()

	if got := sender.forChannel("r1"); len(got) != 0 {
		t.Errorf("sent %v, want nothing", got)
	}
}

func TestNotifier_ContinuesAfterSendError(t *testing.T) {
	sender := &mockSender{fail: map[string]bool{"**A** joined the room.": true}}
	n, err := NewNotifier(sender, 1, slog.Default())
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}
	n.Notify(context.Background(), "r1", []event.Event{joined(t, "r1", "A"), joined(t, "r1", "B")})
	n.Close()

	if got := sender.forChannel("r1"); len(got) != 2 {
		t.Errorf("sent %v, want both messages attempted", got)
	}
}
