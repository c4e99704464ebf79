package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/jensholdgaard/player-auction/internal/store/entstore"
	_ "github.com/jensholdgaard/player-auction/internal/store/memory"
	_ "github.com/jensholdgaard/player-auction/internal/store/postgres"
)

// fakeDriver is a store.Driver that always succeeds without connecting to a DB.
func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{}, nil
}

func TestOpen(t *testing.T) {
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{
			name:    "registered driver succeeds",
			driver:  "test-driver",
			wantErr: false,
		},
		{
			name:    "memory driver needs no database",
			driver:  "memory",
			wantErr: false,
		},
		{
			name:    "unknown driver fails",
			driver:  "nonexistent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: tt.driver}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Open(driver=%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	// The SQL drivers register via init(); with no database running, Open
	// must fail with a connection error rather than "unknown store driver".
	for _, driver := range []string{"sqlx", "ent"} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: driver, Host: "localhost", Port: 1}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if err == nil {
				t.Fatal("expected error (no DB running), got nil")
			}
			if strings.Contains(err.Error(), "unknown store driver") {
				t.Errorf("expected connection error, got unknown driver error: %v", err)
			}
		})
	}
}

func TestRoomSnapshot_Supersedes(t *testing.T) {
	base := store.RoomSnapshot{ID: "r", Version: 4}
	tests := []struct {
		name string
		snap store.RoomSnapshot
		want bool
	}{
		{name: "newer version", snap: store.RoomSnapshot{ID: "r", Version: 5}, want: true},
		{name: "same version", snap: store.RoomSnapshot{ID: "r", Version: 4}, want: false},
		{name: "older version", snap: store.RoomSnapshot{ID: "r", Version: 3}, want: false},
		{name: "different room generation", snap: store.RoomSnapshot{ID: "r", Version: 1, CreatedAt: base.CreatedAt.Add(1)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Supersedes(base); got != tt.want {
				t.Errorf("Supersedes() = %v, want %v", got, tt.want)
			}
		})
	}
}
