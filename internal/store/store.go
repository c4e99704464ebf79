package store

import (
	"context"
	"encoding/json"
	"time"
)

// RoomSnapshot is the persisted form of one auction room. Data is an opaque
// JSON document owned by the auction package.
type RoomSnapshot struct {
	ID        string          `db:"room_id"`
	Version   int             `db:"version"`
	Data      json.RawMessage `db:"data"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Supersedes reports whether s should overwrite stored. A snapshot replaces
// an older version of the same room, or any snapshot of an earlier room that
// happened to use the same id.
func (s RoomSnapshot) Supersedes(stored RoomSnapshot) bool {
	if !s.CreatedAt.Equal(stored.CreatedAt) {
		return true
	}
	return s.Version > stored.Version
}

// SnapshotRepository defines room snapshot persistence operations.
type SnapshotRepository interface {
	// LoadAll returns every stored room snapshot.
	LoadAll(ctx context.Context) ([]RoomSnapshot, error)
	// SaveAll upserts snapshots atomically, skipping any that do not
	// supersede the stored row.
	SaveAll(ctx context.Context, snaps []RoomSnapshot) error
	// Delete removes the snapshots of the given rooms.
	Delete(ctx context.Context, roomIDs ...string) error
}
