package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// SnapshotRepo implements store.SnapshotRepository with sqlx.
type SnapshotRepo struct {
	db *sqlx.DB
}

// NewSnapshotRepo returns a new SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

type snapshotRow struct {
	ID        string    `db:"room_id"`
	Version   int       `db:"version"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *SnapshotRepo) LoadAll(ctx context.Context) ([]store.RoomSnapshot, error) {
	var rows []snapshotRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT room_id, version, data, created_at, updated_at FROM room_snapshots ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	out := make([]store.RoomSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.RoomSnapshot{
			ID:        row.ID,
			Version:   row.Version,
			Data:      json.RawMessage(row.Data),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out, nil
}

// SaveAll upserts every snapshot in one transaction. A row is only replaced
// by a newer version of the same room, or by a room that reused the id.
func (r *SnapshotRepo) SaveAll(ctx context.Context, snaps []store.RoomSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx,
		`INSERT INTO room_snapshots (room_id, version, data, created_at, updated_at)
		 VALUES (:room_id, :version, CAST(:data AS JSONB), :created_at, :updated_at)
		 ON CONFLICT (room_id) DO UPDATE SET
		     version = EXCLUDED.version,
		     data = EXCLUDED.data,
		     created_at = EXCLUDED.created_at,
		     updated_at = EXCLUDED.updated_at
		 WHERE room_snapshots.version < EXCLUDED.version
		    OR room_snapshots.created_at <> EXCLUDED.created_at`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range snaps {
		row := map[string]any{
			"room_id":    s.ID,
			"version":    s.Version,
			"data":       string(s.Data),
			"created_at": s.CreatedAt,
			"updated_at": s.UpdatedAt,
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("saving snapshot (room=%s, version=%d): %w", s.ID, s.Version, err)
		}
	}

	return tx.Commit()
}

func (r *SnapshotRepo) Delete(ctx context.Context, roomIDs ...string) error {
	if len(roomIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM room_snapshots WHERE room_id IN (?)`, roomIDs)
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting snapshots: %w", err)
	}
	return nil
}
