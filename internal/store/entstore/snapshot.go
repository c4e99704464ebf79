package entstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// SnapshotRepo implements store.SnapshotRepository using database/sql.
type SnapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo returns a new SnapshotRepo.
func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) LoadAll(ctx context.Context) ([]store.RoomSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id, version, data, created_at, updated_at FROM room_snapshots ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	defer rows.Close()

	var out []store.RoomSnapshot
	for rows.Next() {
		var s store.RoomSnapshot
		var data []byte
		if err := rows.Scan(&s.ID, &s.Version, &data, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		s.Data = json.RawMessage(data)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SnapshotRepo) SaveAll(ctx context.Context, snaps []store.RoomSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO room_snapshots (room_id, version, data, created_at, updated_at)
		 VALUES ($1, $2, CAST($3 AS JSONB), $4, $5)
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
		if _, err := stmt.ExecContext(ctx, s.ID, s.Version, string(s.Data), s.CreatedAt, s.UpdatedAt); err != nil {
			return fmt.Errorf("saving snapshot (room=%s, version=%d): %w", s.ID, s.Version, err)
		}
	}

	return tx.Commit()
}

func (r *SnapshotRepo) Delete(ctx context.Context, roomIDs ...string) error {
	if len(roomIDs) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM room_snapshots WHERE room_id = ANY($1)`, pq.Array(roomIDs)); err != nil {
		return fmt.Errorf("deleting snapshots: %w", err)
	}
	return nil
}
