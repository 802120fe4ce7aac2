package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/peerplay/internal/models"
)

// InsertRoomEvents copies a batch of audit records into room_events in one transaction.
func InsertRoomEvents(ctx context.Context, db *pgxpool.Pool, recs []models.RoomAuditRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"room_events"},
			[]string{"room_id", "event", "status", "game_type", "version", "occurred_at"},
			pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
				r := recs[i]
				return []any{r.RoomID, string(r.Event), string(r.Status), r.GameType, r.Version, r.Timestamp}, nil
			}),
		)
		return err
	})
}

// CountRoomEvents returns how many audit rows exist for a room.
func CountRoomEvents(ctx context.Context, db *pgxpool.Pool, roomID uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM room_events WHERE room_id = $1`, roomID).Scan(&n)
	return n, err
}
