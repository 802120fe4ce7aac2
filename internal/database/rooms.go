package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/peerplay/internal/models"
)

const roomColumns = `id, game_type, host_name, host_id, status, is_private, created_at, updated_at, version`

// RoomStore persists rooms in the rooms table.
type RoomStore struct {
	db *pgxpool.Pool
}

func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{db: db}
}

func scanRoom(row pgx.Row) (models.Room, error) {
	var r models.Room
	err := row.Scan(&r.ID, &r.GameType, &r.HostName, &r.HostID, &r.Status, &r.IsPrivate, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// InsertRoom creates a new waiting room row and fills in the server-side columns.
func (s *RoomStore) InsertRoom(ctx context.Context, room *models.Room) error {
	q := `
	INSERT INTO rooms (id, game_type, host_name, host_id, status, is_private)
	VALUES ($1, $2, $3, $4, 'waiting', $5)
	RETURNING ` + roomColumns
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		r, err := scanRoom(tx.QueryRow(ctx, q, room.ID, room.GameType, room.HostName, room.HostID, room.IsPrivate))
		if err != nil {
			return err
		}
		*room = r
		return nil
	})
}

// GetRoom fetches a room by ID.
func (s *RoomStore) GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error) {
	return scanRoom(s.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

// ListWaitingRooms returns public waiting rooms, oldest first. An empty
// gameType lists every game.
func (s *RoomStore) ListWaitingRooms(ctx context.Context, gameType string) ([]models.Room, error) {
	q := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE status = 'waiting' AND NOT is_private AND ($1 = '' OR game_type = $1)
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, q, gameType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// transition moves a room to status when the WHERE guard holds. It returns the
// updated row and true, or the current row and false when the guard failed.
func (s *RoomStore) transition(ctx context.Context, id uuid.UUID, status models.RoomStatus, guard string) (models.Room, bool, error) {
	q := `
		UPDATE rooms
		SET status = $2, updated_at = NOW(), version = version + 1
		WHERE id = $1 AND ` + guard + `
		RETURNING ` + roomColumns
	var (
		room    models.Room
		changed bool
	)
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		r, err := scanRoom(tx.QueryRow(ctx, q, id, status))
		switch {
		case err == nil:
			room, changed = r, true
			return nil
		case errors.Is(err, ErrNotFound):
			room, err = scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
			return err
		default:
			return err
		}
	})
	if err != nil {
		return models.Room{}, false, err
	}
	return room, changed, nil
}

// TryJoinRoom flips a waiting room to playing in a single conditional update,
// so of any number of concurrent callers exactly one sees true.
func (s *RoomStore) TryJoinRoom(ctx context.Context, id uuid.UUID) (models.Room, bool, error) {
	return s.transition(ctx, id, models.RoomPlaying, `status = 'waiting'`)
}

// CloseRoom marks a room closed. Closing a closed room reports false.
func (s *RoomStore) CloseRoom(ctx context.Context, id uuid.UUID) (models.Room, bool, error) {
	return s.transition(ctx, id, models.RoomClosed, `status <> 'closed'`)
}

// PurgeClosed hard-deletes closed rooms not updated since before and returns them.
func (s *RoomStore) PurgeClosed(ctx context.Context, before time.Time) ([]models.Room, error) {
	q := `DELETE FROM rooms WHERE status = 'closed' AND updated_at < $1 RETURNING ` + roomColumns
	var purged []models.Room
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, before)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRoom(rows)
			if err != nil {
				return err
			}
			purged = append(purged, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("purging closed rooms: %w", err)
	}
	return purged, nil
}
