// Package directory is the matchmaking registry of rooms waiting for a
// second player. It only introduces peers; once the guest has joined the
// directory plays no further part in the game.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/peer"
	"github.com/jason-s-yu/peerplay/internal/rules"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidRoom  = errors.New("invalid room")
	ErrUnavailable  = errors.New("directory unavailable")
)

// MaxHostNameLen bounds the display name stored with a room.
const MaxHostNameLen = 64

// RoomHandlers receive feed events in order on a single goroutine.
type RoomHandlers struct {
	OnInsert func(models.Room)
	OnUpdate func(models.Room)
	OnDelete func(models.Room)
}

// Subscription stops a feed when closed.
type Subscription interface {
	Close() error
}

// Directory is implemented in memory, on Postgres with a Redis feed, and as
// an HTTP client of the directory service.
type Directory interface {
	CreateRoom(ctx context.Context, hostName, hostPeerID string, gameType rules.GameType, isPrivate bool) (models.Room, error)
	// TryJoinRoom atomically moves a waiting room to playing. Exactly one of
	// any number of concurrent callers gets true.
	TryJoinRoom(ctx context.Context, id uuid.UUID) (bool, error)
	// CloseRoom is idempotent; it reports whether this call closed the room.
	CloseRoom(ctx context.Context, id uuid.UUID) (bool, error)
	GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error)
	// ListWaiting returns public waiting rooms; an empty gameType lists all games.
	ListWaiting(ctx context.Context, gameType rules.GameType) ([]models.Room, error)
	Subscribe(ctx context.Context, gameType rules.GameType, h RoomHandlers) (Subscription, error)
}

// Purger is implemented by stores that support retention of closed rooms.
type Purger interface {
	// PurgeClosed hard-deletes rooms closed for longer than olderThan and
	// emits a delete event for each. It returns how many were removed.
	PurgeClosed(ctx context.Context, olderThan time.Duration) (int, error)
}

// validateRoom checks CreateRoom arguments and returns the trimmed host name.
func validateRoom(hostName, hostPeerID string, gameType rules.GameType) (string, error) {
	name := strings.TrimSpace(hostName)
	if name == "" || len(name) > MaxHostNameLen {
		return "", fmt.Errorf("%w: host name must be 1-%d characters", ErrInvalidRoom, MaxHostNameLen)
	}
	if !gameType.Valid() {
		return "", fmt.Errorf("%w: unknown game type %q", ErrInvalidRoom, gameType)
	}
	if !peer.PeerID(hostPeerID).Valid() {
		return "", fmt.Errorf("%w: bad host id %q", ErrInvalidRoom, hostPeerID)
	}
	return name, nil
}
