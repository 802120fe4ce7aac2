// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/rules"
)

// RoomStatus moves only forward: waiting -> playing -> closed, or waiting -> closed.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomPlaying RoomStatus = "playing"
	RoomClosed  RoomStatus = "closed"
)

// Room represents a row in the rooms table. HostID is the host's opaque peer
// link id; guests dial it directly.
type Room struct {
	ID        uuid.UUID      `json:"id"`
	GameType  rules.GameType `json:"game_type"`
	HostName  string         `json:"host_name"`
	HostID    string         `json:"host_id"`
	Status    RoomStatus     `json:"status"`
	IsPrivate bool           `json:"is_private"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Version increases on every change so feed consumers can drop stale events.
	Version int64 `json:"version"`
}

// Listed reports whether the room belongs in a public lobby listing.
func (r Room) Listed() bool {
	return r.Status == RoomWaiting && !r.IsPrivate
}
