package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomEventKind names a change notification on the room feed.
type RoomEventKind string

const (
	RoomInserted RoomEventKind = "insert"
	RoomUpdated  RoomEventKind = "update"
	RoomDeleted  RoomEventKind = "delete"
)

// RoomEvent is what the feed pushes to subscribers: {"event": ..., "room": {...}}.
type RoomEvent struct {
	Event RoomEventKind `json:"event"`
	Room  Room          `json:"room"`
}

// RoomAuditRecord holds the minimal info the historian persists per room change.
type RoomAuditRecord struct {
	RoomID    uuid.UUID     `json:"room_id"`
	Event     RoomEventKind `json:"event"`
	Status    RoomStatus    `json:"status"`
	GameType  string        `json:"game_type"`
	Version   int64         `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuditRecord derives the historian record for an event.
func (e RoomEvent) AuditRecord() RoomAuditRecord {
	return RoomAuditRecord{
		RoomID:    e.Room.ID,
		Event:     e.Event,
		Status:    e.Room.Status,
		GameType:  string(e.Room.GameType),
		Version:   e.Room.Version,
		Timestamp: e.Room.UpdatedAt,
	}
}
