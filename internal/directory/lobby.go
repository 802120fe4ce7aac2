package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
)

// Lobby is a client-side listing of public waiting rooms kept current from
// the feed. Events are applied in arrival order; an event whose version is
// not newer than the last one seen for its room is dropped, and a deleted
// room never comes back.
type Lobby struct {
	game rules.GameType

	mu      sync.Mutex
	rooms   map[uuid.UUID]models.Room
	seen    map[uuid.UUID]int64
	deleted map[uuid.UUID]bool
}

// NewLobby tracks one game type, or all of them when gameType is empty.
func NewLobby(gameType rules.GameType) *Lobby {
	return &Lobby{
		game:    gameType,
		rooms:   make(map[uuid.UUID]models.Room),
		seen:    make(map[uuid.UUID]int64),
		deleted: make(map[uuid.UUID]bool),
	}
}

// Apply folds one event into the listing and reports whether the listing changed.
func (l *Lobby) Apply(ev models.RoomEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apply(ev)
}

func (l *Lobby) apply(ev models.RoomEvent) bool {
	r := ev.Room
	if l.deleted[r.ID] {
		return false
	}
	_, listed := l.rooms[r.ID]
	if ev.Event == models.RoomDeleted {
		l.deleted[r.ID] = true
		delete(l.rooms, r.ID)
		delete(l.seen, r.ID)
		return listed
	}
	if r.Version <= l.seen[r.ID] {
		return false
	}
	l.seen[r.ID] = r.Version
	if r.Listed() && (l.game == "" || r.GameType == l.game) {
		l.rooms[r.ID] = r
		return true
	}
	delete(l.rooms, r.ID)
	return listed
}

// Load merges a listing snapshot, subject to the same version rules as events.
func (l *Lobby) Load(rooms []models.Room) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := false
	for _, r := range rooms {
		if l.apply(models.RoomEvent{Event: models.RoomUpdated, Room: r}) {
			changed = true
		}
	}
	return changed
}

// Rooms returns the current listing, oldest first.
func (l *Lobby) Rooms() []models.Room {
	l.mu.Lock()
	out := make([]models.Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		out = append(out, r)
	}
	l.mu.Unlock()
	sortOldestFirst(out)
	return out
}

// Handlers adapts the lobby to a feed subscription. onChange, if set, gets
// the new listing after every event that changed it.
func (l *Lobby) Handlers(onChange func([]models.Room)) RoomHandlers {
	apply := func(kind models.RoomEventKind) func(models.Room) {
		return func(r models.Room) {
			if l.Apply(models.RoomEvent{Event: kind, Room: r}) && onChange != nil {
				onChange(l.Rooms())
			}
		}
	}
	return RoomHandlers{
		OnInsert: apply(models.RoomInserted),
		OnUpdate: apply(models.RoomUpdated),
		OnDelete: apply(models.RoomDeleted),
	}
}

// WatchLobby subscribes first and lists second, so no change between the two
// is lost. onChange may be called from the feed goroutine before WatchLobby
// returns.
func WatchLobby(ctx context.Context, d Directory, gameType rules.GameType, onChange func([]models.Room)) (*Lobby, Subscription, error) {
	l := NewLobby(gameType)
	sub, err := d.Subscribe(ctx, gameType, l.Handlers(onChange))
	if err != nil {
		return nil, nil, err
	}
	rooms, err := d.ListWaiting(ctx, gameType)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	if l.Load(rooms) && onChange != nil {
		onChange(l.Rooms())
	}
	return l, sub, nil
}
