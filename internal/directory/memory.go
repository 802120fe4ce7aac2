package directory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
)

// Memory is an in-process Directory. It backs tests and the directory
// service's memory backend.
type Memory struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]models.Room
	subs  map[*dispatcher]struct{}

	// now is swapped in tests that exercise retention.
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[uuid.UUID]models.Room),
		subs:  make(map[*dispatcher]struct{}),
		now:   time.Now,
	}
}

// publish must be called with m.mu held so events reach every subscriber in
// the order the changes were applied.
func (m *Memory) publish(kind models.RoomEventKind, r models.Room) {
	ev := models.RoomEvent{Event: kind, Room: r}
	for d := range m.subs {
		d.push(ev)
	}
}

func (m *Memory) CreateRoom(_ context.Context, hostName, hostPeerID string, gameType rules.GameType, isPrivate bool) (models.Room, error) {
	name, err := validateRoom(hostName, hostPeerID, gameType)
	if err != nil {
		return models.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	r := models.Room{
		ID:        uuid.New(),
		GameType:  gameType,
		HostName:  name,
		HostID:    hostPeerID,
		Status:    models.RoomWaiting,
		IsPrivate: isPrivate,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	m.rooms[r.ID] = r
	m.publish(models.RoomInserted, r)
	return r, nil
}

func (m *Memory) transition(id uuid.UUID, to models.RoomStatus, allowed func(models.RoomStatus) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return false, ErrRoomNotFound
	}
	if !allowed(r.Status) {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = m.now().UTC()
	r.Version++
	m.rooms[id] = r
	m.publish(models.RoomUpdated, r)
	return true, nil
}

func (m *Memory) TryJoinRoom(_ context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, models.RoomPlaying, func(s models.RoomStatus) bool { return s == models.RoomWaiting })
}

func (m *Memory) CloseRoom(_ context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, models.RoomClosed, func(s models.RoomStatus) bool { return s != models.RoomClosed })
}

func (m *Memory) GetRoom(_ context.Context, id uuid.UUID) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return r, nil
}

func (m *Memory) ListWaiting(_ context.Context, gameType rules.GameType) ([]models.Room, error) {
	m.mu.Lock()
	out := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.Listed() && (gameType == "" || r.GameType == gameType) {
			out = append(out, r)
		}
	}
	m.mu.Unlock()
	sortOldestFirst(out)
	return out, nil
}

func (m *Memory) Subscribe(_ context.Context, gameType rules.GameType, h RoomHandlers) (Subscription, error) {
	d := newDispatcher(h, gameType)
	d.onEnd = func() {
		m.mu.Lock()
		delete(m.subs, d)
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.subs[d] = struct{}{}
	m.mu.Unlock()
	return d, nil
}

func (m *Memory) PurgeClosed(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-olderThan)
	n := 0
	for id, r := range m.rooms {
		if r.Status == models.RoomClosed && r.UpdatedAt.Before(cutoff) {
			delete(m.rooms, id)
			m.publish(models.RoomDeleted, r)
			n++
		}
	}
	return n, nil
}

// sortOldestFirst matches the ordering of the Postgres listing.
func sortOldestFirst(rooms []models.Room) {
	slices.SortFunc(rooms, func(a, b models.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
