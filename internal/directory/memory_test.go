package directory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/logging"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/peer"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hostID = peer.NewPeerID("127.0.0.1:9000").String()

// eventLog collects feed callbacks on a channel.
type eventLog chan models.RoomEvent

func (e eventLog) handlers() RoomHandlers {
	push := func(kind models.RoomEventKind) func(models.Room) {
		return func(r models.Room) { e <- models.RoomEvent{Event: kind, Room: r} }
	}
	return RoomHandlers{
		OnInsert: push(models.RoomInserted),
		OnUpdate: push(models.RoomUpdated),
		OnDelete: push(models.RoomDeleted),
	}
}

func (e eventLog) next(t *testing.T) models.RoomEvent {
	t.Helper()
	select {
	case ev := <-e:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for room event")
	}
	return models.RoomEvent{}
}

func (e eventLog) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-e:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryCreateValidates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for name, tc := range map[string]struct {
		host, id string
		game     rules.GameType
	}{
		"empty name":   {"  ", hostID, rules.Gomoku},
		"long name":    {string(make([]byte, MaxHostNameLen+1)), hostID, rules.Gomoku},
		"unknown game": {"ada", hostID, "chess"},
		"bad peer id":  {"ada", "somewhere", rules.Gomoku},
	} {
		_, err := m.CreateRoom(ctx, tc.host, tc.id, tc.game, false)
		assert.ErrorIs(t, err, ErrInvalidRoom, name)
	}

	r, err := m.CreateRoom(ctx, " ada ", hostID, rules.Othello, true)
	require.NoError(t, err)
	assert.Equal(t, "ada", r.HostName)
	assert.Equal(t, models.RoomWaiting, r.Status)
	assert.Equal(t, int64(1), r.Version)
	assert.True(t, r.IsPrivate)
}

func TestMemoryJoinRace(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "ada", hostID, rules.Gomoku, false)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := m.TryJoinRoom(ctx, r.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	got, err := m.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomPlaying, got.Status)
	assert.Equal(t, int64(2), got.Version)

	_, err = m.TryJoinRoom(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r, err := m.CreateRoom(ctx, "ada", hostID, rules.Gomoku, false)
	require.NoError(t, err)

	closed, err := m.CloseRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, closed)
	closed, err = m.CloseRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, closed)

	joined, err := m.TryJoinRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, joined, "closed rooms cannot be joined")

	_, err = m.CloseRoom(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryListWaiting(t *testing.T) {
	m := NewMemory()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()

	first, err := m.CreateRoom(ctx, "a", hostID, rules.Gomoku, false)
	require.NoError(t, err)
	_, err = m.CreateRoom(ctx, "b", hostID, rules.Gomoku, true)
	require.NoError(t, err)
	joined, err := m.CreateRoom(ctx, "c", hostID, rules.Gomoku, false)
	require.NoError(t, err)
	_, err = m.TryJoinRoom(ctx, joined.ID)
	require.NoError(t, err)
	other, err := m.CreateRoom(ctx, "d", hostID, rules.Connect4, false)
	require.NoError(t, err)
	last, err := m.CreateRoom(ctx, "e", hostID, rules.Gomoku, false)
	require.NoError(t, err)

	rooms, err := m.ListWaiting(ctx, rules.Gomoku)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, last.ID, rooms[1].ID)

	all, err := m.ListWaiting(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[1].ID)
}

func TestMemorySubscribe(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	gomoku, all := make(eventLog, 16), make(eventLog, 16)
	subG, err := m.Subscribe(ctx, rules.Gomoku, gomoku.handlers())
	require.NoError(t, err)
	subA, err := m.Subscribe(ctx, "", all.handlers())
	require.NoError(t, err)
	defer subA.Close()

	r, err := m.CreateRoom(ctx, "ada", hostID, rules.Gomoku, false)
	require.NoError(t, err)
	_, err = m.CreateRoom(ctx, "bob", hostID, rules.Dots, false)
	require.NoError(t, err)
	_, err = m.TryJoinRoom(ctx, r.ID)
	require.NoError(t, err)

	ev := gomoku.next(t)
	assert.Equal(t, models.RoomInserted, ev.Event)
	assert.Equal(t, r.ID, ev.Room.ID)
	ev = gomoku.next(t)
	assert.Equal(t, models.RoomUpdated, ev.Event)
	assert.Equal(t, models.RoomPlaying, ev.Room.Status)
	gomoku.none(t)

	for _, want := range []models.RoomEventKind{models.RoomInserted, models.RoomInserted, models.RoomUpdated} {
		assert.Equal(t, want, all.next(t).Event)
	}

	require.NoError(t, subG.Close())
	require.NoError(t, subG.Close())
	_, err = m.CloseRoom(ctx, r.ID)
	require.NoError(t, err)
	gomoku.none(t)
	assert.Equal(t, models.RoomClosed, all.next(t).Room.Status)
}

func TestMemoryPurgeClosed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	old, err := m.CreateRoom(ctx, "a", hostID, rules.Gomoku, false)
	require.NoError(t, err)
	fresh, err := m.CreateRoom(ctx, "b", hostID, rules.Gomoku, false)
	require.NoError(t, err)
	waiting, err := m.CreateRoom(ctx, "c", hostID, rules.Gomoku, false)
	require.NoError(t, err)

	_, err = m.CloseRoom(ctx, old.ID)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = m.CloseRoom(ctx, fresh.ID)
	require.NoError(t, err)

	log := make(eventLog, 4)
	sub, err := m.Subscribe(ctx, "", log.handlers())
	require.NoError(t, err)
	defer sub.Close()

	n, err := m.PurgeClosed(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ev := log.next(t)
	assert.Equal(t, models.RoomDeleted, ev.Event)
	assert.Equal(t, old.ID, ev.Room.ID)

	_, err = m.GetRoom(ctx, old.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	for _, id := range []uuid.UUID{fresh.ID, waiting.ID} {
		_, err = m.GetRoom(ctx, id)
		assert.NoError(t, err)
	}
}

func TestRunPurger(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	r, err := m.CreateRoom(ctx, "a", hostID, rules.Mancala, false)
	require.NoError(t, err)
	_, err = m.CloseRoom(ctx, r.ID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunPurger(ctx, m, time.Millisecond, 10*time.Millisecond, logging.Discard())
	}()
	require.Eventually(t, func() bool {
		_, err := m.GetRoom(context.Background(), r.ID)
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
