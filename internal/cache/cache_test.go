package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/cache"
	"github.com/jason-s-yu/peerplay/internal/logging"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/jason-s-yu/peerplay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomFeed(t *testing.T) {
	rdb := testutil.NewRedisClient(t)
	feed := cache.NewRoomFeed(rdb, "test:rooms:", logging.Discard())
	ctx := context.Background()

	gomoku, err := feed.Subscribe(ctx, "gomoku")
	require.NoError(t, err)
	defer gomoku.Close()
	all, err := feed.Subscribe(ctx, "")
	require.NoError(t, err)
	defer all.Close()

	room := models.Room{ID: uuid.New(), GameType: rules.Othello, Status: models.RoomWaiting, Version: 1}
	require.NoError(t, feed.Publish(ctx, models.RoomEvent{Event: models.RoomInserted, Room: room}))
	room.GameType = rules.Gomoku
	require.NoError(t, feed.Publish(ctx, models.RoomEvent{Event: models.RoomInserted, Room: room}))

	select {
	case ev := <-gomoku.Events():
		assert.Equal(t, rules.Gomoku, ev.Room.GameType)
	case <-time.After(5 * time.Second):
		t.Fatal("no gomoku event")
	}
	for _, want := range []rules.GameType{rules.Othello, rules.Gomoku} {
		select {
		case ev := <-all.Events():
			assert.Equal(t, want, ev.Room.GameType)
		case <-time.After(5 * time.Second):
			t.Fatal("no event on wildcard subscription")
		}
	}
	require.NoError(t, gomoku.Close())
	require.NoError(t, gomoku.Close())
}

func TestAuditQueue(t *testing.T) {
	rdb := testutil.NewRedisClient(t)
	q := cache.NewAuditQueue(rdb, "")
	ctx := context.Background()

	_, ok, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	rec := models.RoomAuditRecord{RoomID: uuid.New(), Event: models.RoomUpdated, Status: models.RoomPlaying, Version: 2, Timestamp: time.Now().UTC()}
	require.NoError(t, q.Push(ctx, rec))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, ok, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.RoomID, got.RoomID)
	assert.Equal(t, models.RoomPlaying, got.Status)
}
