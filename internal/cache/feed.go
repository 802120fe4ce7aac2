package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RoomFeed fans room change events out over Redis pub/sub, one channel per
// game type, so every directory instance sees every change.
type RoomFeed struct {
	rdb    *redis.Client
	prefix string
	logger logrus.FieldLogger
}

func NewRoomFeed(rdb *redis.Client, prefix string, logger logrus.FieldLogger) *RoomFeed {
	return &RoomFeed{rdb: rdb, prefix: prefix, logger: logger}
}

func (f *RoomFeed) channel(gameType string) string { return f.prefix + gameType }

// Publish sends an event on its game type's channel.
func (f *RoomFeed) Publish(ctx context.Context, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel(string(ev.Room.GameType)), data).Err(); err != nil {
		return fmt.Errorf("failed to publish room event: %w", err)
	}
	return nil
}

// FeedSubscription delivers decoded events until Close.
type FeedSubscription struct {
	ps     *redis.PubSub
	events chan models.RoomEvent
	done   chan struct{}
}

// Subscribe listens for one game type, or every game type when gameType is
// empty. The subscription is confirmed before Subscribe returns.
func (f *RoomFeed) Subscribe(ctx context.Context, gameType string) (*FeedSubscription, error) {
	var ps *redis.PubSub
	if gameType == "" {
		ps = f.rdb.PSubscribe(ctx, f.prefix+"*")
	} else {
		ps = f.rdb.Subscribe(ctx, f.channel(gameType))
	}
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to room feed: %w", err)
	}

	sub := &FeedSubscription{ps: ps, events: make(chan models.RoomEvent, 64), done: make(chan struct{})}
	go func() {
		defer close(sub.events)
		for msg := range ps.Channel() {
			var ev models.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping undecodable room event")
				continue
			}
			select {
			case sub.events <- ev:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

func (s *FeedSubscription) Events() <-chan models.RoomEvent { return s.events }

func (s *FeedSubscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.ps.Close()
}
