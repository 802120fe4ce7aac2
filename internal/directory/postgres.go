package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/peerplay/internal/cache"
	"github.com/jason-s-yu/peerplay/internal/database"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/sirupsen/logrus"
)

// Postgres stores rooms in the rooms table. Changes are fanned out on the
// Redis feed when one is configured, otherwise to in-process subscribers,
// and queued for the historian when an audit queue is configured.
type Postgres struct {
	store  *database.RoomStore
	feed   *cache.RoomFeed
	queue  *cache.AuditQueue
	logger logrus.FieldLogger

	mu    sync.Mutex
	local map[*dispatcher]struct{}
}

// NewPostgres builds a Postgres directory. feed and queue may be nil.
func NewPostgres(db *pgxpool.Pool, feed *cache.RoomFeed, queue *cache.AuditQueue, logger logrus.FieldLogger) *Postgres {
	return &Postgres{
		store:  database.NewRoomStore(db),
		feed:   feed,
		queue:  queue,
		logger: logger,
		local:  make(map[*dispatcher]struct{}),
	}
}

// emit never fails the write that produced the event; a lost notification is
// logged and repaired by the next listing.
func (p *Postgres) emit(ctx context.Context, kind models.RoomEventKind, r models.Room) {
	ev := models.RoomEvent{Event: kind, Room: r}
	log := p.logger.WithFields(logrus.Fields{"room": r.ID, "event": kind, "version": r.Version})

	if p.feed != nil {
		if err := p.feed.Publish(ctx, ev); err != nil {
			log.WithError(err).Warn("failed to publish room event")
		}
	} else {
		p.mu.Lock()
		for d := range p.local {
			d.push(ev)
		}
		p.mu.Unlock()
	}
	if p.queue != nil {
		if err := p.queue.Push(ctx, ev.AuditRecord()); err != nil {
			log.WithError(err).Warn("failed to queue room event for historian")
		}
	}
	log.Debug("room event")
}

func mapStoreErr(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrRoomNotFound
	}
	return err
}

func (p *Postgres) CreateRoom(ctx context.Context, hostName, hostPeerID string, gameType rules.GameType, isPrivate bool) (models.Room, error) {
	name, err := validateRoom(hostName, hostPeerID, gameType)
	if err != nil {
		return models.Room{}, err
	}
	r := models.Room{
		ID:        uuid.New(),
		GameType:  gameType,
		HostName:  name,
		HostID:    hostPeerID,
		Status:    models.RoomWaiting,
		IsPrivate: isPrivate,
	}
	if err := p.store.InsertRoom(ctx, &r); err != nil {
		return models.Room{}, fmt.Errorf("failed to insert room: %w", err)
	}
	p.emit(ctx, models.RoomInserted, r)
	return r, nil
}

func (p *Postgres) TryJoinRoom(ctx context.Context, id uuid.UUID) (bool, error) {
	r, ok, err := p.store.TryJoinRoom(ctx, id)
	if err != nil {
		return false, mapStoreErr(err)
	}
	if ok {
		p.emit(ctx, models.RoomUpdated, r)
	}
	return ok, nil
}

func (p *Postgres) CloseRoom(ctx context.Context, id uuid.UUID) (bool, error) {
	r, ok, err := p.store.CloseRoom(ctx, id)
	if err != nil {
		return false, mapStoreErr(err)
	}
	if ok {
		p.emit(ctx, models.RoomUpdated, r)
	}
	return ok, nil
}

func (p *Postgres) GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error) {
	r, err := p.store.GetRoom(ctx, id)
	if err != nil {
		return models.Room{}, mapStoreErr(err)
	}
	return r, nil
}

func (p *Postgres) ListWaiting(ctx context.Context, gameType rules.GameType) ([]models.Room, error) {
	return p.store.ListWaitingRooms(ctx, string(gameType))
}

func (p *Postgres) Subscribe(ctx context.Context, gameType rules.GameType, h RoomHandlers) (Subscription, error) {
	d := newDispatcher(h, gameType)
	if p.feed == nil {
		d.onEnd = func() {
			p.mu.Lock()
			delete(p.local, d)
			p.mu.Unlock()
		}
		p.mu.Lock()
		p.local[d] = struct{}{}
		p.mu.Unlock()
		return d, nil
	}

	fs, err := p.feed.Subscribe(ctx, string(gameType))
	if err != nil {
		d.Close()
		return nil, err
	}
	d.onEnd = func() { fs.Close() }
	go func() {
		for ev := range fs.Events() {
			d.push(ev)
		}
	}()
	return d, nil
}

func (p *Postgres) PurgeClosed(ctx context.Context, olderThan time.Duration) (int, error) {
	purged, err := p.store.PurgeClosed(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge closed rooms: %w", err)
	}
	for _, r := range purged {
		p.emit(ctx, models.RoomDeleted, r)
	}
	return len(purged), nil
}
