// Package historian drains room audit records from the Redis queue and
// persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/peerplay/internal/config"
	"github.com/jason-s-yu/peerplay/internal/database"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/sirupsen/logrus"
)

// Source yields queued audit records. cache.AuditQueue implements it.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (models.RoomAuditRecord, bool, error)
}

// Sink persists one batch.
type Sink interface {
	Write(ctx context.Context, recs []models.RoomAuditRecord) error
}

// PostgresSink writes batches into room_events.
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Write(ctx context.Context, recs []models.RoomAuditRecord) error {
	return database.InsertRoomEvents(ctx, s.db, recs)
}

const (
	// maxPendingBatches bounds how much is held back while the sink is failing.
	maxPendingBatches = 10
	shutdownFlush     = 5 * time.Second
	errorBackoff      = time.Second
)

// Service accumulates records and flushes them when the batch is full or
// FlushEvery has passed since the last flush.
type Service struct {
	src        Source
	sink       Sink
	batchSize  int
	flushEvery time.Duration
	logger     logrus.FieldLogger

	batch     []models.RoomAuditRecord
	lastFlush time.Time
	written   int
}

func New(src Source, sink Sink, cfg config.HistorianConfig, logger logrus.FieldLogger) *Service {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 500 * time.Millisecond
	}
	return &Service{
		src:        src,
		sink:       sink,
		batchSize:  cfg.BatchSize,
		flushEvery: cfg.FlushEvery,
		logger:     logger.WithField("component", "historian"),
		batch:      make([]models.RoomAuditRecord, 0, cfg.BatchSize),
	}
}

// Written reports how many records have been persisted. Only safe to call
// after Run returns.
func (s *Service) Written() int { return s.written }

// Run pops until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{"batch_size": s.batchSize, "flush_every": s.flushEvery}).Info("historian started")
	s.lastFlush = time.Now()
	for ctx.Err() == nil {
		rec, ok, err := s.src.Pop(ctx, s.flushEvery)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			s.logger.WithError(err).Error("pop failed")
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
		case ok:
			s.batch = append(s.batch, rec)
		}

		if len(s.batch) >= s.batchSize || (len(s.batch) > 0 && time.Since(s.lastFlush) >= s.flushEvery) {
			s.flush(ctx)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlush)
	defer cancel()
	s.flush(flushCtx)
	s.logger.WithField("written", s.written).Info("historian shutting down")
	if len(s.batch) > 0 {
		return errors.New("historian stopped with unwritten records")
	}
	return nil
}

func (s *Service) flush(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}
	if err := s.sink.Write(ctx, s.batch); err != nil {
		log := s.logger.WithError(err).WithField("pending", len(s.batch))
		if len(s.batch) >= maxPendingBatches*s.batchSize {
			log.Error("dropping room events after repeated write failures")
			s.batch = s.batch[:0]
			return
		}
		log.Warn("flush failed, will retry")
		return
	}
	s.written += len(s.batch)
	s.logger.WithField("count", len(s.batch)).Debug("flushed room events")
	s.batch = make([]models.RoomAuditRecord, 0, s.batchSize)
}
