package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for room audit records.
const DefaultQueueName = "peerplay_room_events"

// AuditQueue is the Redis list between the directory and the historian.
type AuditQueue struct {
	rdb  *redis.Client
	name string
}

func NewAuditQueue(rdb *redis.Client, name string) *AuditQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &AuditQueue{rdb: rdb, name: name}
}

// Push serializes the record to JSON and appends it to the queue.
func (q *AuditQueue) Push(ctx context.Context, rec models.RoomAuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoomAuditRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record. ok is false when the wait timed out.
func (q *AuditQueue) Pop(ctx context.Context, timeout time.Duration) (rec models.RoomAuditRecord, ok bool, err error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return rec, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return rec, false, fmt.Errorf("invalid audit record: %w", err)
	}
	return rec, true, nil
}

// Len reports the queue depth.
func (q *AuditQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}
