// Package progress implements the Progress Channel (C3, §3, §6): a
// per-job ephemeral record in Redis, keyed "media-bot:progress:<jobId>",
// TTL-bounded, overwritten on every update. Grounded on the teacher's
// internal/cache/memory.go for the Set/Get/Delete + TTL shape, re-backed by
// Redis per micahg-cobblepod's internal/state/state.go since §6 requires the
// record to survive independently of the engine process.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// TTL is the fixed expiry for every progress record (§6).
const TTL = 3600 * time.Second

const keyPrefix = "media-bot:progress:"

func key(jobID string) string {
	return keyPrefix + jobID
}

// Store wraps a Redis client providing Progress Channel semantics. Only one
// writer exists per key (the job's own driver), so last-writer-wins is
// acceptable and no locking is performed (§5).
type Store struct {
	client *redis.Client
}

// NewStore constructs a Store against the given Redis URL (host:port form).
func NewStore(addr string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreFromClient wraps an already-constructed client, for tests against
// a miniredis-style in-memory server or a shared pool.
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Set overwrites the progress record for a job, refreshing its TTL.
func (s *Store) Set(ctx context.Context, record models.ProgressRecord) error {
	record.UpdatedAt = time.Now()
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal progress record: %w", err)
	}
	return s.client.Set(ctx, key(record.JobID), data, TTL).Err()
}

// Get retrieves the current progress record for a job, if any.
func (s *Store) Get(ctx context.Context, jobID string) (*models.ProgressRecord, bool, error) {
	data, err := s.client.Get(ctx, key(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read progress record: %w", err)
	}
	var record models.ProgressRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal progress record: %w", err)
	}
	return &record, true, nil
}

// Delete removes a job's progress record. Called on entry to a terminal
// state (§4.4 step 6).
func (s *Store) Delete(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, key(jobID)).Err()
}

// Ping reports whether the backing Redis instance is reachable, used by the
// health server's /ready check (§6).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
