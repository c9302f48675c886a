package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps checkpoints as JSON values under <prefix><jobID>, with a
// sorted set <prefix>index scored by checkpoint timestamp for listing.
// Traces stay on the local filesystem.
type RedisStore struct {
	client  *backend.Client
	prefix  string
	timeout time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout bounds every redis round trip.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

// NewRedisStore connects to a redis server at addr.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		prefix:  "saddlefind:checkpoint:",
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(jobID string) string {
	return s.prefix + jobID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveCheckpoint writes the checkpoint and its index entry in one pipeline.
func (s *RedisStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := checkpoint.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(jobID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(checkpoint.Timestamp.UnixNano()),
		Member: jobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "iteration", checkpoint.Iteration, "key", s.key(jobID))
	return nil
}

// LoadCheckpoint reads the checkpoint of a job.
func (s *RedisStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	ctx, cancel := s.ctx()
	defer cancel()

	data, err := s.client.Get(ctx, s.key(jobID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint from redis: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints returns metadata for all indexed checkpoints, newest first.
// Index entries whose value has disappeared are pruned.
func (s *RedisStore) ListCheckpoints() ([]CheckpointInfo, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	infos := []CheckpointInfo{}
	if len(ids) == 0 {
		return infos, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var checkpoint Checkpoint
		if err := json.Unmarshal([]byte(raw), &checkpoint); err != nil {
			slog.Warn("Failed to load checkpoint for listing", "jobID", ids[i], "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			slog.Warn("Failed to prune checkpoint index", "error", err)
		}
	}

	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint and its index entry.
func (s *RedisStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	ctx, cancel := s.ctx()
	defer cancel()

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(jobID))
	pipe.ZRem(ctx, s.indexKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint from redis: %w", err)
	}
	if del.Val() == 0 {
		return &NotFoundError{JobID: jobID}
	}

	slog.Debug("Checkpoint deleted", "jobID", jobID)
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
