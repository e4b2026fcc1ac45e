package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftlabs/driftbot/internal/domain"
)

// checkpointTTL keeps abandoned sweep checkpoints from accumulating forever.
const checkpointTTL = 7 * 24 * time.Hour

// CheckpointStore implements domain.CheckpointStore by storing optimizer
// progress as JSON at key "optcp:{runID}". It lets a sweep resume on a
// different host than the one that started it.
type CheckpointStore struct {
	rdb *redis.Client
}

// NewCheckpointStore creates a CheckpointStore backed by the given Client.
func NewCheckpointStore(c *Client) *CheckpointStore {
	return &CheckpointStore{rdb: c.rdb}
}

func checkpointKey(runID string) string {
	return "optcp:" + runID
}

// Save persists the checkpoint, replacing any previous one for the run.
func (cs *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redis: marshal checkpoint %s: %w", cp.RunID, err)
	}
	if err := cs.rdb.Set(ctx, checkpointKey(cp.RunID), data, checkpointTTL).Err(); err != nil {
		return fmt.Errorf("redis: save checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

// Load retrieves the checkpoint for a run. It returns domain.ErrNotFound
// when no checkpoint exists.
func (cs *CheckpointStore) Load(ctx context.Context, runID string) (domain.Checkpoint, error) {
	data, err := cs.rdb.Get(ctx, checkpointKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Checkpoint{}, domain.ErrNotFound
		}
		return domain.Checkpoint{}, fmt.Errorf("redis: load checkpoint %s: %w", runID, err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("redis: decode checkpoint %s: %w", runID, err)
	}
	return cp, nil
}

// Delete removes a run's checkpoint. Deleting a missing checkpoint is not
// an error.
func (cs *CheckpointStore) Delete(ctx context.Context, runID string) error {
	if err := cs.rdb.Del(ctx, checkpointKey(runID)).Err(); err != nil {
		return fmt.Errorf("redis: delete checkpoint %s: %w", runID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CheckpointStore = (*CheckpointStore)(nil)
