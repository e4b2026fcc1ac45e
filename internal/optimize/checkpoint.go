package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftlabs/driftbot/internal/domain"
)

// FileCheckpointStore persists sweep checkpoints as JSON files under a
// directory, one file per run ID. Writes go through a temp file and rename
// so a crash mid-save never leaves a torn checkpoint.
type FileCheckpointStore struct {
	dir string
}

func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("optimize: create checkpoint dir: %w", err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

func (s *FileCheckpointStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

func (s *FileCheckpointStore) Save(_ context.Context, cp domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("optimize: marshal checkpoint: %w", err)
	}
	tmp := s.path(cp.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("optimize: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path(cp.RunID)); err != nil {
		return fmt.Errorf("optimize: commit checkpoint: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) Load(_ context.Context, runID string) (domain.Checkpoint, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Checkpoint{}, domain.ErrNotFound
		}
		return domain.Checkpoint{}, fmt.Errorf("optimize: read checkpoint: %w", err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("optimize: decode checkpoint: %w", err)
	}
	return cp, nil
}

func (s *FileCheckpointStore) Delete(_ context.Context, runID string) error {
	if err := os.Remove(s.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("optimize: delete checkpoint: %w", err)
	}
	return nil
}
