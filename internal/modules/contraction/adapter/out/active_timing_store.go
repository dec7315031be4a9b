package out

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	contractionout "laborwatch/internal/modules/contraction/port/out"
	apperrors "laborwatch/internal/platform/errors"
)

type FileActiveTimingStore struct {
	path string
}

func NewFileActiveTimingStore(path string) *FileActiveTimingStore {
	return &FileActiveTimingStore{path: path}
}

func (s *FileActiveTimingStore) SaveActive(_ context.Context, active contractionout.ActiveTiming) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create active timing dir: %w", err)
	}
	payload, err := json.MarshalIndent(active, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal active timing: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write active timing: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace active timing: %w", err)
	}
	return nil
}

func (s *FileActiveTimingStore) LoadActive(_ context.Context) (contractionout.ActiveTiming, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return contractionout.ActiveTiming{}, apperrors.ErrNoActiveTiming
		}
		return contractionout.ActiveTiming{}, fmt.Errorf("read active timing: %w", err)
	}
	active := contractionout.ActiveTiming{}
	if err := json.Unmarshal(payload, &active); err != nil {
		return contractionout.ActiveTiming{}, fmt.Errorf("decode active timing: %w", err)
	}
	if active.TimingID == "" || active.StartedAt.IsZero() {
		return contractionout.ActiveTiming{}, apperrors.ErrNoActiveTiming
	}
	return active, nil
}

func (s *FileActiveTimingStore) ClearActive(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear active timing: %w", err)
	}
	return nil
}
