package out_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	contractionoutadapter "laborwatch/internal/modules/contraction/adapter/out"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	apperrors "laborwatch/internal/platform/errors"
)

func TestFileActiveTimingStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "active-timing.json")
	store := contractionoutadapter.NewFileActiveTimingStore(path)

	if _, err := store.LoadActive(ctx); !errors.Is(err, apperrors.ErrNoActiveTiming) {
		t.Fatalf("expected no active timing, got %v", err)
	}

	want := contractionout.ActiveTiming{TimingID: "timing-1", StartedAt: base}
	if err := store.SaveActive(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TimingID != want.TimingID || !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("unexpected active timing: %+v", got)
	}

	if err := store.ClearActive(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.ClearActive(ctx); err != nil {
		t.Fatalf("clearing twice should be a no-op: %v", err)
	}
	if _, err := store.LoadActive(ctx); !errors.Is(err, apperrors.ErrNoActiveTiming) {
		t.Fatalf("expected no active timing after clear, got %v", err)
	}
}

func TestFileActiveTimingStoreEmptyFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "active-timing.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := contractionoutadapter.NewFileActiveTimingStore(path)
	if _, err := store.LoadActive(context.Background()); !errors.Is(err, apperrors.ErrNoActiveTiming) {
		t.Fatalf("expected no active timing for empty record, got %v", err)
	}
}
