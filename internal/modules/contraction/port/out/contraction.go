package out

import (
	"context"
	"time"

	"laborwatch/internal/modules/contraction/domain"
)

type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// Ledger is the append-only event store. Append and read failures wrap
// apperrors.ErrStorageFailure. ListSince returns rows with an id above
// afterID in insertion order, so other writers to the same store can be
// followed.
type Ledger interface {
	Append(ctx context.Context, event domain.Event) (int64, error)
	List(ctx context.Context, order Order) ([]domain.Event, error)
	ListSince(ctx context.Context, afterID int64) ([]domain.Event, error)
}

type ActiveTiming struct {
	TimingID  string    `json:"timing_id"`
	StartedAt time.Time `json:"started_at"`
}

// ActiveTimingStore persists an in-progress timing so that start and stop may
// run in different processes. LoadActive returns apperrors.ErrNoActiveTiming
// when nothing is stored.
type ActiveTimingStore interface {
	SaveActive(ctx context.Context, active ActiveTiming) error
	LoadActive(ctx context.Context) (ActiveTiming, error)
	ClearActive(ctx context.Context) error
}

// AlertNotifier is told about events that reached the most severe level.
type AlertNotifier interface {
	Notify(ctx context.Context, event domain.Event, level domain.UrgencyLevel) error
}

// HistoryExporter turns history into a markdown note. Render produces the
// note text; Export writes it to path, preserving user text already there.
type HistoryExporter interface {
	Render(events []domain.Event, stats domain.Stats) (string, error)
	Export(ctx context.Context, path string, events []domain.Event, stats domain.Stats) (string, error)
}
