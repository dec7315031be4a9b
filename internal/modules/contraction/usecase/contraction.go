package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"laborwatch/internal/modules/contraction/domain"
	"laborwatch/internal/modules/contraction/dto"
	contractionin "laborwatch/internal/modules/contraction/port/in"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	"laborwatch/internal/modules/contraction/service"
	apperrors "laborwatch/internal/platform/errors"
	"laborwatch/internal/platform/id"
)

// Interactor maps the tracker service onto the usecase port. When an active
// timing store is configured, an in-progress timing is shared with other
// processes through it; a nil store keeps timing in this process only.
type Interactor struct {
	svc         *service.TrackerService
	activeStore contractionout.ActiveTimingStore
	exporter    contractionout.HistoryExporter
	ids         id.Generator
	logger      *slog.Logger

	mu       sync.Mutex
	timingID string
	// stoppedID is the last timing this process recorded. It is never
	// resumed, even if clearing it from the store failed.
	stoppedID string
}

func NewInteractor(svc *service.TrackerService, activeStore contractionout.ActiveTimingStore, exporter contractionout.HistoryExporter, ids id.Generator, logger *slog.Logger) contractionin.Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interactor{svc: svc, activeStore: activeStore, exporter: exporter, ids: ids, logger: logger}
}

func (i *Interactor) Start(ctx context.Context) (dto.StartOutput, error) {
	if err := i.syncActive(ctx); err != nil {
		return dto.StartOutput{}, err
	}
	startedAt, started := i.svc.Start()

	i.mu.Lock()
	defer i.mu.Unlock()
	if !started {
		return dto.StartOutput{Started: false, TimingID: i.timingID, StartedAt: startedAt.UTC()}, nil
	}
	i.timingID = i.ids.New()
	if i.activeStore != nil {
		active := contractionout.ActiveTiming{TimingID: i.timingID, StartedAt: startedAt.UTC()}
		if err := i.activeStore.SaveActive(ctx, active); err != nil {
			i.svc.DiscardTiming()
			i.timingID = ""
			return dto.StartOutput{}, err
		}
	}
	i.logger.Info("timing started", "timing_id", i.timingID)
	return dto.StartOutput{Started: true, TimingID: i.timingID, StartedAt: startedAt.UTC()}, nil
}

func (i *Interactor) Stop(ctx context.Context) (dto.StopOutput, error) {
	if err := i.syncActive(ctx); err != nil {
		return dto.StopOutput{}, err
	}
	i.mu.Lock()
	stopping := i.timingID
	i.mu.Unlock()

	result := i.svc.Stop(ctx)
	if result.Completed && stopping != "" {
		i.mu.Lock()
		i.stoppedID = stopping
		i.mu.Unlock()
	}
	clearErr := i.clearActive(ctx)
	if clearErr != nil {
		i.logger.Warn("active timing not cleared", "timing_id", stopping, "err", clearErr)
	}
	if !result.Completed {
		return dto.StopOutput{}, nil
	}
	out := dto.StopOutput{Completed: true, Event: toEventOutput(result.Event), Level: result.Level.String()}
	if result.StorageErr != nil {
		out.StorageError = result.StorageErr.Error()
	}
	if clearErr != nil {
		out.Warning = "active timing not cleared: " + clearErr.Error()
	}
	return out, nil
}

func (i *Interactor) Reset(ctx context.Context) error {
	if i.svc.Reset() {
		i.logger.Info("timing discarded")
	}
	return i.clearActive(ctx)
}

func (i *Interactor) Status(ctx context.Context) (dto.StatusOutput, error) {
	if err := i.syncActive(ctx); err != nil {
		return dto.StatusOutput{}, err
	}
	status := i.svc.Status()
	out := dto.StatusOutput{
		State:      status.State.String(),
		ElapsedSec: status.Elapsed.Seconds(),
		Level:      status.Level.String(),
		Completed:  status.Completed,
	}
	if status.State == domain.Timing {
		i.mu.Lock()
		out.TimingID = i.timingID
		i.mu.Unlock()
		out.StartedAt = status.StartedAt.UTC()
	}
	return out, nil
}

func (i *Interactor) History(ctx context.Context, input dto.HistoryInput) ([]dto.EventOutput, error) {
	order, err := parseOrder(input.Order)
	if err != nil {
		return nil, err
	}
	events, err := i.svc.History(ctx, order)
	out := make([]dto.EventOutput, 0, len(events))
	for _, e := range events {
		out = append(out, toEventOutput(e))
	}
	return out, err
}

func (i *Interactor) LiveSeries(context.Context) (dto.SeriesOutput, error) {
	xs, ys, mode := i.svc.Feed().Points()
	return dto.SeriesOutput{Mode: string(mode), X: xs, Y: ys}, nil
}

func (i *Interactor) SubscribeSeries(buffer int) (<-chan dto.SeriesUpdate, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	src, cancel := i.svc.Feed().Subscribe(buffer)
	out := make(chan dto.SeriesUpdate, buffer)
	go func() {
		defer close(out)
		for u := range src {
			select {
			case out <- toSeriesUpdate(u):
			default:
			}
		}
	}()
	return out, cancel
}

func (i *Interactor) Summary(ctx context.Context) (dto.SummaryOutput, error) {
	if err := i.syncActive(ctx); err != nil {
		return dto.SummaryOutput{}, err
	}
	if err := i.svc.Sync(ctx); err != nil {
		i.logger.Warn("summary without other writers' history", "err", err)
	}
	stats := i.svc.Summary()
	out := ToSummaryOutput(stats)
	out.Timing = i.svc.Status().State == domain.Timing
	return out, nil
}

func (i *Interactor) Export(ctx context.Context, input dto.ExportInput) (dto.ExportOutput, error) {
	if i.exporter == nil {
		return dto.ExportOutput{}, fmt.Errorf("%w: export is not configured", apperrors.ErrInvalidInput)
	}
	events, err := i.svc.History(ctx, contractionout.OldestFirst)
	if err != nil {
		return dto.ExportOutput{}, err
	}
	path, err := i.exporter.Export(ctx, input.Path, events, i.svc.Summary())
	if err != nil {
		return dto.ExportOutput{}, err
	}
	return dto.ExportOutput{Path: path, Records: len(events)}, nil
}

func (i *Interactor) Report(ctx context.Context) (string, error) {
	if i.exporter == nil {
		return "", fmt.Errorf("%w: export is not configured", apperrors.ErrInvalidInput)
	}
	events, err := i.svc.History(ctx, contractionout.OldestFirst)
	if err != nil {
		return "", err
	}
	return i.exporter.Render(events, i.svc.Summary())
}

// syncActive resumes a timing another process started and forgets one
// another process stopped.
func (i *Interactor) syncActive(ctx context.Context) error {
	if i.activeStore == nil {
		return nil
	}
	active, err := i.activeStore.LoadActive(ctx)
	if errors.Is(err, apperrors.ErrNoActiveTiming) {
		i.mu.Lock()
		known := i.timingID != ""
		i.timingID = ""
		i.mu.Unlock()
		if known {
			i.svc.DiscardTiming()
		}
		return nil
	}
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timingID == active.TimingID {
		return nil
	}
	if active.TimingID == i.stoppedID {
		// already recorded here; the store outlived a failed clear
		if err := i.activeStore.ClearActive(ctx); err != nil {
			i.logger.Debug("stale active timing still stored", "timing_id", active.TimingID, "err", err)
		}
		return nil
	}
	if i.timingID != "" {
		// a different timing replaced ours; drop the stale one first
		i.svc.DiscardTiming()
	}
	i.svc.Resume(active.StartedAt)
	i.timingID = active.TimingID
	return nil
}

func (i *Interactor) clearActive(ctx context.Context) error {
	i.mu.Lock()
	i.timingID = ""
	i.mu.Unlock()
	if i.activeStore == nil {
		return nil
	}
	return i.activeStore.ClearActive(ctx)
}

func parseOrder(raw string) (contractionout.Order, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "newest":
		return contractionout.NewestFirst, nil
	case "oldest":
		return contractionout.OldestFirst, nil
	default:
		return 0, fmt.Errorf("%w: order must be newest or oldest, got %q", apperrors.ErrInvalidInput, raw)
	}
}

func toEventOutput(e domain.Event) dto.EventOutput {
	return dto.EventOutput{
		ID:          e.ID,
		StartedAt:   e.StartedAt.UTC(),
		RecordedAt:  e.RecordedAt.UTC(),
		DurationSec: e.Seconds(),
		Status:      e.Status.String(),
		Persisted:   e.Persisted(),
	}
}

// ToSummaryOutput maps domain stats for transports that read the service
// directly.
func ToSummaryOutput(stats domain.Stats) dto.SummaryOutput {
	return dto.SummaryOutput{
		Count:         stats.Count,
		Window:        stats.Window,
		WindowMeanSec: stats.WindowMean,
		MeanSec:       stats.Mean,
		MinSec:        stats.Min,
		MaxSec:        stats.Max,
		TotalSec:      stats.Total,
		Level:         stats.Level.String(),
		LevelRank:     int(stats.Level),
	}
}

func toSeriesUpdate(u service.FeedUpdate) dto.SeriesUpdate {
	return dto.SeriesUpdate{
		Reset: u.Reset,
		Mode:  string(u.Mode),
		X:     u.Point.X,
		Y:     u.Point.Y,
		Len:   u.Len,
		Level: u.Level.String(),
	}
}
