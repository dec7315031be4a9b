package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	"laborwatch/internal/modules/contraction/service"
	apperrors "laborwatch/internal/platform/errors"
)

func newTracker(t *testing.T, ledger contractionout.Ledger, notifier contractionout.AlertNotifier, logs *bytes.Buffer) (*service.TrackerService, *fakeClock) {
	t.Helper()
	classifier, err := domain.NewClassifier(domain.DefaultPolicy())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	var logger *slog.Logger
	if logs != nil {
		logger = slog.New(slog.NewTextHandler(logs, nil))
	}
	clk := newFakeClock()
	return service.NewTrackerService(clk, ledger, notifier, classifier, service.NewFeed(domain.PerEvent), logger), clk
}

func cycle(t *testing.T, svc *service.TrackerService, clk *fakeClock, d time.Duration) service.StopResult {
	t.Helper()
	if _, ok := svc.Start(); !ok {
		t.Fatalf("start should transition from idle")
	}
	clk.Advance(d)
	result := svc.Stop(context.Background())
	if !result.Completed {
		t.Fatalf("stop after %s should complete", d)
	}
	clk.Advance(5 * time.Minute)
	return result
}

func TestStopPipelineClassifiesAndNotifies(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	notifier := &recordingNotifier{}
	svc, clk := newTracker(t, ledger, notifier, nil)

	var heard []domain.UrgencyLevel
	svc.OnEventCompleted(func(_ domain.Event, level domain.UrgencyLevel) {
		heard = append(heard, level)
	})

	want := []domain.UrgencyLevel{domain.Calm, domain.Calm, domain.Urgent}
	for i := range want {
		result := cycle(t, svc, clk, 250*time.Second)
		if result.Level != want[i] || result.Event.Status != want[i] {
			t.Fatalf("cycle %d: expected %s, got %s", i, want[i], result.Level)
		}
		if result.StorageErr != nil || result.Event.ID != int64(i+1) {
			t.Fatalf("cycle %d: unexpected result %+v", i, result)
		}
	}
	svc.WaitAlerts()
	if notifier.count() != 1 {
		t.Fatalf("expected one urgent alert, got %d", notifier.count())
	}
	if len(heard) != 3 || heard[2] != domain.Urgent {
		t.Fatalf("listeners saw %v", heard)
	}
	if svc.Feed().Len() != 3 {
		t.Fatalf("expected three feed points, got %d", svc.Feed().Len())
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	svc, _ := newTracker(t, ledger, nil, nil)
	if result := svc.Stop(context.Background()); result.Completed {
		t.Fatalf("stop while idle must not emit: %+v", result)
	}
	if len(ledger.events) != 0 || svc.Feed().Len() != 0 {
		t.Fatalf("idle stop must not record anything")
	}
}

func TestStorageFailureKeepsEventInMemory(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	var logs bytes.Buffer
	svc, clk := newTracker(t, ledger, nil, &logs)

	cycle(t, svc, clk, 200*time.Second)
	ledger.setDown(true)
	failed := cycle(t, svc, clk, 200*time.Second)
	if !errors.Is(failed.StorageErr, apperrors.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", failed.StorageErr)
	}
	if failed.Event.Persisted() {
		t.Fatalf("failed event must not carry an id")
	}
	if strings.Count(logs.String(), "kept in memory only") != 1 {
		t.Fatalf("storage failure should be logged once:\n%s", logs.String())
	}

	ledger.setDown(false)
	third := cycle(t, svc, clk, 200*time.Second)
	if third.Level != domain.Urgent {
		t.Fatalf("cache-only event must still count toward classification, got %s", third.Level)
	}
	if third.StorageErr != nil {
		t.Fatalf("recovered ledger should not report an error: %v", third.StorageErr)
	}
	if svc.Summary().Count != 3 || svc.Feed().Len() != 3 {
		t.Fatalf("expected three events in memory")
	}

	history, err := svc.History(context.Background(), contractionout.OldestFirst)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[1].Persisted() || !history[2].Persisted() {
		t.Fatalf("history should merge cache-only events in order: %+v", history)
	}

	ledger.setDown(true)
	cached, err := svc.History(context.Background(), contractionout.NewestFirst)
	if !errors.Is(err, apperrors.ErrStorageFailure) {
		t.Fatalf("expected list failure, got %v", err)
	}
	if len(cached) != 1 || cached[0].Persisted() {
		t.Fatalf("cache-only events should survive a list failure: %+v", cached)
	}
}

func TestWarmRebuildsWindowFromLedger(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	first, clk := newTracker(t, ledger, nil, nil)
	for _, d := range []time.Duration{400, 250, 250} {
		cycle(t, first, clk, d*time.Second)
	}

	second, clk2 := newTracker(t, ledger, nil, nil)
	if err := second.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if got := second.Status().Level; got != domain.Approaching {
		t.Fatalf("expected warmed level approaching, got %s", got)
	}
	if second.Feed().Len() != 0 {
		t.Fatalf("feed must not be preloaded")
	}
	if result := cycle(t, second, clk2, 250*time.Second); result.Level != domain.Urgent {
		t.Fatalf("expected urgent after warm, got %s", result.Level)
	}
}

func TestResetClearsTimingAndFeedOnly(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	svc, clk := newTracker(t, ledger, nil, nil)
	cycle(t, svc, clk, 100*time.Second)

	svc.Start()
	clk.Advance(30 * time.Second)
	if !svc.Reset() {
		t.Fatalf("reset while timing should report a discard")
	}
	if svc.Status().State != domain.Idle || svc.Feed().Len() != 0 {
		t.Fatalf("reset should leave idle with an empty feed")
	}
	if svc.Summary().Count != 1 || len(ledger.events) != 1 {
		t.Fatalf("reset must not touch history")
	}
	if svc.Reset() {
		t.Fatalf("reset while idle discards nothing")
	}
}

func TestDiscardTimingKeepsFeed(t *testing.T) {
	t.Parallel()
	svc, clk := newTracker(t, &flakyLedger{}, nil, nil)
	cycle(t, svc, clk, 100*time.Second)
	svc.Start()
	if !svc.DiscardTiming() {
		t.Fatalf("expected timing to be discarded")
	}
	if svc.Feed().Len() != 1 || svc.Status().Completed != 1 {
		t.Fatalf("discard should keep the feed and completed count")
	}
}

func TestSetClassifierRebuildsWindow(t *testing.T) {
	t.Parallel()
	svc, clk := newTracker(t, &flakyLedger{}, nil, nil)
	for i := 0; i < 2; i++ {
		cycle(t, svc, clk, 100*time.Second)
	}
	if svc.Status().Level != domain.Calm {
		t.Fatalf("two events under k=3 should be calm")
	}
	policy := domain.DefaultPolicy()
	policy.Window = 2
	classifier, err := domain.NewClassifier(policy)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	svc.SetClassifier(classifier)
	if svc.Status().Level != domain.Urgent {
		t.Fatalf("k=2 over two short events should be urgent, got %s", svc.Status().Level)
	}
}

func TestStatusReportsElapsed(t *testing.T) {
	t.Parallel()
	svc, clk := newTracker(t, &flakyLedger{}, nil, nil)
	svc.Start()
	svc.Start()
	clk.Advance(42 * time.Second)
	status := svc.Status()
	if status.State != domain.Timing || status.Elapsed != 42*time.Second || !status.StartedAt.Equal(t0) {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestUrgentAlertDoesNotBlockStop(t *testing.T) {
	t.Parallel()
	notifier := &blockingNotifier{release: make(chan struct{}), called: make(chan error, 1)}
	var logs bytes.Buffer
	svc, clk := newTracker(t, &flakyLedger{}, notifier, &logs)
	cycle(t, svc, clk, 100*time.Second)
	cycle(t, svc, clk, 100*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start()
	clk.Advance(100 * time.Second)
	done := make(chan service.StopResult, 1)
	go func() { done <- svc.Stop(ctx) }()

	select {
	case result := <-done:
		if result.Level != domain.Urgent {
			t.Fatalf("expected urgent, got %s", result.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stop waited on the notifier")
	}
	cancel()

	select {
	case err := <-notifier.called:
		if err != nil {
			t.Fatalf("alert context must outlive the stop call: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notifier never called")
	}
	close(notifier.release)
	svc.WaitAlerts()
	if !strings.Contains(logs.String(), "urgent alert delivery failed") {
		t.Fatalf("delivery error should be logged:\n%s", logs.String())
	}
}

func TestResetKeepsUnsavedEventsInHistory(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	svc, clk := newTracker(t, ledger, nil, nil)
	cycle(t, svc, clk, 120*time.Second)
	ledger.setDown(true)
	cycle(t, svc, clk, 130*time.Second)
	ledger.setDown(false)

	svc.Reset()
	if svc.Status().Completed != 0 || svc.Feed().Len() != 0 {
		t.Fatalf("reset should clear the completed count and feed")
	}
	history, err := svc.History(context.Background(), contractionout.OldestFirst)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Persisted() || history[1].Seconds() != 130 {
		t.Fatalf("unsaved event must stay in history after reset: %+v", history)
	}
	if svc.Summary().Count != len(history) {
		t.Fatalf("summary and history disagree: %d vs %d", svc.Summary().Count, len(history))
	}
}

func TestSyncFoldsRowsFromOtherWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := &flakyLedger{}
	svc, clk := newTracker(t, ledger, &recordingNotifier{}, nil)
	if err := svc.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	cycle(t, svc, clk, 250*time.Second)

	// another process appends straight to the shared ledger
	other := domain.Event{StartedAt: clk.Now(), Duration: 250 * time.Second, RecordedAt: clk.Now().Add(250 * time.Second), Status: domain.Calm}
	if _, err := ledger.Append(ctx, other); err != nil {
		t.Fatalf("append: %v", err)
	}
	clk.Advance(10 * time.Minute)

	if err := svc.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if svc.Summary().Count != 2 || svc.Feed().Len() != 2 {
		t.Fatalf("foreign row should reach the window and feed: count=%d feed=%d", svc.Summary().Count, svc.Feed().Len())
	}
	if err := svc.Sync(ctx); err != nil || svc.Summary().Count != 2 {
		t.Fatalf("a second sync must not fold rows again")
	}
	if result := cycle(t, svc, clk, 250*time.Second); result.Level != domain.Urgent {
		t.Fatalf("third short contraction across writers should be urgent, got %s", result.Level)
	}
	if svc.Summary().Count != 3 {
		t.Fatalf("own rows must not be folded twice, got %d", svc.Summary().Count)
	}
}

func TestSyncFailureKeepsClassifying(t *testing.T) {
	t.Parallel()
	ledger := &flakyLedger{}
	var logs bytes.Buffer
	svc, clk := newTracker(t, ledger, nil, &logs)
	cycle(t, svc, clk, 100*time.Second)
	ledger.setDown(true)
	if err := svc.Sync(context.Background()); !errors.Is(err, apperrors.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	cycle(t, svc, clk, 100*time.Second)
	if !strings.Contains(logs.String(), "classifying without other writers") {
		t.Fatalf("sync failure inside stop should be logged:\n%s", logs.String())
	}
}
