package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	contractionoutadapter "laborwatch/internal/modules/contraction/adapter/out"
	"laborwatch/internal/modules/contraction/domain"
	"laborwatch/internal/modules/contraction/dto"
	contractionin "laborwatch/internal/modules/contraction/port/in"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	"laborwatch/internal/modules/contraction/service"
	contractionusecase "laborwatch/internal/modules/contraction/usecase"
	apperrors "laborwatch/internal/platform/errors"
)

var t0 = time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("timing-%d", g.n)
}

type countingNotifier struct {
	mu    sync.Mutex
	fired int
}

func (n *countingNotifier) Notify(context.Context, domain.Event, domain.UrgencyLevel) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired++
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fired
}

// stuckStore saves and loads like the file store but cannot clear.
type stuckStore struct {
	contractionout.ActiveTimingStore
}

func (stuckStore) ClearActive(context.Context) error {
	return errors.New("read-only file system")
}

type harness struct {
	uc       contractionin.Usecase
	svc      *service.TrackerService
	clock    *fakeClock
	notifier *countingNotifier
}

func newHarness(t *testing.T, clk *fakeClock, ledger contractionout.Ledger, active contractionout.ActiveTimingStore, dir string) harness {
	t.Helper()
	classifier, err := domain.NewClassifier(domain.DefaultPolicy())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	notifier := &countingNotifier{}
	svc := service.NewTrackerService(clk, ledger, notifier, classifier, service.NewFeed(domain.PerEvent), nil)
	if err := svc.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	exporter := contractionoutadapter.NewMarkdownExporter(dir, clk)
	uc := contractionusecase.NewInteractor(svc, active, exporter, &sequenceIDs{}, nil)
	return harness{uc: uc, svc: svc, clock: clk, notifier: notifier}
}

func TestThreeShortContractionsBecomeUrgent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{now: t0}, contractionoutadapter.NewMemoryLedger(), nil, t.TempDir())

	var levels []string
	for i := 0; i < 3; i++ {
		started, err := h.uc.Start(ctx)
		if err != nil || !started.Started {
			t.Fatalf("start %d: %+v %v", i, started, err)
		}
		h.clock.Advance(250 * time.Second)
		stopped, err := h.uc.Stop(ctx)
		if err != nil || !stopped.Completed {
			t.Fatalf("stop %d: %+v %v", i, stopped, err)
		}
		if stopped.Event.DurationSec != 250 || !stopped.Event.Persisted {
			t.Fatalf("unexpected event %+v", stopped.Event)
		}
		levels = append(levels, stopped.Level)
		h.clock.Advance(4 * time.Minute)
	}
	if strings.Join(levels, ",") != "Calm,Calm,Urgent" {
		t.Fatalf("unexpected levels %v", levels)
	}
	h.svc.WaitAlerts()
	if h.notifier.count() != 1 {
		t.Fatalf("expected the notifier to fire once, got %d", h.notifier.count())
	}

	summary, err := h.uc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Count != 3 || summary.WindowMeanSec != 250 || summary.Level != "Urgent" || summary.Timing {
		t.Fatalf("unexpected summary %+v", summary)
	}

	series, err := h.uc.LiveSeries(ctx)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if series.Mode != "per-event" || len(series.X) != 3 || series.Y[2] != 250 {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestStartTwiceKeepsFirstTiming(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, &fakeClock{now: t0}, contractionoutadapter.NewMemoryLedger(), nil, t.TempDir())

	first, _ := h.uc.Start(ctx)
	h.clock.Advance(10 * time.Second)
	second, err := h.uc.Start(ctx)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.Started || second.TimingID != first.TimingID || !second.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("second start should be a no-op: %+v vs %+v", second, first)
	}

	status, err := h.uc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != "timing" || status.ElapsedSec != 10 || status.TimingID != first.TimingID {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakeClock{now: t0}, contractionoutadapter.NewMemoryLedger(), nil, t.TempDir())
	stopped, err := h.uc.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Completed {
		t.Fatalf("idle stop must not complete: %+v", stopped)
	}
}

func TestActiveTimingSurvivesAcrossProcesses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	clk := &fakeClock{now: t0}
	ledger, err := contractionoutadapter.NewSQLiteLedger(filepath.Join(dir, "laborwatch.db"))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	activePath := filepath.Join(dir, "active-timing.json")

	starter := newHarness(t, clk, ledger, contractionoutadapter.NewFileActiveTimingStore(activePath), dir)
	started, err := starter.uc.Start(ctx)
	if err != nil || !started.Started {
		t.Fatalf("start: %+v %v", started, err)
	}

	clk.Advance(75 * time.Second)
	stopper := newHarness(t, clk, ledger, contractionoutadapter.NewFileActiveTimingStore(activePath), dir)
	status, err := stopper.uc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != "timing" || status.TimingID != started.TimingID || status.ElapsedSec != 75 {
		t.Fatalf("second process should see the active timing: %+v", status)
	}
	stopped, err := stopper.uc.Stop(ctx)
	if err != nil || !stopped.Completed || stopped.Event.DurationSec != 75 {
		t.Fatalf("stop: %+v %v", stopped, err)
	}
	if _, err := os.Stat(activePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("active timing file should be cleared, got %v", err)
	}

	again, err := starter.uc.Stop(ctx)
	if err != nil || again.Completed {
		t.Fatalf("first process must not record the same timing twice: %+v %v", again, err)
	}
	history, err := starter.uc.History(ctx, dto.HistoryInput{})
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one stored event, got %+v %v", history, err)
	}
}

func TestResetClearsActiveTiming(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	activePath := filepath.Join(dir, "active-timing.json")
	h := newHarness(t, &fakeClock{now: t0}, contractionoutadapter.NewMemoryLedger(), contractionoutadapter.NewFileActiveTimingStore(activePath), dir)

	if _, err := h.uc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.uc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := os.Stat(activePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("reset should remove the active timing file")
	}
	status, _ := h.uc.Status(ctx)
	if status.State != "idle" {
		t.Fatalf("expected idle after reset, got %s", status.State)
	}
}

func TestHistoryOrderAndExport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	h := newHarness(t, &fakeClock{now: t0}, contractionoutadapter.NewMemoryLedger(), nil, dir)
	for _, d := range []time.Duration{300, 200} {
		_, _ = h.uc.Start(ctx)
		h.clock.Advance(d * time.Second)
		_, _ = h.uc.Stop(ctx)
		h.clock.Advance(time.Minute)
	}

	newest, err := h.uc.History(ctx, dto.HistoryInput{Order: "newest"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	oldest, err := h.uc.History(ctx, dto.HistoryInput{Order: "oldest"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if newest[0].DurationSec != 200 || oldest[0].DurationSec != 300 {
		t.Fatalf("unexpected order: newest %+v oldest %+v", newest, oldest)
	}
	if _, err := h.uc.History(ctx, dto.HistoryInput{Order: "sideways"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	out, err := h.uc.Export(ctx, dto.ExportInput{Path: filepath.Join(dir, "notes", "labor.md")})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Records != 2 {
		t.Fatalf("expected two exported records, got %d", out.Records)
	}
	raw, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(raw), "| 2 | 2026-03-14 02:06:00 | 3m20s | Calm |") {
		t.Fatalf("export missing second record:\n%s", raw)
	}

	report, err := h.uc.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(report, "# Contraction history") || !strings.Contains(report, "Recorded: 2") {
		t.Fatalf("unexpected report:\n%s", report)
	}
}

func TestFailedClearRecordsTimingOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	ledger := contractionoutadapter.NewMemoryLedger()
	store := stuckStore{contractionoutadapter.NewFileActiveTimingStore(filepath.Join(dir, "active-timing.json"))}
	h := newHarness(t, &fakeClock{now: t0}, ledger, store, dir)

	if _, err := h.uc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(90 * time.Second)
	first, err := h.uc.Stop(ctx)
	if err != nil {
		t.Fatalf("stop should report the clear failure alongside the event: %v", err)
	}
	if !first.Completed || first.Event.DurationSec != 90 || !strings.Contains(first.Warning, "read-only") {
		t.Fatalf("unexpected stop output %+v", first)
	}

	h.clock.Advance(30 * time.Second)
	second, err := h.uc.Stop(ctx)
	if err != nil || second.Completed {
		t.Fatalf("a recorded timing must not be resumed: %+v %v", second, err)
	}
	status, err := h.uc.Status(ctx)
	if err != nil || status.State != "idle" {
		t.Fatalf("expected idle, got %+v %v", status, err)
	}
	events, err := ledger.List(ctx, contractionout.OldestFirst)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one ledger row for one start, got %d %v", len(events), err)
	}

	if _, err := h.uc.Start(ctx); err != nil {
		t.Fatalf("a new timing should still start: %v", err)
	}
	if status, _ := h.uc.Status(ctx); status.State != "timing" || status.TimingID != "timing-2" {
		t.Fatalf("expected the new timing, got %+v", status)
	}
}

func TestWindowFollowsOtherWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	clk := &fakeClock{now: t0}
	ledger, err := contractionoutadapter.NewSQLiteLedger(filepath.Join(dir, "laborwatch.db"))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	server := newHarness(t, clk, ledger, nil, dir)
	cli := newHarness(t, clk, ledger, nil, dir)
	for i := 0; i < 2; i++ {
		_, _ = cli.uc.Start(ctx)
		clk.Advance(250 * time.Second)
		if out, err := cli.uc.Stop(ctx); err != nil || out.Level != "Calm" {
			t.Fatalf("cli stop %d: %+v %v", i, out, err)
		}
		clk.Advance(4 * time.Minute)
	}

	summary, err := server.uc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Count != 2 || summary.TotalSec != 500 {
		t.Fatalf("server should see the cli events: %+v", summary)
	}

	_, _ = server.uc.Start(ctx)
	clk.Advance(250 * time.Second)
	out, err := server.uc.Stop(ctx)
	if err != nil || out.Level != "Urgent" {
		t.Fatalf("third short contraction should be urgent on the server: %+v %v", out, err)
	}
	server.svc.WaitAlerts()
	if server.notifier.count() != 1 {
		t.Fatalf("server should alert, got %d", server.notifier.count())
	}

	events, err := ledger.List(ctx, contractionout.OldestFirst)
	if err != nil || len(events) != 3 || events[2].Status != domain.Urgent {
		t.Fatalf("ledger should hold the urgent event: %+v %v", events, err)
	}
	series, _ := server.uc.LiveSeries(ctx)
	if len(series.Y) != 3 {
		t.Fatalf("server series should include events stopped elsewhere, got %+v", series)
	}

	again, err := server.uc.Summary(ctx)
	if err != nil || again.Count != 3 {
		t.Fatalf("own events must not be folded twice: %+v %v", again, err)
	}
}
