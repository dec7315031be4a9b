package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	"laborwatch/internal/platform/clock"
)

// alertTimeout bounds one notifier delivery, which runs detached from the
// caller of Stop.
const alertTimeout = 30 * time.Second

// Listener is invoked once per completed cycle with the event as stored (or
// cached, when persistence failed) and its classified level.
type Listener func(event domain.Event, level domain.UrgencyLevel)

type StopResult struct {
	Completed  bool
	Event      domain.Event
	Level      domain.UrgencyLevel
	StorageErr error
}

type Status struct {
	State     domain.TimerState
	StartedAt time.Time
	Elapsed   time.Duration
	Level     domain.UrgencyLevel
	Completed int
}

// TrackerService runs the completion pipeline: classify, persist, extend the
// live series, then notify. Ledger I/O happens without holding the lock so a
// slow write never blocks timer reads. The window follows rows other
// processes append to the same ledger; see Sync.
type TrackerService struct {
	clock    clock.Clock
	ledger   contractionout.Ledger
	notifier contractionout.AlertNotifier
	feed     *Feed
	logger   *slog.Logger

	mu         sync.Mutex
	timer      domain.Timer
	classifier domain.Classifier
	window     *domain.RollingWindow
	durations  []float64
	completed  int
	unsaved    []domain.Event
	listeners  []Listener

	// ledger rows up to seen are folded into durations; own holds ids this
	// process appended above seen.
	seen   int64
	own    map[int64]struct{}
	warmed bool

	alerts sync.WaitGroup
}

func NewTrackerService(clk clock.Clock, ledger contractionout.Ledger, notifier contractionout.AlertNotifier, classifier domain.Classifier, feed *Feed, logger *slog.Logger) *TrackerService {
	if logger == nil {
		logger = slog.Default()
	}
	if feed == nil {
		feed = NewFeed(domain.PerEvent)
	}
	return &TrackerService{
		clock:      clk,
		ledger:     ledger,
		notifier:   notifier,
		feed:       feed,
		logger:     logger,
		classifier: classifier,
		window:     domain.NewRollingWindow(classifier.Policy().Window),
		own:        map[int64]struct{}{},
	}
}

func (s *TrackerService) Feed() *Feed {
	return s.feed
}

// OnEventCompleted registers a listener for completed cycles.
func (s *TrackerService) OnEventCompleted(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Warm rebuilds the rolling window by replaying the ledger oldest first. The
// live series is not preloaded; it only counts events completed from now on.
func (s *TrackerService) Warm(ctx context.Context) error {
	events, err := s.ledger.List(ctx, contractionout.OldestFirst)
	if err != nil {
		return fmt.Errorf("replay ledger: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = domain.Durations(events)
	s.seen = 0
	for _, e := range events {
		s.seen = max(s.seen, e.ID)
	}
	clear(s.own)
	s.warmed = true
	s.rebuildWindowLocked()
	return nil
}

// Sync folds rows appended to the ledger by other processes into the window
// and, once warmed, into the live series. Rows this process wrote are
// skipped.
func (s *TrackerService) Sync(ctx context.Context) error {
	s.mu.Lock()
	after := s.seen
	s.mu.Unlock()

	events, err := s.ledger.ListSince(ctx, after)
	if err != nil {
		return fmt.Errorf("follow ledger: %w", err)
	}
	if len(events) == 0 {
		s.mu.Lock()
		s.warmed = true
		s.mu.Unlock()
		return nil
	}

	var foreign []domain.Event
	s.mu.Lock()
	for _, e := range events {
		if e.ID <= s.seen {
			continue
		}
		s.seen = e.ID
		if _, ok := s.own[e.ID]; ok {
			delete(s.own, e.ID)
			continue
		}
		s.durations = append(s.durations, e.Seconds())
		s.window.Push(e.Seconds())
		foreign = append(foreign, e)
	}
	live := s.warmed
	s.warmed = true
	s.mu.Unlock()

	if live {
		for _, e := range foreign {
			s.feed.Append(e, e.Status)
		}
	}
	if len(foreign) > 0 {
		s.logger.Debug("folded contractions from ledger", "count", len(foreign), "last_id", events[len(events)-1].ID)
	}
	return nil
}

func (s *TrackerService) Start() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := s.timer.Start(s.clock.Now())
	return s.timer.StartedAt(), started
}

// Resume restores timing begun by another process.
func (s *TrackerService) Resume(startedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.Resume(startedAt)
}

func (s *TrackerService) Stop(ctx context.Context) StopResult {
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn("classifying without other writers' history", "err", err)
	}

	s.mu.Lock()
	event, ok := s.timer.Stop(s.clock.Now())
	if !ok {
		s.mu.Unlock()
		return StopResult{}
	}
	s.durations = append(s.durations, event.Seconds())
	s.window.Push(event.Seconds())
	level := s.window.Level(s.classifier)
	event = event.WithStatus(level)
	s.mu.Unlock()

	var storageErr error
	id, err := s.ledger.Append(ctx, event)
	if err != nil {
		storageErr = err
		s.logger.Warn("contraction kept in memory only", "duration_s", event.Seconds(), "err", err)
	} else {
		event = event.WithID(id)
	}

	s.mu.Lock()
	s.completed++
	if storageErr != nil {
		s.unsaved = append(s.unsaved, event)
	} else if id > s.seen {
		s.own[id] = struct{}{}
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.feed.Append(event, level)
	for _, listener := range listeners {
		listener(event, level)
	}
	s.logger.Info("contraction completed", "id", event.ID, "duration_s", event.Seconds(), "level", level.String())

	if level == domain.Urgent && s.notifier != nil {
		s.alerts.Add(1)
		go s.deliverAlert(context.WithoutCancel(ctx), event, level)
	}
	return StopResult{Completed: true, Event: event, Level: level, StorageErr: storageErr}
}

func (s *TrackerService) deliverAlert(ctx context.Context, event domain.Event, level domain.UrgencyLevel) {
	defer s.alerts.Done()
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, event, level); err != nil {
		s.logger.Error("urgent alert delivery failed", "err", err)
	}
}

// WaitAlerts blocks until alerts already handed to the notifier have been
// delivered or timed out.
func (s *TrackerService) WaitAlerts() {
	s.alerts.Wait()
}

// Reset discards in-progress timing and clears the live series. Persisted
// history, the window that mirrors it, and events still waiting for storage
// are left alone.
func (s *TrackerService) Reset() bool {
	s.mu.Lock()
	discarded := s.timer.Reset()
	s.completed = 0
	s.mu.Unlock()
	s.feed.Reset()
	return discarded
}

// DiscardTiming drops in-progress timing only. The live series and the
// completed count are kept.
func (s *TrackerService) DiscardTiming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.Reset()
}

func (s *TrackerService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	return Status{
		State:     s.timer.State(),
		StartedAt: s.timer.StartedAt(),
		Elapsed:   s.timer.Elapsed(now),
		Level:     s.window.Level(s.classifier),
		Completed: s.completed,
	}
}

func (s *TrackerService) Summary() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Summarize(s.durations, s.classifier)
}

// History lists persisted events merged with events that only exist in memory
// because their append failed. On a ledger error the in-memory events are
// still returned alongside the error.
func (s *TrackerService) History(ctx context.Context, order contractionout.Order) ([]domain.Event, error) {
	events, err := s.ledger.List(ctx, contractionout.OldestFirst)
	if err != nil {
		err = fmt.Errorf("list ledger: %w", err)
	}

	s.mu.Lock()
	events = append(events, s.unsaved...)
	s.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].RecordedAt.Equal(events[j].RecordedAt) {
			return events[i].RecordedAt.Before(events[j].RecordedAt)
		}
		return events[i].ID < events[j].ID
	})
	if order == contractionout.NewestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, err
}

// SetClassifier swaps the policy and rebuilds the window from known history.
func (s *TrackerService) SetClassifier(classifier domain.Classifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier = classifier
	s.rebuildWindowLocked()
}

func (s *TrackerService) rebuildWindowLocked() {
	s.window = domain.NewRollingWindow(s.classifier.Policy().Window)
	for _, d := range s.durations {
		s.window.Push(d)
	}
}
