package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	apperrors "laborwatch/internal/platform/errors"
)

var t0 = time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

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

// flakyLedger keeps events in memory and fails appends while down is set.
type flakyLedger struct {
	mu     sync.Mutex
	events []domain.Event
	down   bool
}

func (l *flakyLedger) setDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down = down
}

func (l *flakyLedger) Append(_ context.Context, event domain.Event) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return 0, fmt.Errorf("append contraction: %w: %w", apperrors.ErrStorageFailure, errors.New("disk full"))
	}
	id := int64(len(l.events) + 1)
	l.events = append(l.events, event.WithID(id))
	return id, nil
}

func (l *flakyLedger) List(_ context.Context, order contractionout.Order) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return nil, fmt.Errorf("list contractions: %w", apperrors.ErrStorageFailure)
	}
	out := append([]domain.Event(nil), l.events...)
	if order == contractionout.NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (l *flakyLedger) ListSince(_ context.Context, afterID int64) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return nil, fmt.Errorf("list contractions: %w", apperrors.ErrStorageFailure)
	}
	var out []domain.Event
	for _, e := range l.events {
		if e.ID > afterID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.UrgencyLevel
}

func (n *recordingNotifier) Notify(_ context.Context, _ domain.Event, level domain.UrgencyLevel) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, level)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// blockingNotifier reports the context state it was called with, then holds
// until release is closed and fails.
type blockingNotifier struct {
	release chan struct{}
	called  chan error
}

func (n *blockingNotifier) Notify(ctx context.Context, _ domain.Event, _ domain.UrgencyLevel) error {
	n.called <- ctx.Err()
	<-n.release
	return errors.New("webhook unreachable")
}
