package domain

import "time"

type TimerState int

const (
	Idle TimerState = iota
	Timing
)

func (s TimerState) String() string {
	if s == Timing {
		return "timing"
	}
	return "idle"
}

// Timer is the start/stop state machine for a single contraction. It never
// reads a clock itself; every transition receives the current instant, which
// should carry a monotonic reading so elapsed time is immune to wall-clock
// jumps. Calls that are invalid for the current state are no-ops reported
// through the boolean result.
type Timer struct {
	state     TimerState
	startedAt time.Time
}

func (t *Timer) State() TimerState {
	return t.state
}

// StartedAt is the zero time while idle.
func (t *Timer) StartedAt() time.Time {
	return t.startedAt
}

// Start begins timing. A second Start while timing keeps the first instant.
func (t *Timer) Start(now time.Time) bool {
	if t.state == Timing {
		return false
	}
	t.state = Timing
	t.startedAt = now
	return true
}

// Resume re-enters Timing from a previously recorded start instant, e.g. one
// persisted by another process. It is ignored while timing.
func (t *Timer) Resume(startedAt time.Time) bool {
	if t.state == Timing || startedAt.IsZero() {
		return false
	}
	t.state = Timing
	t.startedAt = startedAt
	return true
}

// Stop ends timing and returns the completed event with its status unset.
// It returns false while idle, and also when the measured duration is not
// positive; in both cases the timer ends up idle and no event exists.
func (t *Timer) Stop(now time.Time) (Event, bool) {
	if t.state != Timing {
		return Event{}, false
	}
	startedAt := t.startedAt
	t.state = Idle
	t.startedAt = time.Time{}

	elapsed := now.Sub(startedAt)
	if elapsed <= 0 {
		return Event{}, false
	}
	return Event{
		StartedAt:  startedAt,
		Duration:   elapsed,
		RecordedAt: now,
	}, true
}

// Reset discards any in-progress timing. It reports whether timing was discarded.
func (t *Timer) Reset() bool {
	wasTiming := t.state == Timing
	t.state = Idle
	t.startedAt = time.Time{}
	return wasTiming
}

func (t *Timer) Elapsed(now time.Time) time.Duration {
	if t.state != Timing {
		return 0
	}
	if d := now.Sub(t.startedAt); d > 0 {
		return d
	}
	return 0
}
