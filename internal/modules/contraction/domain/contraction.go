package domain

import (
	"fmt"
	"strings"
	"time"
)

// UrgencyLevel orders severity; the zero value means "not yet classified".
type UrgencyLevel int

const (
	LevelUnknown UrgencyLevel = iota
	Calm
	Approaching
	Urgent
)

func (l UrgencyLevel) String() string {
	switch l {
	case Calm:
		return "Calm"
	case Approaching:
		return "Approaching"
	case Urgent:
		return "Urgent"
	default:
		return "Unknown"
	}
}

func (l UrgencyLevel) Valid() bool {
	return l >= Calm && l <= Urgent
}

func ParseUrgency(raw string) (UrgencyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "calm":
		return Calm, nil
	case "approaching":
		return Approaching, nil
	case "urgent":
		return Urgent, nil
	default:
		return LevelUnknown, fmt.Errorf("unknown urgency level %q", raw)
	}
}

func (l UrgencyLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal urgency level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *UrgencyLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseUrgency(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Event is one completed contraction. It is never mutated after creation;
// the With* helpers return copies.
type Event struct {
	ID         int64
	StartedAt  time.Time
	Duration   time.Duration
	RecordedAt time.Time
	Status     UrgencyLevel
}

func (e Event) Seconds() float64 {
	return e.Duration.Seconds()
}

func (e Event) WithStatus(level UrgencyLevel) Event {
	e.Status = level
	return e
}

func (e Event) WithID(id int64) Event {
	e.ID = id
	return e
}

// Persisted reports whether the ledger assigned the event an id.
func (e Event) Persisted() bool {
	return e.ID > 0
}

// Validate checks what a ledger requires before appending.
func (e Event) Validate() error {
	if e.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", e.Duration)
	}
	if e.StartedAt.IsZero() || e.RecordedAt.IsZero() {
		return fmt.Errorf("started_at and recorded_at are required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("status must be classified before persisting")
	}
	return nil
}

// Durations extracts per-event seconds in the order given.
func Durations(events []Event) []float64 {
	out := make([]float64, len(events))
	for i, e := range events {
		out[i] = e.Seconds()
	}
	return out
}
