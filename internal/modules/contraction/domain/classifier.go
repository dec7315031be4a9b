package domain

import (
	"fmt"
	"math"
	"time"
)

const DefaultWindow = 3

// Policy configures classification: the mean of the last Window durations is
// compared against the thresholds. A mean equal to a threshold falls into the
// less severe bucket.
type Policy struct {
	Window           int
	UrgentBelow      time.Duration
	ApproachingBelow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Window:           DefaultWindow,
		UrgentBelow:      5 * time.Minute,
		ApproachingBelow: 10 * time.Minute,
	}
}

func (p Policy) Validate() error {
	if p.Window < 1 {
		return fmt.Errorf("window must be at least 1, got %d", p.Window)
	}
	if p.UrgentBelow <= 0 || p.ApproachingBelow <= p.UrgentBelow {
		return fmt.Errorf("thresholds must satisfy 0 < urgent (%s) < approaching (%s)", p.UrgentBelow, p.ApproachingBelow)
	}
	return nil
}

// Classifier is a pure function of a duration history.
type Classifier struct {
	policy Policy
}

func NewClassifier(policy Policy) (Classifier, error) {
	if err := policy.Validate(); err != nil {
		return Classifier{}, err
	}
	return Classifier{policy: policy}, nil
}

func (c Classifier) Policy() Policy {
	return c.policy
}

// Classify takes durations in seconds, oldest first. Histories shorter than
// the window are Calm.
func (c Classifier) Classify(history []float64) UrgencyLevel {
	k := c.policy.Window
	if k < 1 || len(history) < k {
		return Calm
	}
	return c.Level(mean(history[len(history)-k:]))
}

// Level buckets an already averaged duration. NaN compares false against
// every threshold and therefore lands in Calm.
func (c Classifier) Level(avgSeconds float64) UrgencyLevel {
	switch {
	case avgSeconds < c.policy.UrgentBelow.Seconds():
		return Urgent
	case avgSeconds < c.policy.ApproachingBelow.Seconds():
		return Approaching
	default:
		return Calm
	}
}

// RollingWindow keeps the most recent Size durations. It is a cache that can
// always be rebuilt by replaying history through Push.
type RollingWindow struct {
	size   int
	values []float64
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{size: size, values: make([]float64, 0, size)}
}

func (w *RollingWindow) Push(seconds float64) {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size-1]
	}
	w.values = append(w.values, seconds)
}

func (w *RollingWindow) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *RollingWindow) Len() int  { return len(w.values) }
func (w *RollingWindow) Size() int { return w.size }
func (w *RollingWindow) Full() bool {
	return len(w.values) == w.size
}

// Mean is 0 when the window is not yet full.
func (w *RollingWindow) Mean() float64 {
	if !w.Full() {
		return 0
	}
	return mean(w.values)
}

// Level classifies the window contents; it matches Classify over the full
// history when the window size equals the classifier's window.
func (w *RollingWindow) Level(c Classifier) UrgencyLevel {
	return c.Classify(w.values)
}

// Stats summarizes a duration history in seconds.
type Stats struct {
	Count      int
	Window     int
	WindowMean float64
	Mean       float64
	Min        float64
	Max        float64
	Total      float64
	Level      UrgencyLevel
}

func Summarize(history []float64, c Classifier) Stats {
	s := Stats{Count: len(history), Window: c.policy.Window, Level: c.Classify(history)}
	if len(history) == 0 {
		return s
	}
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	for _, v := range history {
		s.Total += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = s.Total / float64(len(history))
	if k := c.policy.Window; len(history) >= k {
		s.WindowMean = mean(history[len(history)-k:])
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
