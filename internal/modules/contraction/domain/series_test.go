package domain_test

import (
	"testing"
	"time"

	"laborwatch/internal/modules/contraction/domain"
)

func eventOf(seconds int) domain.Event {
	return domain.Event{StartedAt: t0, Duration: time.Duration(seconds) * time.Second, RecordedAt: t0}
}

func TestSeriesPerEvent(t *testing.T) {
	t.Parallel()
	s := domain.NewSeries(domain.PerEvent)
	for _, sec := range []int{60, 45, 90} {
		s.Append(eventOf(sec))
	}
	xs, ys := s.Points()
	if len(xs) != 3 || xs[0] != 1 || xs[2] != 3 {
		t.Fatalf("unexpected xs %v", xs)
	}
	if ys[0] != 60 || ys[1] != 45 || ys[2] != 90 {
		t.Fatalf("unexpected ys %v", ys)
	}
}

func TestSeriesCumulativeAndModeSwitch(t *testing.T) {
	t.Parallel()
	s := domain.NewSeries(domain.Cumulative)
	s.Append(eventOf(60))
	p := s.Append(eventOf(45))
	if p.X != 2 || p.Y != 105 {
		t.Fatalf("unexpected point %+v", p)
	}
	s.SetMode(domain.PerEvent)
	if _, ys := s.Points(); ys[1] != 45 {
		t.Fatalf("per-event recompute failed: %v", ys)
	}
	s.SetMode(domain.Cumulative)
	if _, ys := s.Points(); ys[1] != 105 {
		t.Fatalf("cumulative recompute failed: %v", ys)
	}
}

func TestSeriesResetAndCopies(t *testing.T) {
	t.Parallel()
	s := domain.NewSeries("")
	if s.Mode() != domain.PerEvent {
		t.Fatalf("default mode should be per-event")
	}
	s.Append(eventOf(30))
	_, ys := s.Points()
	ys[0] = -1
	if _, again := s.Points(); again[0] != 30 {
		t.Fatalf("points must be copies")
	}
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("reset should clear the series")
	}
	if _, err := domain.ParseSeriesMode("bars"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
