package domain

import "fmt"

// SeriesMode selects what the chart's y axis shows.
type SeriesMode string

const (
	PerEvent   SeriesMode = "per-event"
	Cumulative SeriesMode = "cumulative"
)

func ParseSeriesMode(raw string) (SeriesMode, error) {
	switch SeriesMode(raw) {
	case PerEvent, Cumulative:
		return SeriesMode(raw), nil
	case "":
		return PerEvent, nil
	default:
		return "", fmt.Errorf("unknown series mode %q", raw)
	}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Series holds the chart points for events completed since it was created or
// last reset. X is the 1-based event index; Y is the event's duration or the
// running total, depending on the mode.
type Series struct {
	mode      SeriesMode
	durations []float64
	ys        []float64
}

func NewSeries(mode SeriesMode) *Series {
	if mode == "" {
		mode = PerEvent
	}
	return &Series{mode: mode}
}

func (s *Series) Mode() SeriesMode { return s.mode }
func (s *Series) Len() int         { return len(s.durations) }

func (s *Series) Append(e Event) Point {
	seconds := e.Seconds()
	y := seconds
	if s.mode == Cumulative && len(s.ys) > 0 {
		y += s.ys[len(s.ys)-1]
	}
	s.durations = append(s.durations, seconds)
	s.ys = append(s.ys, y)
	return Point{X: float64(len(s.ys)), Y: y}
}

// SetMode recomputes the y values from the recorded durations.
func (s *Series) SetMode(mode SeriesMode) {
	if mode == s.mode {
		return
	}
	s.mode = mode
	var running float64
	for i, d := range s.durations {
		if mode == Cumulative {
			running += d
			s.ys[i] = running
		} else {
			s.ys[i] = d
		}
	}
}

func (s *Series) Reset() {
	s.durations = nil
	s.ys = nil
}

// Points returns copies of the x and y sequences.
func (s *Series) Points() ([]float64, []float64) {
	xs := make([]float64, len(s.ys))
	ys := make([]float64, len(s.ys))
	for i, y := range s.ys {
		xs[i] = float64(i + 1)
		ys[i] = y
	}
	return xs, ys
}
