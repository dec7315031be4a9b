package dto

import "time"

type EventOutput struct {
	ID          int64     `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	RecordedAt  time.Time `json:"timestamp"`
	DurationSec float64   `json:"duration"`
	Status      string    `json:"status"`
	Persisted   bool      `json:"persisted"`
}

type StartOutput struct {
	Started   bool      `json:"started"`
	TimingID  string    `json:"timing_id"`
	StartedAt time.Time `json:"started_at"`
}

// StopOutput reports one completed cycle. Completed is false when no timing
// was active. StorageError is set when the event could not be persisted; the
// event still counts toward classification and the live series. Warning
// reports a failure after the event was recorded.
type StopOutput struct {
	Completed    bool        `json:"completed"`
	Event        EventOutput `json:"event"`
	Level        string      `json:"level"`
	StorageError string      `json:"storage_error,omitempty"`
	Warning      string      `json:"warning,omitempty"`
}

type StatusOutput struct {
	State      string    `json:"state"`
	TimingID   string    `json:"timing_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ElapsedSec float64   `json:"elapsed"`
	Level      string    `json:"level"`
	Completed  int       `json:"completed"`
}

type HistoryInput struct {
	// Order is "newest" (default) or "oldest".
	Order string
}

type SeriesOutput struct {
	Mode string    `json:"mode"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
}

// SeriesUpdate is one change to the live series. Reset means reload the whole
// series; otherwise X and Y are the newly appended point.
type SeriesUpdate struct {
	Reset bool    `json:"reset"`
	Mode  string  `json:"mode"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Len   int     `json:"len"`
	Level string  `json:"level"`
}

// SummaryOutput carries rolling statistics in seconds. LevelRank orders Level:
// 0 unknown, 1 calm, 2 approaching, 3 urgent.
type SummaryOutput struct {
	Count         int     `json:"count"`
	Window        int     `json:"window"`
	WindowMeanSec float64 `json:"window_mean"`
	MeanSec       float64 `json:"mean"`
	MinSec        float64 `json:"min"`
	MaxSec        float64 `json:"max"`
	TotalSec      float64 `json:"total"`
	Level         string  `json:"level"`
	LevelRank     int     `json:"level_rank"`
	Timing        bool    `json:"timing"`
}

type ExportInput struct {
	Path string
}

type ExportOutput struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
}
