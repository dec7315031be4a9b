package clock

import "time"

// Clock abstracts time to keep timing and classification deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock returns time.Now unmodified so the monotonic reading survives;
// callers convert to UTC only when stamping persisted records.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
