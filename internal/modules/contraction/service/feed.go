package service

import (
	"sync"

	"laborwatch/internal/modules/contraction/domain"
)

// FeedUpdate is delivered to subscribers after every change to the series.
type FeedUpdate struct {
	Reset bool
	Mode  domain.SeriesMode
	Point domain.Point
	Len   int
	Level domain.UrgencyLevel
}

// Feed wraps domain.Series for concurrent readers. Chart consumers either poll
// Points or Subscribe; a subscriber that falls behind misses updates rather
// than blocking the producer.
type Feed struct {
	mu     sync.Mutex
	series *domain.Series
	subs   map[int]chan FeedUpdate
	nextID int
}

func NewFeed(mode domain.SeriesMode) *Feed {
	return &Feed{series: domain.NewSeries(mode), subs: map[int]chan FeedUpdate{}}
}

func (f *Feed) Append(event domain.Event, level domain.UrgencyLevel) FeedUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	point := f.series.Append(event)
	update := FeedUpdate{Mode: f.series.Mode(), Point: point, Len: f.series.Len(), Level: level}
	f.publishLocked(update)
	return update
}

func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series.Reset()
	f.publishLocked(FeedUpdate{Reset: true, Mode: f.series.Mode()})
}

// SetMode switches the y axis and notifies subscribers to reload.
func (f *Feed) SetMode(mode domain.SeriesMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.series.Mode() == mode {
		return
	}
	f.series.SetMode(mode)
	f.publishLocked(FeedUpdate{Reset: true, Mode: mode, Len: f.series.Len()})
}

func (f *Feed) Points() (xs, ys []float64, mode domain.SeriesMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	xs, ys = f.series.Points()
	return xs, ys, f.series.Mode()
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series.Len()
}

// Subscribe registers an observer. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (f *Feed) Subscribe(buffer int) (<-chan FeedUpdate, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan FeedUpdate, buffer)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) publishLocked(update FeedUpdate) {
	for _, ch := range f.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
