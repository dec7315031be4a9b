package out

import (
	"context"
	"fmt"
	"sync"

	"laborwatch/internal/modules/contraction/domain"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	apperrors "laborwatch/internal/platform/errors"
)

// MemoryLedger keeps history for the lifetime of the process only. It backs
// --ephemeral sessions.
type MemoryLedger struct {
	mu     sync.RWMutex
	events []domain.Event
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(_ context.Context, event domain.Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := int64(len(l.events) + 1)
	l.events = append(l.events, event.WithID(id))
	return id, nil
}

func (l *MemoryLedger) List(_ context.Context, order contractionout.Order) ([]domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Event, len(l.events))
	if order == contractionout.NewestFirst {
		for i, e := range l.events {
			out[len(l.events)-1-i] = e
		}
		return out, nil
	}
	copy(out, l.events)
	return out, nil
}

func (l *MemoryLedger) ListSince(_ context.Context, afterID int64) ([]domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if afterID < 0 {
		afterID = 0
	}
	if afterID >= int64(len(l.events)) {
		return nil, nil
	}
	return append([]domain.Event(nil), l.events[afterID:]...), nil
}
