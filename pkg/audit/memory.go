package audit

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity is the number of events a MemoryLogger keeps.
const DefaultMemoryCapacity = 10000

// MemoryLogger keeps the most recent events in process memory.
type MemoryLogger struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewMemoryLogger creates a logger retaining up to capacity events. A
// capacity of zero or less selects DefaultMemoryCapacity.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryLogger{capacity: capacity}
}

// Log records an audit event, evicting the oldest when full.
func (m *MemoryLogger) Log(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) == m.capacity {
		copy(m.events, m.events[1:])
		m.events = m.events[:len(m.events)-1]
	}
	m.events = append(m.events, event)
	return nil
}

// Query retrieves audit events matching the filter, newest first.
func (m *MemoryLogger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	skipped := 0
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !filter.Matches(e) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of retained events matching the filter.
func (m *MemoryLogger) Count(ctx context.Context, filter QueryFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.events {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Close releases resources.
func (*MemoryLogger) Close() error {
	return nil
}

// Verify interface compliance.
var _ Logger = (*MemoryLogger)(nil)
