package attemptlog

import (
	"context"
	"sync"
)

// MemoryLog is an in-process Log, used when no durable backend is configured
// and in tests.
type MemoryLog struct {
	mu   sync.Mutex
	recs []Record
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.recs = append(l.recs, rec)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLog) Recent(_ context.Context, n int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 {
		return []Record{}, nil
	}
	start := max(len(l.recs)-n, 0)
	out := make([]Record, len(l.recs)-start)
	copy(out, l.recs[start:])
	reverse(out)
	return out, nil
}

func (l *MemoryLog) Len(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recs), nil
}
