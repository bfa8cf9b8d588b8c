package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemLog is a thread-safe in-memory audit log for development, testing, and
// the memory store backend.
type MemLog struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemLog() *MemLog {
	return &MemLog{entries: make([]*Entry, 0)}
}

// Record implements Recorder.
func (l *MemLog) Record(_ context.Context, entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *entry
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.OccurredAt.IsZero() {
		cp.OccurredAt = time.Now().UTC()
	}
	entry.ID = cp.ID
	entry.OccurredAt = cp.OccurredAt
	l.entries = append(l.entries, &cp)
	return nil
}

// Search implements Log. Results are newest first.
func (l *MemLog) Search(_ context.Context, params SearchParams, limit, offset int) ([]*Entry, int, error) {
	l.mu.RLock()
	filtered := make([]*Entry, 0)
	for _, e := range l.entries {
		if e.matches(params) {
			cp := *e
			filtered = append(filtered, &cp)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].OccurredAt.After(filtered[j].OccurredAt)
	})

	total := len(filtered)
	if limit <= 0 {
		limit = total
	}
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

// Len returns the number of recorded entries.
func (l *MemLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
