package gateway

import (
	"context"
	"sync"
)

// RecordStore persists execution records.
type RecordStore interface {
	Save(ctx context.Context, rec ExecutionRecord) error
	// ListByCorrelation returns records sharing a correlation id in
	// creation order.
	ListByCorrelation(ctx context.Context, correlationID string) ([]ExecutionRecord, error)
}

// InMemoryRecords implements RecordStore for tests and DSN-less startup.
type InMemoryRecords struct {
	mu      sync.RWMutex
	records []ExecutionRecord
}

// NewInMemoryRecords creates an empty record store.
func NewInMemoryRecords() *InMemoryRecords {
	return &InMemoryRecords{}
}

func (s *InMemoryRecords) Save(ctx context.Context, rec ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryRecords) ListByCorrelation(ctx context.Context, correlationID string) ([]ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ExecutionRecord
	for _, r := range s.records {
		if r.CorrelationID == correlationID {
			out = append(out, r)
		}
	}
	return out, nil
}

// All returns every stored record. Test helper.
func (s *InMemoryRecords) All() []ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExecutionRecord, len(s.records))
	copy(out, s.records)
	return out
}
