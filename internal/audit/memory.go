package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety.
// Records live in an append-only slice of immutable values; nothing
// hands out pointers into it.
type InMemory struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemory creates an empty chain store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.records); n > 0 && r.Sequence != s.records[n-1].Sequence+1 {
		return fmt.Errorf("%w: sequence %d out of order", ErrInvalidInput, r.Sequence)
	}
	r.Payload = copyPayload(r.Payload)
	s.records = append(s.records, r)
	return nil
}

func (s *InMemory) Get(ctx context.Context, seq int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Sequence == seq {
			r.Payload = copyPayload(r.Payload)
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *InMemory) Last(ctx context.Context) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return Record{}, false, nil
	}
	r := s.records[len(s.records)-1]
	r.Payload = copyPayload(r.Payload)
	return r, true, nil
}

func (s *InMemory) Page(ctx context.Context, afterSeq int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.Sequence <= afterSeq {
			continue
		}
		r.Payload = copyPayload(r.Payload)
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Record
	var removed int64
	for _, r := range s.records {
		if !r.Compliance && r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

// Corrupt overwrites a stored field of a historical record. Test hook:
// real stores never expose mutation.
func (s *InMemory) Corrupt(seq int64, mutate func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Sequence == seq {
			mutate(&s.records[i])
			return true
		}
	}
	return false
}

func copyPayload(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
