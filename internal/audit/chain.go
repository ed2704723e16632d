package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/ids"
	"github.com/pkanduri1/fabric-platform-sub006/internal/obs"
)

// minRetention is the minimum age an ordinary record must reach before
// it becomes eligible for pruning. Compliance-flagged records are never
// pruned regardless of age.
const minRetention = 90 * 24 * time.Hour

// Chain appends tamper-evident records and verifies their linkage.
//
// The last-hash pointer is the one piece of process-wide mutable state in
// the core; it is guarded by a mutex so two concurrent Appends can never
// read the same previous hash and fork the chain.
type Chain struct {
	store Store
	now   func() time.Time

	mu        sync.Mutex
	lastSeq   int64
	lastHash  string
	recovered bool
}

// NewChain wires a chain service over the given store.
func NewChain(store Store) (*Chain, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &Chain{store: store, now: time.Now}, nil
}

// Append computes the next link of the chain and persists it atomically.
// The returned record carries the assigned sequence and hash.
func (c *Chain) Append(ctx context.Context, ev Event) (Record, error) {
	if ev.Type == "" {
		return Record{}, fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.Risk == "" {
		ev.Risk = RiskLow
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = ids.NewCorrelation()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.recoverLocked(ctx); err != nil {
		return Record{}, err
	}

	r := Record{
		Sequence:      c.lastSeq + 1,
		Type:          ev.Type,
		Subtype:       ev.Subtype,
		Severity:      ev.Severity,
		Actor:         ev.Actor,
		Timestamp:     c.now().UTC(),
		Payload:       ev.Payload,
		Security:      ev.Security,
		Compliance:    ev.Compliance,
		Risk:          ev.Risk,
		CorrelationID: ev.CorrelationID,
		PrevHash:      c.lastHash,
		Signature:     ev.Signature,
	}
	r.Hash = computeHash(r)

	if err := c.store.Append(ctx, r); err != nil {
		return Record{}, fmt.Errorf("append audit record: %w", err)
	}
	c.lastSeq = r.Sequence
	c.lastHash = r.Hash
	obs.AuditAppendsTotal.Inc()
	return r, nil
}

// recoverLocked restores the last-hash pointer from the max-sequence row.
// Called with c.mu held.
func (c *Chain) recoverLocked(ctx context.Context) error {
	if c.recovered {
		return nil
	}
	last, ok, err := c.store.Last(ctx)
	if err != nil {
		return fmt.Errorf("recover chain pointer: %w", err)
	}
	if ok {
		c.lastSeq = last.Sequence
		c.lastHash = last.Hash
	}
	c.recovered = true
	return nil
}

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	Valid    bool    `json:"valid"`
	Checked  int     `json:"checked"`
	BrokenAt []int64 `json:"broken_at,omitempty"`
}

const verifyPageSize = 500

// VerifyChain walks records with sequence >= sinceSeq one page at a time
// and reports every sequence whose stored hash or prev-hash link fails.
// The scan never materializes the whole chain in memory.
func (c *Chain) VerifyChain(ctx context.Context, sinceSeq int64) (VerifyResult, error) {
	if sinceSeq < 1 {
		sinceSeq = 1
	}
	res := VerifyResult{Valid: true}
	var (
		prev    Record
		hasPrev bool
	)
	after := sinceSeq - 1
	for {
		page, err := c.store.Page(ctx, after, verifyPageSize)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("verify chain: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			broken := computeHash(r) != r.Hash
			if hasPrev && r.PrevHash != prev.Hash {
				broken = true
			}
			if !hasPrev && r.Sequence == 1 && r.PrevHash != "" {
				broken = true
			}
			if broken {
				res.Valid = false
				res.BrokenAt = append(res.BrokenAt, r.Sequence)
			}
			res.Checked++
			prev = r
			hasPrev = true
			after = r.Sequence
		}
		if len(page) < verifyPageSize {
			break
		}
	}
	if n := len(res.BrokenAt); n > 0 {
		obs.ChainBreaksDetected.Add(float64(n))
	}
	return res, nil
}

// Escalate raises the risk of a historical record by appending a new
// security+compliance record that shares its correlation id. The
// original record is never edited, preserving chain integrity.
func (c *Chain) Escalate(ctx context.Context, seq int64, escalatedBy, reason string) (Record, error) {
	orig, err := c.store.Get(ctx, seq)
	if err != nil {
		return Record{}, err
	}
	payload := map[string]string{
		"escalated_sequence": fmt.Sprintf("%d", orig.Sequence),
		"original_type":      orig.Type,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return c.Append(ctx, Event{
		Type:          EventRecordEscalated,
		Subtype:       orig.Type,
		Severity:      SeverityWarn,
		Actor:         Actor{UserID: escalatedBy},
		Payload:       payload,
		Security:      true,
		Compliance:    true,
		Risk:          RiskHigh,
		CorrelationID: orig.CorrelationID,
	})
}

// PruneExpired deletes aged records that are not compliance-flagged.
// The cutoff is clamped to minRetention so a misconfigured job cannot
// remove recent records.
func (c *Chain) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if min := c.now().Add(-minRetention); cutoff.After(min) {
		cutoff = min
	}
	return c.store.DeleteExpired(ctx, cutoff)
}
