package audit

import (
	"context"
	"time"
)

// Store persists chain records. Append must be atomic: either the whole
// record is durable or nothing is.
type Store interface {
	Append(ctx context.Context, r Record) error
	Get(ctx context.Context, seq int64) (Record, error)
	// Last returns the most recently appended record, or ok=false when
	// the chain is empty. Used to recover the last-hash pointer on restart.
	Last(ctx context.Context) (Record, bool, error)
	// Page returns up to limit records with sequence > afterSeq in
	// ascending sequence order.
	Page(ctx context.Context, afterSeq int64, limit int) ([]Record, error)
	// DeleteExpired removes records older than cutoff that are NOT
	// compliance-flagged. Compliance records are never deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
