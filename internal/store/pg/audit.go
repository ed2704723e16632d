package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, r audit.Record) error {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_records (
			sequence, event_type, event_subtype, severity,
			actor_user_id, actor_session_id, actor_ip, ts, payload,
			security_event, compliance_event, risk_level,
			correlation_id, audit_hash, previous_audit_hash, digital_signature
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, r.Sequence, r.Type, nullIfEmpty(r.Subtype), string(r.Severity),
		r.Actor.UserID, nullIfEmpty(r.Actor.SessionID), nullIfEmpty(r.Actor.IP), r.Timestamp, payload,
		r.Security, r.Compliance, string(r.Risk),
		// previous_audit_hash is NOT NULL: the genesis record carries the
		// empty string, matching the chain's genesis check.
		r.CorrelationID, r.Hash, r.PrevHash, nullIfEmpty(r.Signature))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: sequence %d already written", audit.ErrInvalidInput, r.Sequence)
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, seq int64) (audit.Record, error) {
	row := s.db.QueryRowContext(ctx, auditSelect+` where sequence = $1`, seq)
	r, err := scanAuditRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, audit.ErrNotFound
	}
	return r, err
}

func (s *Store) Last(ctx context.Context) (audit.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, auditSelect+` order by sequence desc limit 1`)
	r, err := scanAuditRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, false, nil
	}
	if err != nil {
		return audit.Record{}, false, err
	}
	return r, true, nil
}

func (s *Store) Page(ctx context.Context, afterSeq int64, limit int) ([]audit.Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, auditSelect+`
		where sequence > $1
		order by sequence asc
		limit $2
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from audit_records
		where compliance_event = false and ts < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const auditSelect = `
	select sequence, event_type, event_subtype, severity,
	       actor_user_id, actor_session_id, actor_ip, ts, payload,
	       security_event, compliance_event, risk_level,
	       correlation_id, audit_hash, previous_audit_hash, digital_signature
	from audit_records
`

func scanAuditRecord(row rowScanner) (audit.Record, error) {
	var (
		r          audit.Record
		subtype    sql.NullString
		sessionID  sql.NullString
		ip         sql.NullString
		rawPayload []byte
		signature  sql.NullString
	)
	err := row.Scan(&r.Sequence, &r.Type, &subtype, &r.Severity,
		&r.Actor.UserID, &sessionID, &ip, &r.Timestamp, &rawPayload,
		&r.Security, &r.Compliance, &r.Risk,
		&r.CorrelationID, &r.Hash, &r.PrevHash, &signature)
	if err != nil {
		return audit.Record{}, err
	}
	if subtype.Valid {
		r.Subtype = subtype.String
	}
	if sessionID.Valid {
		r.Actor.SessionID = sessionID.String
	}
	if ip.Valid {
		r.Actor.IP = ip.String
	}
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &r.Payload); err != nil {
			return audit.Record{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if signature.Valid {
		r.Signature = signature.String
	}
	// Timestamps hash in UTC; drivers may return local time.
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}
