package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkanduri1/fabric-platform-sub006/internal/errcode"
	"github.com/pkanduri1/fabric-platform-sub006/internal/gateway"
)

var _ gateway.RecordStore = (*Store)(nil)

func (s *Store) Save(ctx context.Context, rec gateway.ExecutionRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into query_execution_records (
			id, master_query_id, sql_text, params, user_id, role_id,
			correlation_id, status, row_count, execution_time_ms, error_code, created_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, rec.ID, nullIfEmpty(rec.MasterQueryID), rec.SQL, params, rec.UserID, nullIfEmpty(rec.RoleID),
		rec.CorrelationID, string(rec.Status), rec.RowCount, rec.ExecutionTimeMs,
		nullIfEmpty(string(rec.ErrorCode)), rec.CreatedAt)
	return err
}

func (s *Store) ListByCorrelation(ctx context.Context, correlationID string) ([]gateway.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, master_query_id, sql_text, params, user_id, role_id,
		       correlation_id, status, row_count, execution_time_ms, error_code, created_at
		from query_execution_records
		where correlation_id = $1
		order by created_at
	`, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []gateway.ExecutionRecord
	for rows.Next() {
		var (
			rec       gateway.ExecutionRecord
			masterID  sql.NullString
			roleID    sql.NullString
			rawParams []byte
			errCode   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &masterID, &rec.SQL, &rawParams, &rec.UserID, &roleID,
			&rec.CorrelationID, &rec.Status, &rec.RowCount, &rec.ExecutionTimeMs, &errCode, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if masterID.Valid {
			rec.MasterQueryID = masterID.String
		}
		if roleID.Valid {
			rec.RoleID = roleID.String
		}
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &rec.Params); err != nil {
				return nil, fmt.Errorf("decode params: %w", err)
			}
		}
		if errCode.Valid {
			rec.ErrorCode = errcode.Code(errCode.String)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
