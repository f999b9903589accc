// Package activity reads idle-in-transaction sessions from pg_stat_activity.
package activity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	cerrors "github.com/p-blackswan/cleaniit/internal/errors"
)

// StateIdleInTransaction is the pg_stat_activity.state label this tool targets.
const StateIdleInTransaction = "idle in transaction"

// Query selects the seven columns of every idle-in-transaction session, oldest state change first.
// The ordering is load-bearing: callers apply caps assuming oldest-first arrival.
const Query = `
	SELECT datid, pid, query, backend_start, xact_start, query_start, state_change
	FROM pg_stat_activity
	WHERE state = $1
	ORDER BY state_change ASC
`

const columnCount = 7

// SessionRecord is one idle-in-transaction backend.
type SessionRecord struct {
	DatabaseID       uint32
	ProcessID        int32
	QueryText        string
	BackendStart     time.Time
	TransactionStart time.Time
	QueryStart       time.Time
	StateChange      time.Time
}

// Age is how long the session has been idle as of now.
func (r SessionRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.StateChange)
}

// Querier is the subset of *pgx.Conn used for fetching.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Fetch runs Query once and decodes every row. Timestamps are converted to the local zone.
func Fetch(ctx context.Context, q Querier) ([]SessionRecord, error) {
	rows, err := q.Query(ctx, Query, StateIdleInTransaction)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrConnection, err, "querying pg_stat_activity")
	}
	defer rows.Close()

	if fields := rows.FieldDescriptions(); fields != nil && len(fields) != columnCount {
		return nil, cerrors.Wrap(cerrors.ErrDataShape, nil, "pg_stat_activity returned an unexpected column count")
	}

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var query pgtype.Text
		if err := rows.Scan(
			&rec.DatabaseID,
			&rec.ProcessID,
			&query,
			&rec.BackendStart,
			&rec.TransactionStart,
			&rec.QueryStart,
			&rec.StateChange,
		); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrDataShape, err, "decoding pg_stat_activity row")
		}
		rec.QueryText = query.String
		rec.BackendStart = rec.BackendStart.Local()
		rec.TransactionStart = rec.TransactionStart.Local()
		rec.QueryStart = rec.QueryStart.Local()
		rec.StateChange = rec.StateChange.Local()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrConnection, err, "reading pg_stat_activity rows")
	}
	return records, nil
}
