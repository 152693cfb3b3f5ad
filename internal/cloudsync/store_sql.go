package cloudsync

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrAttemptNotFound = errors.New("attempt not found")

// SQLStore keeps attempt sync bookkeeping in the server database (sqlite or
// postgres; see internal/db for the schema).
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// EnqueueAttempt stores a freshly submitted attempt as pending sync.
func (s *SQLStore) EnqueueAttempt(ctx context.Context, rec AttemptRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO attempts
		(id, user_id, exam_type_id, score, passed, payload_json, completed_at, sync_status, sync_retries)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.ExamTypeID, rec.Score, rec.Passed, rec.PayloadJSON, rec.CompletedAt, StatusPending)
	return err
}

func (s *SQLStore) GetPendingSync(ctx context.Context, limit int) ([]AttemptRecord, error) {
	return s.listByStatus(ctx, `sync_status=$1 ORDER BY completed_at ASC LIMIT $2`, StatusPending, limit)
}

func (s *SQLStore) GetFailedSync(ctx context.Context, maxRetries, limit int) ([]AttemptRecord, error) {
	return s.listByStatus(ctx, `sync_status=$1 AND sync_retries < $2 ORDER BY completed_at ASC LIMIT $3`,
		StatusFailed, maxRetries, limit)
}

func (s *SQLStore) listByStatus(ctx context.Context, where string, args ...any) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectAttempt+` WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (AttemptRecord, error) {
	row := s.db.QueryRowContext(ctx, selectAttempt+` WHERE id=$1`, id)
	rec, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AttemptRecord{}, ErrAttemptNotFound
	}
	return rec, err
}

func (s *SQLStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET sync_status=$1, synced_at=$2, last_error=NULL WHERE id=$3`,
		StatusSynced, at.Unix(), id)
	return err
}

func (s *SQLStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET sync_status=$1, last_error=$2 WHERE id=$3`,
		StatusFailed, errMsg, id)
	return err
}

func (s *SQLStore) IncrementRetries(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attempts SET sync_retries = sync_retries + 1 WHERE id=$1`, id)
	return err
}

func (s *SQLStore) CountByStatus(ctx context.Context) (Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM attempts GROUP BY sync_status`)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()

	var stats Statistics
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Statistics{}, err
		}
		switch status {
		case StatusPending:
			stats.Pending = n
		case StatusSynced:
			stats.Synced = n
		case StatusFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

func (s *SQLStore) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE sync_status=$1 AND synced_at < $2`,
		StatusSynced, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectAttempt = `SELECT id, user_id, exam_type_id, score, passed, payload_json, completed_at, sync_status, sync_retries, synced_at, last_error FROM attempts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (AttemptRecord, error) {
	var rec AttemptRecord
	var syncedAt sql.NullInt64
	var lastErr sql.NullString
	if err := r.Scan(&rec.ID, &rec.UserID, &rec.ExamTypeID, &rec.Score, &rec.Passed, &rec.PayloadJSON,
		&rec.CompletedAt, &rec.SyncStatus, &rec.SyncRetries, &syncedAt, &lastErr); err != nil {
		return AttemptRecord{}, err
	}
	rec.SyncedAt = syncedAt.Int64
	rec.LastError = lastErr.String
	return rec, nil
}
