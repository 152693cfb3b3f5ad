package localstore

import (
	"context"
	"database/sql"
)

// UserStats is the single-row set of lifetime counters kept on the device.
type UserStats struct {
	TotalExams       int64
	TotalPractice    int64
	TotalQuestions   int64
	TotalTimeSpentMs int64
	LastActivityAt   string
}

func (s *Store) GetUserStats(ctx context.Context) (UserStats, error) {
	var st UserStats
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT total_exams, total_practice, total_questions, total_time_spent_ms, last_activity_at
		FROM user_stats WHERE id=1`).
		Scan(&st.TotalExams, &st.TotalPractice, &st.TotalQuestions, &st.TotalTimeSpentMs, &last)
	if err != nil {
		return UserStats{}, err
	}
	st.LastActivityAt = last.String
	return st, nil
}

// MergeUserStats applies incoming absolute totals with a MAX strategy, so
// duplicate or out-of-order pushes can never decrease a counter.
func (s *Store) MergeUserStats(ctx context.Context, in UserStats) error {
	_, err := s.db.ExecContext(ctx, `UPDATE user_stats SET
		total_exams = MAX(total_exams, $1),
		total_practice = MAX(total_practice, $2),
		total_questions = MAX(total_questions, $3),
		total_time_spent_ms = MAX(total_time_spent_ms, $4),
		last_activity_at = MAX(COALESCE(last_activity_at, ''), $5)
		WHERE id=1`,
		in.TotalExams, in.TotalPractice, in.TotalQuestions, in.TotalTimeSpentMs, in.LastActivityAt)
	return err
}
