package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudprep/cloudprep/internal/bank"
)

// Exam attempt statuses. completed and abandoned are terminal.
const (
	AttemptInProgress = "in-progress"
	AttemptCompleted  = "completed"
	AttemptAbandoned  = "abandoned"
)

var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAnswerNotFound  = errors.New("answer not found")
)

type ExamAttempt struct {
	ID              string
	StartedAt       string
	CompletedAt     string // empty until terminal
	Status          string
	Score           *float64
	Passed          *bool
	TotalQuestions  int
	RemainingTimeMs int64
	ExpiresAt       string
}

type ExamAnswer struct {
	ID         string
	AttemptID  string
	QuestionID string
	Selected   []string
	IsCorrect  *bool
	IsFlagged  bool
	OrderIndex int
	AnsweredAt string // empty means unanswered
}

// CreateAttempt inserts the attempt row and its answers in one transaction.
// Answers keep the order they are passed in; their order_index is fixed for
// the life of the attempt.
func (s *Store) CreateAttempt(ctx context.Context, a ExamAttempt, answers []ExamAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO exam_attempts
		(id, started_at, status, total_questions, remaining_time_ms, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.StartedAt, AttemptInProgress, a.TotalQuestions, a.RemainingTimeMs, a.ExpiresAt); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO exam_answers
		(id, attempt_id, question_id, selected_json, is_flagged, order_index)
		VALUES ($1,$2,$3,'[]',0,$4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ans := range answers {
		if _, err := stmt.ExecContext(ctx, ans.ID, a.ID, ans.QuestionID, ans.OrderIndex); err != nil {
			return fmt.Errorf("insert answer for %s: %w", ans.QuestionID, err)
		}
	}
	return tx.Commit()
}

// InProgressAttempt returns the single in-progress attempt, if any.
func (s *Store) InProgressAttempt(ctx context.Context) (ExamAttempt, bool, error) {
	row := s.db.QueryRowContext(ctx, selectAttempt+` WHERE status=$1 ORDER BY started_at DESC LIMIT 1`, AttemptInProgress)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExamAttempt{}, false, nil
	}
	if err != nil {
		return ExamAttempt{}, false, err
	}
	return a, true, nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (ExamAttempt, error) {
	row := s.db.QueryRowContext(ctx, selectAttempt+` WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExamAttempt{}, ErrAttemptNotFound
	}
	return a, err
}

// CompletedAttempts returns finished attempts, oldest first. The device
// agent re-pushes all of them to the server on each run; the server
// deduplicates by id.
func (s *Store) CompletedAttempts(ctx context.Context) ([]ExamAttempt, error) {
	rows, err := s.db.QueryContext(ctx, selectAttempt+` WHERE status=$1 ORDER BY started_at ASC`, AttemptCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AnswersForAttempt returns the attempt's answers in their fixed order.
func (s *Store) AnswersForAttempt(ctx context.Context, attemptID string) ([]ExamAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, attempt_id, question_id, selected_json, is_correct, is_flagged, order_index, answered_at
		FROM exam_answers WHERE attempt_id=$1 ORDER BY order_index ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExamAnswer
	for rows.Next() {
		var a ExamAnswer
		var sel string
		var correct sql.NullBool
		var flagged int
		var answeredAt sql.NullString
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &sel, &correct, &flagged, &a.OrderIndex, &answeredAt); err != nil {
			return nil, err
		}
		if a.Selected, err = bank.DecodeStringList(sel); err != nil {
			return nil, fmt.Errorf("answer %s: %w", a.ID, err)
		}
		if correct.Valid {
			v := correct.Bool
			a.IsCorrect = &v
		}
		a.IsFlagged = flagged != 0
		if answeredAt.Valid {
			a.AnsweredAt = answeredAt.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveSelection replaces the selected answers for one question of an
// attempt. answeredAt is only written the first time the question gets a
// non-empty selection.
func (s *Store) SaveSelection(ctx context.Context, attemptID, questionID string, selected []string, answeredAt string) error {
	sel, err := bank.EncodeStringList(selected)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE exam_answers
		SET selected_json=$1, answered_at=COALESCE(answered_at, $2)
		WHERE attempt_id=$3 AND question_id=$4`,
		sel, answeredAt, attemptID, questionID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrAnswerNotFound)
}

// ToggleFlag flips the flag on one answer and reports the new state.
func (s *Store) ToggleFlag(ctx context.Context, attemptID, questionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE exam_answers SET is_flagged = 1 - is_flagged
		WHERE attempt_id=$1 AND question_id=$2`, attemptID, questionID)
	if err != nil {
		return false, err
	}
	if err := requireRow(res, ErrAnswerNotFound); err != nil {
		return false, err
	}
	var flagged int
	err = s.db.QueryRowContext(ctx, `SELECT is_flagged FROM exam_answers WHERE attempt_id=$1 AND question_id=$2`,
		attemptID, questionID).Scan(&flagged)
	return flagged != 0, err
}

func (s *Store) UpdateRemainingTime(ctx context.Context, attemptID string, ms int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exam_attempts SET remaining_time_ms=$1 WHERE id=$2 AND status=$3`,
		ms, attemptID, AttemptInProgress)
	if err != nil {
		return err
	}
	return requireRow(res, ErrAttemptNotFound)
}

// CompleteAttempt finalizes an attempt: per-answer correctness, the score,
// the pass flag and the terminal status land in one transaction.
func (s *Store) CompleteAttempt(ctx context.Context, attemptID, completedAt string, score float64, passed bool, correctness map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE exam_answers SET is_correct=$1 WHERE attempt_id=$2 AND question_id=$3`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for qid, ok := range correctness {
		if _, err := stmt.ExecContext(ctx, boolToInt(ok), attemptID, qid); err != nil {
			return fmt.Errorf("score answer %s: %w", qid, err)
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE exam_attempts
		SET status=$1, completed_at=$2, score=$3, passed=$4, remaining_time_ms=0
		WHERE id=$5 AND status=$6`,
		AttemptCompleted, completedAt, score, boolToInt(passed), attemptID, AttemptInProgress)
	if err != nil {
		return err
	}
	if err := requireRow(res, ErrAttemptNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AbandonAttempt(ctx context.Context, attemptID, completedAt string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exam_attempts SET status=$1, completed_at=$2
		WHERE id=$3 AND status=$4`,
		AttemptAbandoned, completedAt, attemptID, AttemptInProgress)
	if err != nil {
		return err
	}
	return requireRow(res, ErrAttemptNotFound)
}

const selectAttempt = `SELECT id, started_at, completed_at, status, score, passed, total_questions, remaining_time_ms, expires_at FROM exam_attempts`

func scanAttempt(r rowScanner) (ExamAttempt, error) {
	var a ExamAttempt
	var completedAt sql.NullString
	var score sql.NullFloat64
	var passed sql.NullBool
	if err := r.Scan(&a.ID, &a.StartedAt, &completedAt, &a.Status, &score, &passed, &a.TotalQuestions, &a.RemainingTimeMs, &a.ExpiresAt); err != nil {
		return ExamAttempt{}, err
	}
	if completedAt.Valid {
		a.CompletedAt = completedAt.String
	}
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if passed.Valid {
		v := passed.Bool
		a.Passed = &v
	}
	return a, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
