package localstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cloudprep/cloudprep/internal/bank"
)

var ErrSessionNotFound = errors.New("practice session not found")

type PracticeSession struct {
	ID             string
	StartedAt      string
	CompletedAt    string // empty until finished
	Domain         string // empty means unfiltered
	Difficulty     string // empty means unfiltered
	QuestionsCount int
	CorrectCount   int
}

type PracticeAnswer struct {
	ID         string
	SessionID  string
	QuestionID string
	Selected   []string
	IsCorrect  bool
	AnsweredAt string
}

func (s *Store) CreatePracticeSession(ctx context.Context, ps PracticeSession) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO practice_sessions
		(id, started_at, domain, difficulty)
		VALUES ($1,$2,$3,$4)`,
		ps.ID, ps.StartedAt, nullIfEmpty(ps.Domain), nullIfEmpty(ps.Difficulty))
	return err
}

func (s *Store) GetPracticeSession(ctx context.Context, id string) (PracticeSession, error) {
	var ps PracticeSession
	var completedAt, domain, difficulty sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, started_at, completed_at, domain, difficulty, questions_count, correct_count
		FROM practice_sessions WHERE id=$1`, id).
		Scan(&ps.ID, &ps.StartedAt, &completedAt, &domain, &difficulty, &ps.QuestionsCount, &ps.CorrectCount)
	if errors.Is(err, sql.ErrNoRows) {
		return PracticeSession{}, ErrSessionNotFound
	}
	if err != nil {
		return PracticeSession{}, err
	}
	ps.CompletedAt = completedAt.String
	ps.Domain = domain.String
	ps.Difficulty = difficulty.String
	return ps, nil
}

// AddPracticeAnswer records one immediately scored answer and bumps the
// session's running counts in the same transaction.
func (s *Store) AddPracticeAnswer(ctx context.Context, pa PracticeAnswer) error {
	sel, err := bank.EncodeStringList(pa.Selected)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO practice_answers
		(id, session_id, question_id, selected_json, is_correct, answered_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		pa.ID, pa.SessionID, pa.QuestionID, sel, boolToInt(pa.IsCorrect), pa.AnsweredAt); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE practice_sessions
		SET questions_count = questions_count + 1,
		    correct_count = correct_count + $1
		WHERE id=$2 AND completed_at IS NULL`,
		boolToInt(pa.IsCorrect), pa.SessionID)
	if err != nil {
		return err
	}
	if err := requireRow(res, ErrSessionNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FinishPracticeSession(ctx context.Context, id, completedAt string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE practice_sessions SET completed_at=$1
		WHERE id=$2 AND completed_at IS NULL`, completedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrSessionNotFound)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
