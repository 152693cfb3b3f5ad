package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudprep/cloudprep/internal/bank"
)

var ErrQuestionNotFound = errors.New("question not found")

// UpsertQuestion writes a question, overwriting any existing row with the
// same id. Versions from the server never decrease for a given id, so
// last-write-wins is safe; the sync engine relies on this being idempotent.
func (s *Store) UpsertQuestion(ctx context.Context, q bank.Question) error {
	return s.putQuestion(ctx, q, true)
}

// InsertQuestionIgnore writes a question only if the id is absent. The seed
// loader uses this so it never clobbers a row a real sync already wrote.
func (s *Store) InsertQuestionIgnore(ctx context.Context, q bank.Question) error {
	return s.putQuestion(ctx, q, false)
}

func (s *Store) putQuestion(ctx context.Context, q bank.Question, overwrite bool) error {
	if err := q.Validate(); err != nil {
		return err
	}
	oj, err := bank.EncodeOptions(q.Options)
	if err != nil {
		return err
	}
	cj, err := bank.EncodeStringList(q.CorrectAnswers)
	if err != nil {
		return err
	}
	bj, err := bank.EncodeBlocks(q.ExplanationBlocks)
	if err != nil {
		return err
	}
	conflict := `ON CONFLICT (id) DO UPDATE SET
		text=excluded.text, typ=excluded.typ, domain=excluded.domain,
		difficulty=excluded.difficulty, options_json=excluded.options_json,
		correct_json=excluded.correct_json, explanation=excluded.explanation,
		blocks_json=excluded.blocks_json, version=excluded.version,
		updated_at=excluded.updated_at`
	if !overwrite {
		conflict = `ON CONFLICT (id) DO NOTHING`
	}
	var blocks any
	if bj != "" {
		blocks = bj
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions
		(id, text, typ, domain, difficulty, options_json, correct_json, explanation, blocks_json, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) `+conflict,
		q.ID, q.Text, q.Type, q.Domain, q.Difficulty, oj, cj, q.Explanation, blocks,
		q.Version, q.CreatedAt, q.UpdatedAt)
	return err
}

func (s *Store) GetQuestion(ctx context.Context, id string) (bank.Question, error) {
	row := s.db.QueryRowContext(ctx, selectQuestion+` WHERE id=$1`, id)
	q, err := scanLocalQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bank.Question{}, ErrQuestionNotFound
	}
	return q, err
}

func (s *Store) CountQuestions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}

func (s *Store) CountQuestionsByDomain(ctx context.Context, domain string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE domain=$1`, domain).Scan(&n)
	return n, err
}

// MaxQuestionVersion reports the highest version present locally, 0 when the
// store is empty.
func (s *Store) MaxQuestionVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0) FROM questions`).Scan(&v)
	return v, err
}

// SampleQuestions returns up to n random questions, optionally filtered by
// domain and/or difficulty. Sampling is without replacement within one call.
func (s *Store) SampleQuestions(ctx context.Context, domain, difficulty string, n int) ([]bank.Question, error) {
	query := selectQuestion + ` WHERE 1=1`
	args := []any{}
	i := 1
	if domain != "" {
		query += fmt.Sprintf(" AND domain=$%d", i)
		args = append(args, domain)
		i++
	}
	if difficulty != "" {
		query += fmt.Sprintf(" AND difficulty=$%d", i)
		args = append(args, difficulty)
		i++
	}
	query += fmt.Sprintf(" ORDER BY RANDOM() LIMIT $%d", i)
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var qs []bank.Question
	for rows.Next() {
		q, err := scanLocalQuestion(rows)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

const selectQuestion = `SELECT id, text, typ, domain, difficulty, options_json, correct_json, explanation, blocks_json, version, created_at, updated_at FROM questions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocalQuestion(r rowScanner) (bank.Question, error) {
	var q bank.Question
	var oj, cj string
	var bj sql.NullString
	if err := r.Scan(&q.ID, &q.Text, &q.Type, &q.Domain, &q.Difficulty, &oj, &cj, &q.Explanation, &bj, &q.Version, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return bank.Question{}, err
	}
	var err error
	if q.Options, err = bank.DecodeOptions(oj); err != nil {
		return bank.Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	if q.CorrectAnswers, err = bank.DecodeStringList(cj); err != nil {
		return bank.Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	if bj.Valid {
		if q.ExplanationBlocks, err = bank.DecodeBlocks(bj.String); err != nil {
			return bank.Question{}, fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	return q, nil
}
