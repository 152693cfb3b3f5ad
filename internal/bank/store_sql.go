package bank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

var ErrExamTypeNotFound = errors.New("exam type not found")

// SQLStore is the server-side question bank, backed by sqlite or postgres.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// PutQuestion upserts one question for an exam type. The caller (the admin
// curation flow) is responsible for assigning a monotonically increasing
// version before handing the question here.
func (s *SQLStore) PutQuestion(ctx context.Context, examTypeID string, q Question, status string) error {
	if err := q.Validate(); err != nil {
		return err
	}
	oj, err := EncodeOptions(q.Options)
	if err != nil {
		return err
	}
	cj, err := EncodeStringList(q.CorrectAnswers)
	if err != nil {
		return err
	}
	bj, err := EncodeBlocks(q.ExplanationBlocks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions
		(id, exam_type_id, text, typ, domain, difficulty, options_json, correct_json, explanation, blocks_json, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			text=EXCLUDED.text, typ=EXCLUDED.typ, domain=EXCLUDED.domain,
			difficulty=EXCLUDED.difficulty, options_json=EXCLUDED.options_json,
			correct_json=EXCLUDED.correct_json, explanation=EXCLUDED.explanation,
			blocks_json=EXCLUDED.blocks_json, status=EXCLUDED.status,
			version=EXCLUDED.version, updated_at=EXCLUDED.updated_at`,
		q.ID, examTypeID, q.Text, q.Type, q.Domain, q.Difficulty,
		oj, cj, q.Explanation, nullIfEmpty(bj), status, q.Version, q.CreatedAt, q.UpdatedAt)
	return err
}

// GetQuestions returns approved questions with version strictly greater than
// since, ordered ascending, at most limit of them. It asks the database for
// limit+1 rows and truncates the extra one: that is how HasMore is computed
// without a second query. LatestVersion always reflects the whole bank.
func (s *SQLStore) GetQuestions(ctx context.Context, examTypeID string, since int64, limit int) (Page, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, typ, domain, difficulty, options_json, correct_json, explanation, blocks_json, version, created_at, updated_at
		FROM questions
		WHERE exam_type_id=$1 AND status=$2 AND version > $3
		ORDER BY version ASC
		LIMIT $4`,
		examTypeID, StatusApproved, since, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var qs []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return Page{}, err
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	page := Page{}
	if len(qs) > limit {
		page.HasMore = true
		qs = qs[:limit]
	}
	page.Questions = qs
	if page.HasMore && len(qs) > 0 {
		page.NextSince = qs[len(qs)-1].Version
	}

	latest, err := s.latestVersion(ctx, examTypeID)
	if err != nil {
		return Page{}, err
	}
	page.LatestVersion = latest
	return page, nil
}

// GetVersion reports the bank's latest version, its approved question count
// and when it last changed. Clients use it to decide whether to pull at all.
func (s *SQLStore) GetVersion(ctx context.Context, examTypeID string) (VersionInfo, error) {
	var info VersionInfo
	var updatedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0), COUNT(id), MAX(updated_at)
		FROM questions WHERE exam_type_id=$1 AND status=$2`,
		examTypeID, StatusApproved).Scan(&info.LatestVersion, &info.QuestionCount, &updatedAt)
	if err != nil {
		return VersionInfo{}, err
	}
	if updatedAt.Valid {
		info.LastUpdatedAt = updatedAt.String
	}
	return info, nil
}

func (s *SQLStore) latestVersion(ctx context.Context, examTypeID string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0)
		FROM questions WHERE exam_type_id=$1 AND status=$2`,
		examTypeID, StatusApproved).Scan(&v)
	return v, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (Question, error) {
	var q Question
	var oj, cj string
	var bj sql.NullString
	if err := r.Scan(&q.ID, &q.Text, &q.Type, &q.Domain, &q.Difficulty, &oj, &cj, &q.Explanation, &bj, &q.Version, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return Question{}, err
	}
	var err error
	if q.Options, err = DecodeOptions(oj); err != nil {
		return Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	if q.CorrectAnswers, err = DecodeStringList(cj); err != nil {
		return Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	if bj.Valid {
		if q.ExplanationBlocks, err = DecodeBlocks(bj.String); err != nil {
			return Question{}, fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	return q, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Now returns the canonical timestamp format used across the question bank.
func Now() string { return time.Now().UTC().Format(time.RFC3339) }
