package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/localstore"
)

// PracticeService runs untimed practice rounds. Unlike exam mode, every
// answer is scored the moment it is given: practice exists for instant
// feedback, so the asymmetry with exam scoring is deliberate.
type PracticeService struct {
	store *localstore.Store
	now   func() time.Time
	newID func() string
}

func NewPracticeService(store *localstore.Store) *PracticeService {
	return &PracticeService{store: store, now: time.Now, newID: uuid.NewString}
}

// PracticeRound is a started practice session with its question set.
type PracticeRound struct {
	Session   localstore.PracticeSession
	Questions []bank.Question
}

// Start samples count questions, optionally filtered by domain and/or
// difficulty, and opens a session.
func (p *PracticeService) Start(ctx context.Context, domain, difficulty string, count int) (PracticeRound, error) {
	if count <= 0 {
		count = 10
	}
	questions, err := p.store.SampleQuestions(ctx, domain, difficulty, count)
	if err != nil {
		return PracticeRound{}, err
	}
	if len(questions) == 0 {
		return PracticeRound{}, fmt.Errorf("%w: no questions match domain=%q difficulty=%q", ErrInsufficientBank, domain, difficulty)
	}

	sess := localstore.PracticeSession{
		ID:         p.newID(),
		StartedAt:  p.now().UTC().Format(time.RFC3339),
		Domain:     domain,
		Difficulty: difficulty,
	}
	if err := p.store.CreatePracticeSession(ctx, sess); err != nil {
		return PracticeRound{}, fmt.Errorf("create practice session: %w", err)
	}
	return PracticeRound{Session: sess, Questions: questions}, nil
}

// Answer records a selection and returns its correctness immediately.
func (p *PracticeService) Answer(ctx context.Context, sessionID, questionID string, selected []string) (bool, error) {
	q, err := p.store.GetQuestion(ctx, questionID)
	if err != nil {
		return false, err
	}
	correct := sameSet(selected, q.CorrectAnswers)
	pa := localstore.PracticeAnswer{
		ID:         p.newID(),
		SessionID:  sessionID,
		QuestionID: questionID,
		Selected:   selected,
		IsCorrect:  correct,
		AnsweredAt: p.now().UTC().Format(time.RFC3339),
	}
	if err := p.store.AddPracticeAnswer(ctx, pa); err != nil {
		return false, err
	}
	return correct, nil
}

// Finish closes the session and returns its final counts.
func (p *PracticeService) Finish(ctx context.Context, sessionID string) (localstore.PracticeSession, error) {
	completedAt := p.now().UTC().Format(time.RFC3339)
	if err := p.store.FinishPracticeSession(ctx, sessionID, completedAt); err != nil {
		return localstore.PracticeSession{}, err
	}
	sess, err := p.store.GetPracticeSession(ctx, sessionID)
	if err != nil {
		return localstore.PracticeSession{}, err
	}

	// Lifetime counters are bookkeeping; a failed merge does not fail the
	// session.
	if stats, err := p.store.GetUserStats(ctx); err == nil {
		stats.TotalPractice++
		stats.TotalQuestions += int64(sess.QuestionsCount)
		stats.LastActivityAt = completedAt
		_ = p.store.MergeUserStats(ctx, stats)
	}
	return sess, nil
}
