// Package session governs exam and practice session lifecycles over the
// local store. An exam attempt moves through
// in-progress -> completed | abandoned; at most one attempt is in progress
// at a time on a device.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/localstore"
)

var (
	ErrExamInProgress   = errors.New("an exam is already in progress")
	ErrNoActiveExam     = errors.New("no exam in progress")
	ErrInsufficientBank = errors.New("not enough questions in local store")
)

type Service struct {
	store    *localstore.Store
	examType ExamType
	now      func() time.Time
	newID    func() string
	rng      *rand.Rand
}

func NewService(store *localstore.Store, et ExamType) *Service {
	return &Service{
		store:    store,
		examType: et,
		now:      time.Now,
		newID:    uuid.NewString,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Session is a fully loaded in-progress exam: the attempt row, its questions
// and its answer rows, both in the attempt's fixed order.
type Session struct {
	Attempt   localstore.ExamAttempt
	Questions []bank.Question
	Answers   []localstore.ExamAnswer
}

// Start creates a new attempt. It fails with ErrExamInProgress when one is
// already running and with ErrInsufficientBank when the local store cannot
// cover the exam's question count. Question selection is stratified: each
// domain contributes its configured share, shortfalls in a domain are topped
// up from the remaining pool, and the final sequence is shuffled once and
// then frozen.
func (s *Service) Start(ctx context.Context) (Session, error) {
	if _, active, err := s.store.InProgressAttempt(ctx); err != nil {
		return Session{}, err
	} else if active {
		return Session{}, ErrExamInProgress
	}

	total, err := s.store.CountQuestions(ctx)
	if err != nil {
		return Session{}, err
	}
	if total < s.examType.QuestionCount {
		return Session{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBank, s.examType.QuestionCount, total)
	}

	questions, err := s.selectStratified(ctx)
	if err != nil {
		return Session{}, err
	}

	now := s.now().UTC()
	limit := time.Duration(s.examType.TimeLimitMin) * time.Minute
	attempt := localstore.ExamAttempt{
		ID:              s.newID(),
		StartedAt:       now.Format(time.RFC3339),
		Status:          localstore.AttemptInProgress,
		TotalQuestions:  len(questions),
		RemainingTimeMs: limit.Milliseconds(),
		ExpiresAt:       now.Add(limit).Format(time.RFC3339),
	}
	answers := make([]localstore.ExamAnswer, len(questions))
	for i, q := range questions {
		answers[i] = localstore.ExamAnswer{
			ID:         s.newID(),
			AttemptID:  attempt.ID,
			QuestionID: q.ID,
			OrderIndex: i,
		}
	}
	if err := s.store.CreateAttempt(ctx, attempt, answers); err != nil {
		return Session{}, fmt.Errorf("create attempt: %w", err)
	}
	return Session{Attempt: attempt, Questions: questions, Answers: answers}, nil
}

// Resume loads the in-progress attempt, if any. The second return is false
// when there is nothing to resume; that is not an error.
func (s *Service) Resume(ctx context.Context) (Session, bool, error) {
	attempt, active, err := s.store.InProgressAttempt(ctx)
	if err != nil || !active {
		return Session{}, false, err
	}
	sess, err := s.loadSession(ctx, attempt)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// SelectAnswer records the chosen option ids for one question of the active
// attempt. Correctness is not computed here; exam answers are scored at
// submission.
func (s *Service) SelectAnswer(ctx context.Context, questionID string, selected []string) error {
	attempt, err := s.requireActive(ctx)
	if err != nil {
		return err
	}
	answeredAt := s.now().UTC().Format(time.RFC3339)
	return s.store.SaveSelection(ctx, attempt.ID, questionID, selected, answeredAt)
}

// ToggleFlag flips the review flag on a question, independent of whether it
// has been answered.
func (s *Service) ToggleFlag(ctx context.Context, questionID string) (bool, error) {
	attempt, err := s.requireActive(ctx)
	if err != nil {
		return false, err
	}
	return s.store.ToggleFlag(ctx, attempt.ID, questionID)
}

// PersistRemainingTime writes the countdown to the attempt row. It is
// best-effort: failures are logged and swallowed so a slow write can never
// stall the countdown.
func (s *Service) PersistRemainingTime(ctx context.Context, remainingMs int64) {
	attempt, err := s.requireActive(ctx)
	if err != nil {
		return
	}
	if remainingMs < 0 {
		remainingMs = 0
	}
	if err := s.store.UpdateRemainingTime(ctx, attempt.ID, remainingMs); err != nil {
		log.Printf("session: persist remaining time: %v", err)
	}
}

// ExamResult is the outcome of a submitted attempt.
type ExamResult struct {
	AttemptID       string         `json:"attemptId"`
	Score           int            `json:"score"` // percent, rounded
	Passed          bool           `json:"passed"`
	Correct         int            `json:"correct"`
	Total           int            `json:"total"`
	DomainBreakdown map[string]int `json:"domainBreakdown"` // domain -> percent correct
	CompletedAt     string         `json:"completedAt"`
}

// Submit scores and completes the active attempt. It is also the forced path
// taken on time expiry: whatever answers exist at that instant are scored.
func (s *Service) Submit(ctx context.Context) (ExamResult, error) {
	attempt, err := s.requireActive(ctx)
	if err != nil {
		return ExamResult{}, err
	}
	answers, err := s.store.AnswersForAttempt(ctx, attempt.ID)
	if err != nil {
		return ExamResult{}, err
	}

	correctness := make(map[string]bool, len(answers))
	domainTotal := map[string]int{}
	domainCorrect := map[string]int{}
	correct := 0
	for _, a := range answers {
		q, err := s.store.GetQuestion(ctx, a.QuestionID)
		if err != nil {
			return ExamResult{}, fmt.Errorf("score question %s: %w", a.QuestionID, err)
		}
		ok := sameSet(a.Selected, q.CorrectAnswers)
		correctness[a.QuestionID] = ok
		domainTotal[q.Domain]++
		if ok {
			correct++
			domainCorrect[q.Domain]++
		}
	}

	total := len(answers)
	score := 0
	if total > 0 {
		score = int(math.Round(100 * float64(correct) / float64(total)))
	}
	passed := score >= s.examType.PassingScore

	completedAt := s.now().UTC().Format(time.RFC3339)
	if err := s.store.CompleteAttempt(ctx, attempt.ID, completedAt, float64(score), passed, correctness); err != nil {
		return ExamResult{}, fmt.Errorf("complete attempt: %w", err)
	}

	breakdown := make(map[string]int, len(domainTotal))
	for d, n := range domainTotal {
		breakdown[d] = int(math.Round(100 * float64(domainCorrect[d]) / float64(n)))
	}

	s.bumpStats(ctx, attempt, total)

	return ExamResult{
		AttemptID:       attempt.ID,
		Score:           score,
		Passed:          passed,
		Correct:         correct,
		Total:           total,
		DomainBreakdown: breakdown,
		CompletedAt:     completedAt,
	}, nil
}

// Abandon discards the active attempt without scoring.
func (s *Service) Abandon(ctx context.Context) error {
	attempt, err := s.requireActive(ctx)
	if err != nil {
		return err
	}
	completedAt := s.now().UTC().Format(time.RFC3339)
	return s.store.AbandonAttempt(ctx, attempt.ID, completedAt)
}

// bumpStats folds the finished attempt into the device's lifetime counters.
// Stats are bookkeeping, not part of the submit contract: failures are
// logged, never propagated.
func (s *Service) bumpStats(ctx context.Context, attempt localstore.ExamAttempt, total int) {
	stats, err := s.store.GetUserStats(ctx)
	if err != nil {
		log.Printf("session: read stats: %v", err)
		return
	}
	stats.TotalExams++
	stats.TotalQuestions += int64(total)
	if spent := int64(s.examType.TimeLimitMin)*60_000 - attempt.RemainingTimeMs; spent > 0 {
		stats.TotalTimeSpentMs += spent
	}
	stats.LastActivityAt = s.now().UTC().Format(time.RFC3339)
	if err := s.store.MergeUserStats(ctx, stats); err != nil {
		log.Printf("session: merge stats: %v", err)
	}
}

func (s *Service) requireActive(ctx context.Context) (localstore.ExamAttempt, error) {
	attempt, active, err := s.store.InProgressAttempt(ctx)
	if err != nil {
		return localstore.ExamAttempt{}, err
	}
	if !active {
		return localstore.ExamAttempt{}, ErrNoActiveExam
	}
	return attempt, nil
}

func (s *Service) loadSession(ctx context.Context, attempt localstore.ExamAttempt) (Session, error) {
	answers, err := s.store.AnswersForAttempt(ctx, attempt.ID)
	if err != nil {
		return Session{}, err
	}
	questions := make([]bank.Question, len(answers))
	for i, a := range answers {
		q, err := s.store.GetQuestion(ctx, a.QuestionID)
		if err != nil {
			return Session{}, fmt.Errorf("load question %s: %w", a.QuestionID, err)
		}
		questions[i] = q
	}
	return Session{Attempt: attempt, Questions: questions, Answers: answers}, nil
}

// selectStratified samples each domain's configured share without
// replacement, tops up any shortfall from questions not yet picked, and
// shuffles the combined set once.
func (s *Service) selectStratified(ctx context.Context) ([]bank.Question, error) {
	picked := make([]bank.Question, 0, s.examType.QuestionCount)
	seen := map[string]bool{}
	for _, d := range s.examType.Domains {
		qs, err := s.store.SampleQuestions(ctx, d.ID, "", d.QuestionCount)
		if err != nil {
			return nil, err
		}
		for _, q := range qs {
			if !seen[q.ID] {
				seen[q.ID] = true
				picked = append(picked, q)
			}
		}
	}
	if missing := s.examType.QuestionCount - len(picked); missing > 0 {
		// Over-fetch so leftovers remain after skipping already picked rows.
		extra, err := s.store.SampleQuestions(ctx, "", "", missing+len(picked))
		if err != nil {
			return nil, err
		}
		for _, q := range extra {
			if len(picked) == s.examType.QuestionCount {
				break
			}
			if !seen[q.ID] {
				seen[q.ID] = true
				picked = append(picked, q)
			}
		}
	}
	if len(picked) < s.examType.QuestionCount {
		return nil, fmt.Errorf("%w: need %d, selected %d", ErrInsufficientBank, s.examType.QuestionCount, len(picked))
	}
	s.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked, nil
}

// sameSet compares two option-id lists as sets.
func sameSet(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	m := make(map[string]bool, len(a))
	for _, x := range a {
		m[x] = true
	}
	for _, y := range b {
		if !m[y] {
			return false
		}
	}
	return len(m) == len(b)
}
