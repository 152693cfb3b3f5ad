package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/localstore"
)

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedDomain inserts n questions for one domain. Options are a..d with "a"
// always the correct one.
func seedDomain(t *testing.T, s *localstore.Store, domain string, n int) {
	t.Helper()
	ctx := context.Background()
	ts := time.Now().UTC().Format(time.RFC3339)
	for i := 0; i < n; i++ {
		q := bank.Question{
			ID: fmt.Sprintf("%s-%d", domain, i), Text: "q", Type: bank.TypeSingleChoice,
			Domain: domain, Difficulty: bank.DifficultyMedium,
			Options: []bank.Option{
				{ID: "a", Text: "a"}, {ID: "b", Text: "b"},
				{ID: "c", Text: "c"}, {ID: "d", Text: "d"},
			},
			CorrectAnswers: []string{"a"},
			Version:        1, CreatedAt: ts, UpdatedAt: ts,
		}
		if err := s.UpsertQuestion(ctx, q); err != nil {
			t.Fatalf("seed %s: %v", q.ID, err)
		}
	}
}

func seedFullBank(t *testing.T, s *localstore.Store, et ExamType) {
	t.Helper()
	for _, d := range et.Domains {
		seedDomain(t, s, d.ID, d.QuestionCount)
	}
}

func newTestService(t *testing.T, s *localstore.Store) *Service {
	t.Helper()
	svc := NewService(s, AWSCloudPractitioner())
	svc.rng = rand.New(rand.NewSource(1))
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%04d", n)
	}
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestStartInsufficientBank(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)

	seedDomain(t, s, "security", 40)
	if _, err := svc.Start(ctx); !errors.Is(err, ErrInsufficientBank) {
		t.Fatalf("err = %v, want ErrInsufficientBank", err)
	}

	// Any 25 more questions push the store over the line, regardless of
	// their domain mix.
	seedDomain(t, s, "billing", 25)
	sess, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("start after refill: %v", err)
	}
	if len(sess.Questions) != 65 {
		t.Fatalf("questions = %d, want 65", len(sess.Questions))
	}
}

func TestStartStratifiedSelection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	et := AWSCloudPractitioner()
	seedFullBank(t, s, et)

	sess, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(sess.Questions) != et.QuestionCount || len(sess.Answers) != et.QuestionCount {
		t.Fatalf("got %d questions / %d answers, want %d", len(sess.Questions), len(sess.Answers), et.QuestionCount)
	}

	// With an exactly sized bank every domain contributes its full share.
	perDomain := map[string]int{}
	seen := map[string]bool{}
	for _, q := range sess.Questions {
		if seen[q.ID] {
			t.Fatalf("question %s selected twice", q.ID)
		}
		seen[q.ID] = true
		perDomain[q.Domain]++
	}
	for _, d := range et.Domains {
		if perDomain[d.ID] != d.QuestionCount {
			t.Fatalf("domain %s got %d questions, want %d", d.ID, perDomain[d.ID], d.QuestionCount)
		}
	}

	a := sess.Attempt
	if a.RemainingTimeMs != 90*60*1000 {
		t.Fatalf("remaining = %d, want full 90 minutes", a.RemainingTimeMs)
	}
	if a.ExpiresAt != "2026-03-01T10:30:00Z" {
		t.Fatalf("expiresAt = %q", a.ExpiresAt)
	}
}

func TestStartRejectsSecondExam(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Start(ctx); !errors.Is(err, ErrExamInProgress) {
		t.Fatalf("second start: %v, want ErrExamInProgress", err)
	}
}

func TestResumeKeepsQuestionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	started, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resumed, ok, err := svc.Resume(ctx)
	if err != nil || !ok {
		t.Fatalf("resume: ok=%v err=%v", ok, err)
	}
	if resumed.Attempt.ID != started.Attempt.ID {
		t.Fatalf("resumed %s, want %s", resumed.Attempt.ID, started.Attempt.ID)
	}
	for i := range started.Questions {
		if resumed.Questions[i].ID != started.Questions[i].ID {
			t.Fatalf("order diverged at %d: %s vs %s", i, resumed.Questions[i].ID, started.Questions[i].ID)
		}
	}
}

func TestResumeWithNothingActive(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	if _, ok, err := svc.Resume(context.Background()); err != nil || ok {
		t.Fatalf("resume on empty store: ok=%v err=%v", ok, err)
	}
}

func TestSubmitScoresAtThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	sess, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// 46 of 65 correct rounds to 71 percent, one point over the line.
	for i, q := range sess.Questions {
		sel := []string{"a"}
		if i >= 46 {
			sel = []string{"b"}
		}
		if err := svc.SelectAnswer(ctx, q.ID, sel); err != nil {
			t.Fatalf("select %s: %v", q.ID, err)
		}
	}

	res, err := svc.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Correct != 46 || res.Total != 65 {
		t.Fatalf("correct/total = %d/%d, want 46/65", res.Correct, res.Total)
	}
	if res.Score != 71 || !res.Passed {
		t.Fatalf("score=%d passed=%v, want 71/true", res.Score, res.Passed)
	}
	if len(res.DomainBreakdown) != 4 {
		t.Fatalf("breakdown covers %d domains, want 4", len(res.DomainBreakdown))
	}

	// Slot is free again and stats were folded in.
	if _, active, _ := s.InProgressAttempt(ctx); active {
		t.Fatal("attempt still in progress after submit")
	}
	stats, err := s.GetUserStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalExams != 1 || stats.TotalQuestions != 65 {
		t.Fatalf("stats = %+v", stats)
	}

	if _, err := svc.Submit(ctx); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("second submit: %v, want ErrNoActiveExam", err)
	}
}

func TestSubmitUnansweredCountsWrong(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Submit immediately: nothing answered, nothing correct.
	res, err := svc.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Correct != 0 || res.Score != 0 || res.Passed {
		t.Fatalf("result = %+v, want zero score", res)
	}
}

func TestAbandonFreesTheSlot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Abandon(ctx); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("start after abandon: %v", err)
	}
}

func TestAnswerAndFlagRequireActiveExam(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)

	if err := svc.SelectAnswer(ctx, "q", []string{"a"}); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("select: %v, want ErrNoActiveExam", err)
	}
	if _, err := svc.ToggleFlag(ctx, "q"); !errors.Is(err, ErrNoActiveExam) {
		t.Fatalf("flag: %v, want ErrNoActiveExam", err)
	}
}

func TestToggleFlagOnActiveExam(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	sess, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	qid := sess.Questions[0].ID
	on, err := svc.ToggleFlag(ctx, qid)
	if err != nil || !on {
		t.Fatalf("toggle on: %v / %v", on, err)
	}
	on, err = svc.ToggleFlag(ctx, qid)
	if err != nil || on {
		t.Fatalf("toggle off: %v / %v", on, err)
	}
}

func TestPersistRemainingTimeClampsToZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestService(t, s)
	seedFullBank(t, s, AWSCloudPractitioner())

	sess, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.PersistRemainingTime(ctx, -500)
	a, err := s.GetAttempt(ctx, sess.Attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.RemainingTimeMs != 0 {
		t.Fatalf("remaining = %d, want 0", a.RemainingTimeMs)
	}
}

func TestSameSet(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{[]string{"a"}, []string{"a"}, true},
		{[]string{"a", "b"}, []string{"b", "a"}, true},
		{[]string{"a"}, []string{"b"}, false},
		{[]string{"a", "a"}, []string{"a", "b"}, false},
		{nil, []string{"a"}, false},
		{nil, nil, false}, // no selection is never correct
	}
	for _, c := range cases {
		if got := sameSet(c.a, c.b); got != c.want {
			t.Fatalf("sameSet(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestTick(t *testing.T) {
	if r := Tick(10_000, 1_000); r.Expired || r.RemainingMs != 9_000 {
		t.Fatalf("tick = %+v", r)
	}
	if r := Tick(1_000, 1_000); !r.Expired || r.RemainingMs != 0 {
		t.Fatalf("exact expiry = %+v", r)
	}
	if r := Tick(500, 1_000); !r.Expired || r.RemainingMs != 0 {
		t.Fatalf("overshoot = %+v", r)
	}
}
