package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudprep/cloudprep/internal/bank"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testQuestion(id, domain string, version int64) bank.Question {
	ts := time.Now().UTC().Format(time.RFC3339)
	return bank.Question{
		ID:         id,
		Text:       "question " + id,
		Type:       bank.TypeSingleChoice,
		Domain:     domain,
		Difficulty: bank.DifficultyMedium,
		Options: []bank.Option{
			{ID: "a", Text: "option a"},
			{ID: "b", Text: "option b"},
		},
		CorrectAnswers: []string{"a"},
		Explanation:    "because a",
		Version:        version,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

func TestUpsertQuestionOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	q := testQuestion("q1", "security", 1)
	if err := s.UpsertQuestion(ctx, q); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	q.Text = "revised"
	q.Version = 3
	if err := s.UpsertQuestion(ctx, q); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "revised" || got.Version != 3 {
		t.Fatalf("got text=%q version=%d, want revised/3", got.Text, got.Version)
	}
	if n, _ := s.CountQuestions(ctx); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestInsertQuestionIgnoreKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	q := testQuestion("q1", "security", 5)
	if err := s.UpsertQuestion(ctx, q); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stale := testQuestion("q1", "security", 1)
	stale.Text = "stale bundled copy"
	if err := s.InsertQuestionIgnore(ctx, stale); err != nil {
		t.Fatalf("insert-ignore: %v", err)
	}

	got, err := s.GetQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 5 || got.Text == "stale bundled copy" {
		t.Fatalf("insert-ignore overwrote the row: %+v", got)
	}
}

func TestPutQuestionRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	q := testQuestion("q1", "security", 1)
	q.CorrectAnswers = []string{"nope"}
	if err := s.UpsertQuestion(ctx, q); !errors.Is(err, bank.ErrInvalidQuestion) {
		t.Fatalf("err = %v, want ErrInvalidQuestion", err)
	}
}

func TestGetQuestionNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetQuestion(context.Background(), "missing"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("err = %v, want ErrQuestionNotFound", err)
	}
}

func TestSampleQuestionsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, domain := range []string{"security", "security", "billing"} {
		q := testQuestion(string(rune('a'+i)), domain, int64(i+1))
		if i == 2 {
			q.Difficulty = bank.DifficultyHard
		}
		if err := s.UpsertQuestion(ctx, q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	qs, err := s.SampleQuestions(ctx, "security", "", 10)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("sampled %d security questions, want 2", len(qs))
	}
	for _, q := range qs {
		if q.Domain != "security" {
			t.Fatalf("sampled wrong domain: %q", q.Domain)
		}
	}

	qs, err = s.SampleQuestions(ctx, "", bank.DifficultyHard, 10)
	if err != nil {
		t.Fatalf("sample by difficulty: %v", err)
	}
	if len(qs) != 1 || qs[0].Domain != "billing" {
		t.Fatalf("difficulty filter returned %+v", qs)
	}

	// Without replacement within a call.
	qs, err = s.SampleQuestions(ctx, "", "", 3)
	if err != nil {
		t.Fatalf("sample all: %v", err)
	}
	seen := map[string]bool{}
	for _, q := range qs {
		if seen[q.ID] {
			t.Fatalf("duplicate id %s in one sample", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestMaxQuestionVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.MaxQuestionVersion(ctx)
	if err != nil || v != 0 {
		t.Fatalf("empty store: v=%d err=%v, want 0/nil", v, err)
	}
	if err := s.UpsertQuestion(ctx, testQuestion("q1", "security", 7)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if v, _ = s.MaxQuestionVersion(ctx); v != 7 {
		t.Fatalf("v = %d, want 7", v)
	}
}

func TestMetaVersionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.GetMetaVersion(ctx, MetaLastSyncVersion); err != nil || ok {
		t.Fatalf("unset key: ok=%v err=%v, want absent", ok, err)
	}
	if err := s.SetMetaVersion(ctx, MetaLastSyncVersion, 42); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.GetMetaVersion(ctx, MetaLastSyncVersion)
	if err != nil || !ok || v != 42 {
		t.Fatalf("got v=%d ok=%v err=%v, want 42/true/nil", v, ok, err)
	}
	if err := s.SetMetaVersion(ctx, MetaLastSyncVersion, 43); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _, _ = s.GetMetaVersion(ctx, MetaLastSyncVersion); v != 43 {
		t.Fatalf("v = %d after overwrite, want 43", v)
	}
}
