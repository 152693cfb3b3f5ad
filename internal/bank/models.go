package bank

import (
	"errors"
	"fmt"
)

// Question types as delivered by the public API.
const (
	TypeSingleChoice   = "single-choice"
	TypeMultipleChoice = "multiple-choice"
	TypeTrueFalse      = "true-false"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Curation statuses. Only approved questions are delivered to clients.
const (
	StatusDraft    = "draft"
	StatusApproved = "approved"
	StatusRetired  = "retired"
)

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ExplanationBlock is one typed unit of rich explanation content.
// Meta is an open bag; known keys include alt, caption, width, height,
// listItems and label depending on the block type.
type ExplanationBlock struct {
	Type    string         `json:"type"` // paragraph|link|image|bullet_list|code|separator
	Content string         `json:"content"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type Question struct {
	ID                string             `json:"id"`
	Text              string             `json:"text"`
	Type              string             `json:"type"`
	Domain            string             `json:"domain"`
	Difficulty        string             `json:"difficulty"`
	Options           []Option           `json:"options"`
	CorrectAnswers    []string           `json:"correctAnswers"`
	Explanation       string             `json:"explanation"`
	ExplanationBlocks []ExplanationBlock `json:"explanationBlocks,omitempty"`
	Version           int64              `json:"version"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
}

// Page is one bounded slice of the question bank, ordered by ascending
// version. LatestVersion is the global maximum among approved questions,
// independent of the page requested.
type Page struct {
	Questions     []Question `json:"questions"`
	LatestVersion int64      `json:"latestVersion"`
	HasMore       bool       `json:"hasMore"`
	NextSince     int64      `json:"nextSince,omitempty"`
}

type VersionInfo struct {
	LatestVersion int64  `json:"latestVersion"`
	QuestionCount int    `json:"questionCount"`
	LastUpdatedAt string `json:"lastUpdatedAt,omitempty"`
}

var ErrInvalidQuestion = errors.New("invalid question")

// Validate checks the structural invariants a question must hold before it
// is written anywhere: a known type, at least one option, and a non-empty
// correct-answer set that references only existing options.
func (q Question) Validate() error {
	switch q.Type {
	case TypeSingleChoice, TypeMultipleChoice, TypeTrueFalse:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}
	if q.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidQuestion)
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("%w %s: no options", ErrInvalidQuestion, q.ID)
	}
	if len(q.CorrectAnswers) == 0 {
		return fmt.Errorf("%w %s: no correct answers", ErrInvalidQuestion, q.ID)
	}
	opts := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		opts[o.ID] = true
	}
	for _, id := range q.CorrectAnswers {
		if !opts[id] {
			return fmt.Errorf("%w %s: correct answer %q is not an option", ErrInvalidQuestion, q.ID, id)
		}
	}
	return nil
}
