// Package syncengine pulls versioned question-bank deltas from the server
// into the local store. Pulls are paginated and idempotent: re-applying a
// page only re-overwrites rows, and the sync watermark is advanced strictly
// after the page's rows are durably written.
package syncengine

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/localstore"
)

// BankClient is the read side of the question-bank API.
type BankClient interface {
	FetchQuestions(ctx context.Context, examTypeID string, since int64, limit int) (bank.Page, error)
}

type Engine struct {
	client     BankClient
	store      *localstore.Store
	examTypeID string
	pageLimit  int
}

func New(client BankClient, store *localstore.Store, examTypeID string, pageLimit int) *Engine {
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &Engine{client: client, store: store, examTypeID: examTypeID, pageLimit: pageLimit}
}

// PullResult describes one applied page.
type PullResult struct {
	Applied       int
	LatestVersion int64
	HasMore       bool
	NextSince     int64
}

// Pull fetches one page of questions with version greater than since and
// reconciles it into the local store. On any fetch or write error the
// watermark is left untouched; the caller may retry with the same since.
func (e *Engine) Pull(ctx context.Context, since int64, limit int) (PullResult, error) {
	page, err := e.client.FetchQuestions(ctx, e.examTypeID, since, limit)
	if err != nil {
		return PullResult{}, fmt.Errorf("fetch since %d: %w", since, err)
	}

	for _, q := range page.Questions {
		if err := e.store.UpsertQuestion(ctx, q); err != nil {
			return PullResult{}, fmt.Errorf("apply question %s: %w", q.ID, err)
		}
	}

	// Rows first, watermark second: a crash in between is recovered by a
	// plain retry that re-applies the same page.
	watermark := page.LatestVersion
	if page.HasMore {
		watermark = page.NextSince
	}
	if err := e.advanceWatermark(ctx, watermark); err != nil {
		return PullResult{}, err
	}

	return PullResult{
		Applied:       len(page.Questions),
		LatestVersion: page.LatestVersion,
		HasMore:       page.HasMore,
		NextSince:     page.NextSince,
	}, nil
}

// SyncSummary covers a full catch-up run.
type SyncSummary struct {
	Pages         int
	Applied       int
	LatestVersion int64
}

// SyncAll pulls pages from the current watermark until the server reports no
// more. Each page is applied as a unit; an error aborts the run but keeps
// everything already applied.
func (e *Engine) SyncAll(ctx context.Context) (SyncSummary, error) {
	since, err := e.LatestLocalVersion(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	var sum SyncSummary
	for {
		res, err := e.Pull(ctx, since, e.pageLimit)
		if err != nil {
			return sum, err
		}
		sum.Pages++
		sum.Applied += res.Applied
		sum.LatestVersion = res.LatestVersion
		if !res.HasMore {
			return sum, nil
		}
		since = res.NextSince
	}
}

// LatestLocalVersion is the sync watermark: the highest question version this
// device has durably confirmed it ingested. Falls back to the highest version
// actually present in the store when no watermark was ever recorded.
func (e *Engine) LatestLocalVersion(ctx context.Context) (int64, error) {
	v, ok, err := e.store.GetMetaVersion(ctx, localstore.MetaLastSyncVersion)
	if err != nil {
		return 0, err
	}
	if ok {
		return v, nil
	}
	return e.store.MaxQuestionVersion(ctx)
}

func (e *Engine) advanceWatermark(ctx context.Context, v int64) error {
	cur, ok, err := e.store.GetMetaVersion(ctx, localstore.MetaLastSyncVersion)
	if err != nil {
		return err
	}
	if ok && cur >= v {
		if cur > v {
			log.Printf("sync: keeping watermark %d, refusing regression to %d", cur, v)
		}
		return nil
	}
	return e.store.SetMetaVersion(ctx, localstore.MetaLastSyncVersion, v)
}
