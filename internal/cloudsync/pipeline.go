// Package cloudsync pushes completed exam attempts into durable storage.
// Two batch passes run on independent schedules: a concurrent pass over
// pending attempts and a serial, backoff-delayed pass over failed ones.
// Every pass is idempotent at the record level because each query filters
// by sync status.
package cloudsync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	syncx "github.com/cloudprep/cloudprep/internal/sync"
)

// Sync statuses an attempt record moves through.
const (
	StatusPending = "pending"
	StatusSynced  = "synced"
	StatusFailed  = "failed"
)

const (
	DefaultMaxRetries = 12
	DefaultBaseDelay  = 5 * time.Second
	DefaultBatchSize  = 100
	DefaultGroupSize  = 10
)

// AttemptRecord is a server-held completed attempt awaiting durable upload.
type AttemptRecord struct {
	ID          string
	UserID      string
	ExamTypeID  string
	Score       float64
	Passed      bool
	PayloadJSON string
	CompletedAt int64
	SyncStatus  string
	SyncRetries int
	SyncedAt    int64 // unix seconds, 0 until synced
	LastError   string
}

// Store is the attempt bookkeeping the pipeline drives.
type Store interface {
	GetPendingSync(ctx context.Context, limit int) ([]AttemptRecord, error)
	GetFailedSync(ctx context.Context, maxRetries, limit int) ([]AttemptRecord, error)
	GetAttempt(ctx context.Context, id string) (AttemptRecord, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (Statistics, error)
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Uploader performs the durable-storage write. It is assumed to carry its
// own timeout; the pipeline bounds retries and inter-retry delay, not the
// call itself.
type Uploader interface {
	Upload(ctx context.Context, rec AttemptRecord) error
}

type SyncError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type Result struct {
	Synced  int         `json:"synced"`
	Failed  int         `json:"failed"`
	Retried int         `json:"retried"`
	Errors  []SyncError `json:"errors"`
}

type Statistics struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

type Pipeline struct {
	store    Store
	uploader Uploader

	MaxRetries int
	BaseDelay  time.Duration
	BatchSize  int
	GroupSize  int

	// Events, when set, receives an audit event per sync outcome.
	Events *syncx.EventRepo

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(store Store, uploader Uploader) *Pipeline {
	return &Pipeline{
		store:      store,
		uploader:   uploader,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		BatchSize:  DefaultBatchSize,
		GroupSize:  DefaultGroupSize,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// ProcessPendingSync uploads up to BatchSize pending attempts in groups of
// GroupSize. Within a group the uploads run concurrently and every outcome
// is collected before the next group starts, so one slow item delays at most
// its own group.
func (p *Pipeline) ProcessPendingSync(ctx context.Context) (Result, error) {
	var result Result
	pending, err := p.store.GetPendingSync(ctx, p.BatchSize)
	if err != nil {
		return result, err
	}
	if len(pending) == 0 {
		return result, nil
	}
	log.Printf("cloudsync: %d pending attempts to sync", len(pending))

	for start := 0; start < len(pending); start += p.GroupSize {
		end := start + p.GroupSize
		if end > len(pending) {
			end = len(pending)
		}
		group := pending[start:end]

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, rec := range group {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				err := p.syncOne(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.Errors = append(result.Errors, SyncError{ID: id, Error: err.Error()})
				} else {
					result.Synced++
				}
			}(rec.ID)
		}
		wg.Wait()
	}

	log.Printf("cloudsync: pending pass done: %d synced, %d failed", result.Synced, result.Failed)
	return result, nil
}

// ProcessFailedSync retries failed attempts with fewer than MaxRetries
// retries, serially, sleeping BaseDelay*2^retries before each one. An
// attempt that exhausts the retry budget stays failed for operator
// visibility; it is never retried again automatically.
func (p *Pipeline) ProcessFailedSync(ctx context.Context) (Result, error) {
	var result Result
	failed, err := p.store.GetFailedSync(ctx, p.MaxRetries, p.BatchSize)
	if err != nil {
		return result, err
	}
	if len(failed) == 0 {
		return result, nil
	}
	log.Printf("cloudsync: %d failed attempts to retry", len(failed))

	for _, rec := range failed {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		p.sleep(ctx, p.BaseDelay<<uint(rec.SyncRetries))

		if err := p.syncOne(ctx, rec.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncError{ID: rec.ID, Error: err.Error()})
			if ierr := p.store.IncrementRetries(ctx, rec.ID); ierr != nil {
				log.Printf("cloudsync: increment retries for %s: %v", rec.ID, ierr)
			}
			continue
		}
		result.Synced++
		result.Retried++
	}

	log.Printf("cloudsync: retry pass done: %d recovered, %d still failing", result.Retried, result.Failed)
	return result, nil
}

// syncOne uploads a single attempt and records the outcome. The record
// always leaves in a definite status: synced on success, failed with the
// error message otherwise.
func (p *Pipeline) syncOne(ctx context.Context, id string) error {
	rec, err := p.store.GetAttempt(ctx, id)
	if err != nil {
		p.markFailed(ctx, id, err)
		return err
	}
	if err := p.uploader.Upload(ctx, rec); err != nil {
		p.markFailed(ctx, id, err)
		return err
	}
	if err := p.store.MarkSynced(ctx, id, p.now()); err != nil {
		return err
	}
	p.audit(ctx, syncx.EventAttemptSynced, id, "{}")
	return nil
}

func (p *Pipeline) markFailed(ctx context.Context, id string, cause error) {
	if merr := p.store.MarkFailed(ctx, id, cause.Error()); merr != nil {
		log.Printf("cloudsync: mark failed %s: %v", id, merr)
	}
	data, _ := json.Marshal(SyncError{ID: id, Error: cause.Error()})
	p.audit(ctx, syncx.EventAttemptFailed, id, string(data))
}

// audit is best effort; a lost event never fails a sync.
func (p *Pipeline) audit(ctx context.Context, typ, key, data string) {
	if p.Events == nil {
		return
	}
	e := syncx.Event{Type: typ, Key: key, DataJSON: data}
	if err := p.Events.Append(ctx, e); err != nil {
		log.Printf("cloudsync: audit %s %s: %v", typ, key, err)
	}
}

// GetSyncStatistics reports attempt counts per sync status.
func (p *Pipeline) GetSyncStatistics(ctx context.Context) (Statistics, error) {
	return p.store.CountByStatus(ctx)
}

// CleanupOldSyncedRecords deletes synced attempts whose syncedAt is older
// than daysOld days.
func (p *Pipeline) CleanupOldSyncedRecords(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = 30
	}
	cutoff := p.now().AddDate(0, 0, -daysOld)
	n, err := p.store.DeleteSyncedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("cloudsync: cleaned up %d synced attempts older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
