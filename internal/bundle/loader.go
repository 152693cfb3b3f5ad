// Package bundle seeds the local store from a packaged question snapshot so
// the app is usable before any network sync has succeeded.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/localstore"
)

// Bundle is the packaged snapshot format shipped with the app.
type Bundle struct {
	Version     int64           `json:"version"`
	ExamTypeID  string          `json:"examTypeId"`
	GeneratedAt string          `json:"generatedAt"`
	Questions   []bank.Question `json:"questions"`
}

func Parse(r io.Reader) (Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("parse bundle: %w", err)
	}
	return b, nil
}

type LoadResult struct {
	Loaded bool
	Count  int
}

type Loader struct {
	store *localstore.Store
}

func NewLoader(store *localstore.Store) *Loader { return &Loader{store: store} }

// IsLoaded reports whether a bundle has ever been loaded on this device.
func (l *Loader) IsLoaded(ctx context.Context) (bool, error) {
	_, ok, err := l.store.GetMeta(ctx, localstore.MetaBundledVersion)
	return ok, err
}

// Load seeds the store from b, once. It is a no-op when a bundle was already
// loaded. Rows are inserted with insert-or-ignore semantics so a question the
// sync engine already wrote is never overwritten, and the sync watermark is
// only initialized when no sync has happened yet: a genuine sync always wins.
func (l *Loader) Load(ctx context.Context, b Bundle) (LoadResult, error) {
	loaded, err := l.IsLoaded(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	if loaded {
		return LoadResult{Loaded: false}, nil
	}

	count := 0
	for _, q := range b.Questions {
		if err := l.store.InsertQuestionIgnore(ctx, q); err != nil {
			return LoadResult{}, fmt.Errorf("seed question %s: %w", q.ID, err)
		}
		count++
	}

	if err := l.store.SetMetaVersion(ctx, localstore.MetaBundledVersion, b.Version); err != nil {
		return LoadResult{}, err
	}
	_, hasSync, err := l.store.GetMeta(ctx, localstore.MetaLastSyncVersion)
	if err != nil {
		return LoadResult{}, err
	}
	if !hasSync {
		if err := l.store.SetMetaVersion(ctx, localstore.MetaLastSyncVersion, b.Version); err != nil {
			return LoadResult{}, err
		}
	}
	return LoadResult{Loaded: true, Count: count}, nil
}
