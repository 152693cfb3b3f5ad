// examapp is the headless client agent: it opens the device-local store,
// seeds it from the packaged question bundle on first run, then catches up
// with the server's question bank. A sync failure on a device that already
// holds questions is logged and tolerated; only an empty store makes it a
// visible warning.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/bundle"
	"github.com/cloudprep/cloudprep/internal/cloudsync"
	"github.com/cloudprep/cloudprep/internal/config"
	"github.com/cloudprep/cloudprep/internal/localstore"
	"github.com/cloudprep/cloudprep/internal/session"
	"github.com/cloudprep/cloudprep/internal/syncengine"
)

func main() {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		log.Fatalf("local store: %v", err)
	}
	defer store.Close()

	if err := seedFromBundle(ctx, store, cfg.BundlePath); err != nil {
		log.Fatalf("bundle load: %v", err)
	}

	client := bank.NewClient(cfg.APIBaseURL, cfg.APIToken)
	engine := syncengine.New(client, store, cfg.ExamTypeID, cfg.SyncPageLimit)

	if sum, err := engine.SyncAll(ctx); err != nil {
		n, cerr := store.CountQuestions(ctx)
		if cerr == nil && n == 0 {
			log.Printf("WARNING: first sync failed and no questions are cached yet: %v", err)
		} else {
			log.Printf("sync failed, continuing with %d cached questions: %v", n, err)
		}
	} else {
		log.Printf("sync: %d questions applied over %d pages, bank at version %d",
			sum.Applied, sum.Pages, sum.LatestVersion)
	}

	svc := session.NewService(store, session.AWSCloudPractitioner())
	if sess, ok, err := svc.Resume(ctx); err != nil {
		log.Printf("resume check: %v", err)
	} else if ok {
		log.Printf("in-progress exam %s: %d questions, %s remaining",
			sess.Attempt.ID, len(sess.Questions), time.Duration(sess.Attempt.RemainingTimeMs)*time.Millisecond)
	}

	pushCompleted(ctx, store, cloudsync.NewClient(cfg.APIBaseURL, cfg.APIToken), cfg)
}

// pushCompleted re-pushes every finished attempt to the server. Duplicates
// are ignored server-side, so no local "already pushed" bookkeeping is
// needed; the first error stops the pass since the network is likely down.
func pushCompleted(ctx context.Context, store *localstore.Store, client *cloudsync.Client, cfg config.Config) {
	attempts, err := store.CompletedAttempts(ctx)
	if err != nil {
		log.Printf("list completed attempts: %v", err)
		return
	}
	for _, a := range attempts {
		answers, err := store.AnswersForAttempt(ctx, a.ID)
		if err != nil {
			log.Printf("load answers for %s: %v", a.ID, err)
			return
		}
		payload, err := json.Marshal(map[string]any{"answers": answers})
		if err != nil {
			log.Printf("encode attempt %s: %v", a.ID, err)
			return
		}
		var score float64
		if a.Score != nil {
			score = *a.Score
		}
		req := cloudsync.SubmitRequest{
			ID:          a.ID,
			UserID:      cfg.UserID,
			ExamTypeID:  cfg.ExamTypeID,
			Score:       score,
			Passed:      a.Passed != nil && *a.Passed,
			CompletedAt: unixOrNow(a.CompletedAt),
			Payload:     payload,
		}
		if err := client.SubmitAttempt(ctx, req); err != nil {
			log.Printf("push attempt %s: %v", a.ID, err)
			return
		}
	}
	if len(attempts) > 0 {
		log.Printf("pushed %d completed attempts", len(attempts))
	}
}

func unixOrNow(rfc3339 string) int64 {
	if t, err := time.Parse(time.RFC3339, rfc3339); err == nil {
		return t.Unix()
	}
	return time.Now().Unix()
}

func seedFromBundle(ctx context.Context, store *localstore.Store, path string) error {
	loader := bundle.NewLoader(store)
	if loaded, err := loader.IsLoaded(ctx); err != nil || loaded {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := bundle.Parse(f)
	if err != nil {
		return err
	}
	res, err := loader.Load(ctx, b)
	if err != nil {
		return err
	}
	if res.Loaded {
		log.Printf("seeded %d bundled questions at version %d", res.Count, b.Version)
	}
	return nil
}
