// Package http holds the chi handlers for the question-bank read API and
// the sync pipeline's operator endpoints.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/cloudsync"
	syncx "github.com/cloudprep/cloudprep/internal/sync"
)

// GET /exam-types/{examTypeID}/questions?since=<version>&limit=<n>
func GetQuestionsHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examTypeID := chi.URLParam(r, "examTypeID")
		since, err := parseInt64Default(r.URL.Query().Get("since"), 0)
		if err != nil || since < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)

		page, err := store.GetQuestions(r.Context(), examTypeID, since, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if page.Questions == nil {
			page.Questions = []bank.Question{}
		}
		writeJSON(w, page)
	}
}

// GET /exam-types/{examTypeID}/questions/version
func GetVersionHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := store.GetVersion(r.Context(), chi.URLParam(r, "examTypeID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, info)
	}
}

// POST /attempts: a client pushes a completed attempt; it lands as pending
// sync and the pipeline takes it from there.
func SubmitAttemptHandler(store *cloudsync.SQLStore, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID          string          `json:"id"`
			UserID      string          `json:"userId"`
			ExamTypeID  string          `json:"examTypeId"`
			Score       float64         `json:"score"`
			Passed      bool            `json:"passed"`
			CompletedAt int64           `json:"completedAt"`
			Payload     json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.ID == "" || req.ExamTypeID == "" {
			http.Error(w, "id and examTypeId are required", http.StatusBadRequest)
			return
		}
		if req.CompletedAt == 0 {
			req.CompletedAt = time.Now().Unix()
		}
		rec := cloudsync.AttemptRecord{
			ID:          req.ID,
			UserID:      req.UserID,
			ExamTypeID:  req.ExamTypeID,
			Score:       req.Score,
			Passed:      req.Passed,
			PayloadJSON: string(req.Payload),
			CompletedAt: req.CompletedAt,
		}
		if err := store.EnqueueAttempt(r.Context(), rec); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if events != nil {
			e := syncx.Event{Type: syncx.EventAttemptQueued, Key: rec.ID, DataJSON: "{}"}
			if err := events.Append(r.Context(), e); err != nil {
				log.Printf("api: audit %s: %v", rec.ID, err)
			}
		}
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"status": cloudsync.StatusPending})
	}
}

// GET /sync/stats
func SyncStatsHandler(pipe *cloudsync.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := pipe.GetSyncStatistics(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, stats)
	}
}

// POST /sync/process?pass=pending|failed is a manual trigger for a pipeline
// pass, mainly for operators and tests.
func ProcessSyncHandler(pipe *cloudsync.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			res cloudsync.Result
			err error
		)
		switch r.URL.Query().Get("pass") {
		case "", "pending":
			res, err = pipe.ProcessPendingSync(r.Context())
		case "failed":
			res, err = pipe.ProcessFailedSync(r.Context())
		default:
			http.Error(w, "unknown pass", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if res.Errors == nil {
			res.Errors = []cloudsync.SyncError{}
		}
		writeJSON(w, res)
	}
}

// GET /sync/events?limit=50, newest audit events first.
func SyncEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		out, err := events.Recent(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []syncx.Event{}
		}
		writeJSON(w, out)
	}
}

// DELETE /sync/synced?days=30
func CleanupSyncedHandler(pipe *cloudsync.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := parseIntDefault(r.URL.Query().Get("days"), 30)
		n, err := pipe.CleanupOldSyncedRecords(r.Context(), days)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]int64{"deleted": n})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseInt64Default(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	return n, nil
}
