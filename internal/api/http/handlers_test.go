package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/cloudsync"
	"github.com/cloudprep/cloudprep/internal/db"
	"github.com/cloudprep/cloudprep/internal/storage"
	syncx "github.com/cloudprep/cloudprep/internal/sync"
)

type testAPI struct {
	srv    *httptest.Server
	bank   *bank.SQLStore
	sync   *cloudsync.SQLStore
	events *syncx.EventRepo
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "server.db") + "?cache=shared&mode=rwc"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	bankStore := bank.NewSQLStore(dbh)
	syncStore := cloudsync.NewSQLStore(dbh)
	events := syncx.NewEventRepo(dbh)
	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	pipeline := cloudsync.New(syncStore, cloudsync.NewBlobUploader(blobs))
	pipeline.Events = events

	r := chi.NewRouter()
	r.Get("/exam-types/{examTypeID}/questions", GetQuestionsHandler(bankStore))
	r.Get("/exam-types/{examTypeID}/questions/version", GetVersionHandler(bankStore))
	r.Post("/attempts", SubmitAttemptHandler(syncStore, events))
	r.Get("/sync/stats", SyncStatsHandler(pipeline))
	r.Get("/sync/events", SyncEventsHandler(events))
	r.Post("/sync/process", ProcessSyncHandler(pipeline))
	r.Delete("/sync/synced", CleanupSyncedHandler(pipeline))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, bank: bankStore, sync: syncStore, events: events}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestGetQuestionsBadSince(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(t, http.MethodGet, "/exam-types/aws-ccp/questions?since=banana", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp = a.do(t, http.MethodGet, "/exam-types/aws-ccp/questions?since=-1", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative since: status = %d, want 400", resp.StatusCode)
	}
}

func TestGetQuestionsEmptyBank(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(t, http.MethodGet, "/exam-types/aws-ccp/questions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSubmitAttempt(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	body := `{"id":"a1","userId":"u1","examTypeId":"aws-ccp","score":71,"passed":true,"completedAt":1760000000,"payload":{"answers":[]}}`
	resp := a.do(t, http.MethodPost, "/attempts", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	rec, err := a.sync.GetAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SyncStatus != cloudsync.StatusPending || rec.Score != 71 {
		t.Fatalf("record = %+v", rec)
	}

	events, err := a.events.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Type != syncx.EventAttemptQueued || events[0].Key != "a1" {
		t.Fatalf("events = %+v", events)
	}
}

func TestSubmitAttemptRejectsBadInput(t *testing.T) {
	a := newTestAPI(t)
	if resp := a.do(t, http.MethodPost, "/attempts", "not json"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("garbage body: status = %d, want 400", resp.StatusCode)
	}
	if resp := a.do(t, http.MethodPost, "/attempts", `{"userId":"u1"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing id: status = %d, want 400", resp.StatusCode)
	}
}

func TestProcessSyncUnknownPass(t *testing.T) {
	a := newTestAPI(t)
	if resp := a.do(t, http.MethodPost, "/sync/process?pass=sideways", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSyncRoundTripThroughAPI(t *testing.T) {
	a := newTestAPI(t)

	body := `{"id":"a1","examTypeId":"aws-ccp","score":50,"passed":false,"payload":{}}`
	if resp := a.do(t, http.MethodPost, "/attempts", body); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: status = %d", resp.StatusCode)
	}
	if resp := a.do(t, http.MethodPost, "/sync/process?pass=pending", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("process: status = %d", resp.StatusCode)
	}

	rec, err := a.sync.GetAttempt(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SyncStatus != cloudsync.StatusSynced {
		t.Fatalf("record = %+v, want synced", rec)
	}
}
