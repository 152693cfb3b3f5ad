package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/cloudprep/cloudprep/internal/api/http"
	auth "github.com/cloudprep/cloudprep/internal/auth/middleware"
	"github.com/cloudprep/cloudprep/internal/bank"
	"github.com/cloudprep/cloudprep/internal/cloudsync"
	"github.com/cloudprep/cloudprep/internal/config"
	"github.com/cloudprep/cloudprep/internal/db"
	"github.com/cloudprep/cloudprep/internal/storage"
	syncx "github.com/cloudprep/cloudprep/internal/sync"
)

func main() {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	bankStore := bank.NewSQLStore(dbh)
	syncStore := cloudsync.NewSQLStore(dbh)

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}
	events := syncx.NewEventRepo(dbh)
	pipeline := cloudsync.New(syncStore, cloudsync.NewBlobUploader(blobs))
	pipeline.Events = events

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, cfg.AdminUser, cfg.AdminPassHash))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Get("/exam-types/{examTypeID}/questions", api.GetQuestionsHandler(bankStore))
		pr.Get("/exam-types/{examTypeID}/questions/version", api.GetVersionHandler(bankStore))
		pr.Post("/attempts", api.SubmitAttemptHandler(syncStore, events))
		pr.Get("/sync/stats", api.SyncStatsHandler(pipeline))
		pr.Get("/sync/events", api.SyncEventsHandler(events))
		pr.Post("/sync/process", api.ProcessSyncHandler(pipeline))
		pr.Delete("/sync/synced", api.CleanupSyncedHandler(pipeline))
	})

	go runJobs(ctx, cfg, pipeline)

	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutCtx)
	}()

	log.Printf("syncd listening on %s", cfg.HTTPAddr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// runJobs drives the three pipeline passes on their own schedules until the
// process is told to stop.
func runJobs(ctx context.Context, cfg config.Config, pipeline *cloudsync.Pipeline) {
	pending := time.NewTicker(cfg.PendingSyncInterval)
	failed := time.NewTicker(cfg.FailedSyncInterval)
	cleanup := time.NewTicker(cfg.CleanupInterval)
	defer pending.Stop()
	defer failed.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pending.C:
			if _, err := pipeline.ProcessPendingSync(ctx); err != nil {
				log.Printf("pending sync pass: %v", err)
			}
		case <-failed.C:
			if _, err := pipeline.ProcessFailedSync(ctx); err != nil {
				log.Printf("failed sync pass: %v", err)
			}
		case <-cleanup.C:
			if _, err := pipeline.CleanupOldSyncedRecords(ctx, cfg.CleanupRetainDays); err != nil {
				log.Printf("cleanup pass: %v", err)
			}
		}
	}
}
