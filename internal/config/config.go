package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret string
	AdminUser      string
	AdminPassHash  string // bcrypt

	CORSOrigins []string

	// Background job cadence for the cloud-sync pipeline.
	PendingSyncInterval time.Duration
	FailedSyncInterval  time.Duration
	CleanupInterval     time.Duration
	CleanupRetainDays   int

	// Client-side settings (examapp).
	UserID        string
	ExamTypeID    string
	LocalDBPath   string
	BundlePath    string
	APIBaseURL    string
	APIToken      string
	SyncPageLimit int
}

func FromEnv() Config {
	return Config{
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		BlobBasePath: envOr("BLOB_BASE_PATH", "./data"),

		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:      envOr("ADMIN_USER", "admin"),
		AdminPassHash:  envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:19006"),

		PendingSyncInterval: envDuration("PENDING_SYNC_INTERVAL", 5*time.Minute),
		FailedSyncInterval:  envDuration("FAILED_SYNC_INTERVAL", time.Hour),
		CleanupInterval:     envDuration("CLEANUP_INTERVAL", 24*time.Hour),
		CleanupRetainDays:   envInt("CLEANUP_RETAIN_DAYS", 30),

		UserID:        envOr("DEVICE_USER_ID", "local"),
		ExamTypeID:    envOr("EXAM_TYPE_ID", "aws-ccp"),
		LocalDBPath:   envOr("LOCAL_DB_PATH", "cloudprep-local.db"),
		BundlePath:    envOr("BUNDLE_PATH", "./assets/aws-ccp-bundle.json"),
		APIBaseURL:    envOr("API_BASE_URL", "http://localhost:8080"),
		APIToken:      os.Getenv("API_TOKEN"),
		SyncPageLimit: envInt("SYNC_PAGE_LIMIT", 100),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
