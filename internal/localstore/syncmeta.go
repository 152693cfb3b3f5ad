package localstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// Well-known sync_meta keys.
const (
	MetaBundledVersion  = "bundled_version"
	MetaLastSyncVersion = "last_sync_version"
)

// GetMeta returns the value for key and whether it was present.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_meta (key, value, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now)
	return err
}

// GetMetaVersion reads a version-valued key, 0 when unset.
func (s *Store) GetMetaVersion(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := s.GetMeta(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, true, err
	}
	return n, true, nil
}

func (s *Store) SetMetaVersion(ctx context.Context, key string, v int64) error {
	return s.SetMeta(ctx, key, strconv.FormatInt(v, 10))
}
