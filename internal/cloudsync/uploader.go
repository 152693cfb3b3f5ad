package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudprep/cloudprep/internal/storage"
)

// BlobUploader writes attempts into a BlobStore, one JSON object per
// attempt, keyed by exam type and attempt id.
type BlobUploader struct {
	Blobs storage.BlobStore
}

func NewBlobUploader(blobs storage.BlobStore) *BlobUploader {
	return &BlobUploader{Blobs: blobs}
}

func (u *BlobUploader) Upload(ctx context.Context, rec AttemptRecord) error {
	payload := rec.PayloadJSON
	if payload == "" {
		payload = "{}"
	}
	body, err := json.Marshal(map[string]any{
		"id":          rec.ID,
		"userId":      rec.UserID,
		"examTypeId":  rec.ExamTypeID,
		"score":       rec.Score,
		"passed":      rec.Passed,
		"completedAt": rec.CompletedAt,
		"payload":     json.RawMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("marshal attempt %s: %w", rec.ID, err)
	}
	key := fmt.Sprintf("attempts/%s/%s.json", rec.ExamTypeID, rec.ID)
	if _, err := u.Blobs.Put(key, strings.NewReader(string(body))); err != nil {
		return fmt.Errorf("upload attempt %s: %w", rec.ID, err)
	}
	return nil
}
