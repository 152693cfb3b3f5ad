package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the device-side submitter: it pushes completed attempts to the
// server, which enqueues them as pending for the pipeline. The server
// ignores duplicate ids, so a client may re-push everything it holds after
// a crash or a long offline stretch.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SubmitRequest is the wire shape of POST /attempts.
type SubmitRequest struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	ExamTypeID  string          `json:"examTypeId"`
	Score       float64         `json:"score"`
	Passed      bool            `json:"passed"`
	CompletedAt int64           `json:"completedAt"`
	Payload     json.RawMessage `json:"payload"`
}

func (c *Client) SubmitAttempt(ctx context.Context, req SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal attempt %s: %w", req.ID, err)
	}
	u := c.BaseURL + "/attempts"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("submit attempt %s: %s returned %d: %s",
			req.ID, u, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
