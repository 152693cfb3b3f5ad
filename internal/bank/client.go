package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the question-bank read API:
//
//	GET {base}/exam-types/{id}/questions?since=<version>&limit=<n>
//	GET {base}/exam-types/{id}/questions/version
//
// Token, when set, is sent as a bearer credential.
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

func (c *Client) FetchQuestions(ctx context.Context, examTypeID string, since int64, limit int) (Page, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(limit))
	u := fmt.Sprintf("%s/exam-types/%s/questions?%s", c.BaseURL, url.PathEscape(examTypeID), q.Encode())

	var page Page
	if err := c.getJSON(ctx, u, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) FetchVersion(ctx context.Context, examTypeID string) (VersionInfo, error) {
	u := fmt.Sprintf("%s/exam-types/%s/questions/version", c.BaseURL, url.PathEscape(examTypeID))
	var info VersionInfo
	if err := c.getJSON(ctx, u, &info); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bank api: %s returned %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bank api: decode %s: %w", u, err)
	}
	return nil
}
