package bank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientFetchQuestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		if r.URL.Path != "/exam-types/aws-ccp/questions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("since") != "5" || r.URL.Query().Get("limit") != "100" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(Page{
			Questions:     []Question{{ID: "q1", Version: 6}},
			LatestVersion: 6,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	page, err := c.FetchQuestions(context.Background(), "aws-ccp", 5, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Questions) != 1 || page.Questions[0].ID != "q1" || page.LatestVersion != 6 {
		t.Fatalf("page = %+v", page)
	}
}

func TestClientFetchVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exam-types/aws-ccp/questions/version" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(VersionInfo{LatestVersion: 9, QuestionCount: 120})
	}))
	defer srv.Close()

	info, err := NewClient(srv.URL, "").FetchVersion(context.Background(), "aws-ccp")
	if err != nil {
		t.Fatalf("fetch version: %v", err)
	}
	if info.LatestVersion != 9 || info.QuestionCount != 120 {
		t.Fatalf("info = %+v", info)
	}
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bank offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").FetchQuestions(context.Background(), "aws-ccp", 0, 10)
	if err == nil {
		t.Fatal("no error for a 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "bank offline") {
		t.Fatalf("error lacks status and body snippet: %v", err)
	}
}
