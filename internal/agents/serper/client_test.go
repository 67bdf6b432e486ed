package serper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
)

func TestSearchParsesOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "key" {
			t.Errorf("missing api key header")
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Query != "Lisbon restaurants" || req.Num != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"organic":[{"title":"A","link":"https://a","snippet":"sa"},{"title":"B","link":"https://b","snippet":"sb"},{"title":"C","link":"https://c"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient("key", srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	results, err := client.Search(context.Background(), "Lisbon restaurants", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 || results[1].Link != "https://b" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestSearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient("key", srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Search(context.Background(), "x", 1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("", ""); !errors.Is(err, agents.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
