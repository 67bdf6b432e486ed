// Package serper queries the Serper Google Search API.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
)

const defaultEndpoint = "https://google.serper.dev/search"

// Client implements agents.Searcher.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewClient constructs a client. endpoint may be empty.
func NewClient(apiKey, endpoint string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: SERPER_API_KEY is required", agents.ErrNotConfigured)
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]agents.SearchResult, error) {
	payload, err := json.Marshal(searchRequest{Query: query, Num: limit})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("serper status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("serper response parse: %w", err)
	}
	out := make([]agents.SearchResult, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, agents.SearchResult{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

var _ agents.Searcher = (*Client)(nil)
