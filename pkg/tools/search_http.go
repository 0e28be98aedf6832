package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/comigor/herald-go/internal/config"
	"github.com/comigor/herald-go/internal/logger"
)

const (
	defaultNumResults = 5
	defaultAuthHeader = "x-api-key"
)

var htmlTagPattern = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)

// HTTPSearcher queries a JSON search API (Exa-compatible request and response
// shape).
type HTTPSearcher struct {
	url        string
	apiKey     string
	authHeader string
	numResults int
	client     *http.Client
}

// NewHTTPSearcher creates a new HTTPSearcher
func NewHTTPSearcher(cfg config.SearchConfig, client *http.Client) *HTTPSearcher {
	if client == nil {
		client = &http.Client{}
	}
	n := cfg.NumResults
	if n <= 0 {
		n = defaultNumResults
	}
	header := strings.TrimSpace(cfg.AuthHeader)
	if header == "" {
		header = defaultAuthHeader
	}
	return &HTTPSearcher{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		authHeader: header,
		numResults: n,
		client:     client,
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Search posts the query and formats the results as a numbered list.
func (s *HTTPSearcher) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchRequest{Query: query, NumResults: s.numResults})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		if strings.EqualFold(s.authHeader, "bearer") {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
		} else {
			req.Header.Set(s.authHeader, s.apiKey)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	logger.L.Debug("search completed", "query", query, "results", len(decoded.Results))

	return formatResults(query, decoded.Results), nil
}

func formatResults(query string, results []searchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)
	for i, r := range results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Text
		}
		snippet = truncate(toMarkdown(snippet), 300)
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, strings.TrimSpace(r.Title), r.URL)
		if snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// toMarkdown converts HTML snippets to markdown; plain text passes through.
func toMarkdown(s string) string {
	if !htmlTagPattern.MatchString(s) {
		return strings.TrimSpace(s)
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		logger.L.Warn("failed to convert search snippet to markdown", "error", err)
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(md), " ")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
