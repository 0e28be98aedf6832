package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SearchTool exposes Provider.Search to the model.
type SearchTool struct {
	provider Provider
}

func NewSearchTool(p Provider) *SearchTool { return &SearchTool{provider: p} }

// Name returns the name of the tool
func (t *SearchTool) Name() string { return "search" }

// Description returns the description of the tool
func (t *SearchTool) Description() string {
	return "Searches the web for recent news and returns the top results with titles, links and snippets."
}

func (t *SearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"What to search for"}},"required":["query"]}`)
}

// Run runs the tool
func (t *SearchTool) Run(ctx context.Context, args string) (string, error) {
	var toolArgs struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return "", fmt.Errorf("invalid search arguments: %w", err)
	}
	query := strings.TrimSpace(toolArgs.Query)
	if query == "" {
		return "", errors.New("search query is empty")
	}
	return t.provider.Search(ctx, query)
}
