package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the interface for all tools
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the arguments object.
	Parameters() json.RawMessage
	Run(ctx context.Context, args string) (string, error)
}

// Searcher answers a free-text query with a textual digest of results.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Provider is the capability set offered to a generator: web search and the
// current time.
type Provider interface {
	Searcher
	Now(ctx context.Context) (time.Time, error)
}

var emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)
