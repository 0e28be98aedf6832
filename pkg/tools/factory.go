package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/comigor/herald-go/internal/config"
)

// NewSearcher builds the Searcher selected by cfg. The returned close function
// releases MCP connections and is never nil.
func NewSearcher(ctx context.Context, cfg config.SearchConfig, servers []config.MCPServerConfig) (Searcher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case "", config.SearchProviderNone:
		return NoSearch{}, noop, nil
	case config.SearchProviderHTTP:
		if cfg.URL == "" {
			return nil, noop, errors.New("search.url is required for the http provider")
		}
		return NewHTTPSearcher(cfg, &http.Client{}), noop, nil
	case config.SearchProviderMCP:
		clients := DialMCPServers(ctx, servers)
		s, err := NewMCPSearcher(ctx, cfg.MCPTool, clients)
		if err != nil {
			for _, c := range clients {
				closeQuietly(c)
			}
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported search provider %q", cfg.Provider)
	}
}
