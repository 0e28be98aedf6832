package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/herald-go/internal/config"
	"github.com/comigor/herald-go/internal/logger"
)

// MCPClient defines the methods we expect from an MCP client.
type MCPClient interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// DialMCPServers connects to and initializes every configured server.
// Servers that fail are logged and skipped.
func DialMCPServers(ctx context.Context, servers []config.MCPServerConfig) []MCPClient {
	clients := make([]MCPClient, 0, len(servers))

	for _, serverCfg := range servers {
		var mcpC *client.Client
		var err error

		switch serverCfg.Type {
		case config.ClientTypeSSE:
			var sseOpts []transport.ClientOption
			if len(serverCfg.Headers) > 0 {
				sseOpts = append(sseOpts, transport.WithHeaders(serverCfg.Headers))
			}
			mcpC, err = client.NewSSEMCPClient(serverCfg.URL, sseOpts...)
		case config.ClientTypeStreamableHTTP:
			var httpOpts []transport.StreamableHTTPCOption
			if len(serverCfg.Headers) > 0 {
				httpOpts = append(httpOpts, transport.WithHTTPHeaders(serverCfg.Headers))
			}
			mcpC, err = client.NewStreamableHttpClient(serverCfg.URL, httpOpts...)
		case config.ClientTypeStdio:
			var env []string
			for k, v := range serverCfg.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			mcpC, err = client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
		default:
			logger.L.Warn("Unsupported MCP server type. Skipping. Supported types are 'sse', 'streamable_http' or 'stdio'.", "type", serverCfg.Type, "name", serverCfg.Name)
			continue
		}
		if err != nil {
			logger.L.Error("Failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		// stdio clients are started by their constructor
		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				logger.L.Error("Failed to start MCP client transport", "name", serverCfg.Name, "error", err)
				closeQuietly(mcpC)
				continue
			}
		}

		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
				ClientInfo:      mcp.Implementation{Name: "herald", Version: "1.0.0"},
				Capabilities:    mcp.ClientCapabilities{},
			},
		}
		if _, err := mcpC.Initialize(ctx, initReq); err != nil {
			logger.L.Error("Failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			closeQuietly(mcpC)
			continue
		}
		logger.L.Info("MCP server initialized", "name", serverCfg.Name)
		clients = append(clients, mcpC)
	}

	if len(clients) == 0 && len(servers) > 0 {
		logger.L.Warn("No MCP clients were successfully initialized despite servers configured.", "length", len(servers))
	}
	return clients
}

func closeQuietly(c MCPClient) {
	if err := c.Close(); err != nil {
		logger.L.Warn("MCP client close error", "error", err)
	}
}

// MCPSearcher runs searches through a tool exposed by an MCP server.
type MCPSearcher struct {
	tool    string
	clients []MCPClient
	owner   MCPClient
}

// NewMCPSearcher picks the first client that lists the named tool.
func NewMCPSearcher(ctx context.Context, tool string, clients []MCPClient) (*MCPSearcher, error) {
	for _, c := range clients {
		list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.L.Warn("Failed to list tools for MCP client", "error", err)
			continue
		}
		if list == nil {
			continue
		}
		for _, t := range list.Tools {
			if t.Name == tool {
				logger.L.Info("Using MCP tool for search", "tool", tool)
				return &MCPSearcher{tool: tool, clients: clients, owner: c}, nil
			}
		}
	}
	return nil, fmt.Errorf("no MCP server offers tool %q", tool)
}

// Search calls the MCP tool with {"query": query} and returns its first text
// content.
func (s *MCPSearcher) Search(ctx context.Context, query string) (string, error) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      s.tool,
			Arguments: map[string]any{"query": query},
		},
	}
	res, err := s.owner.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp tool %s: %w", s.tool, err)
	}
	if res == nil {
		return "", fmt.Errorf("mcp tool %s returned no result", s.tool)
	}

	text := firstText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool execution resulted in an error without specific text"
		}
		return "", fmt.Errorf("mcp tool %s: %s", s.tool, text)
	}
	if text == "" {
		b, err := json.Marshal(res)
		if err != nil {
			return "", errors.New("tool executed successfully, but result could not be formatted")
		}
		text = string(b)
	}
	return text, nil
}

// Close closes every MCP client.
func (s *MCPSearcher) Close() error {
	var errs []error
	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if t, ok := item.(mcp.TextContent); ok {
			return t.Text
		}
	}
	return ""
}
