package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	dossier "github.com/kadirpekel/dossier"
	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
)

// MCPAdapter exposes an MCP server's search tool as a provider. The
// server runs as a stdio subprocess; the tool is expected to accept
// {query, max_results} and return a JSON array of results in its text
// content.
type MCPAdapter struct {
	id  string
	cfg *config.ProviderConfig
	now func() time.Time

	mu        sync.Mutex
	client    *client.Client
	connected bool
}

// mcpResult is the result shape the search tool returns.
type mcpResult struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Snippet     string   `json:"snippet"`
	PublishDate string   `json:"publish_date"`
	Authors     []string `json:"authors"`
	Score       *float64 `json:"score"`
}

// NewMCPAdapter creates the adapter. The subprocess is started lazily
// on first search.
func NewMCPAdapter(id string, cfg *config.ProviderConfig) (*MCPAdapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp provider requires a command")
	}
	return &MCPAdapter{id: id, cfg: cfg, now: time.Now}, nil
}

// ID returns the registered provider id.
func (a *MCPAdapter) ID() string { return a.id }

// Category returns the configured category.
func (a *MCPAdapter) Category() document.SourceType {
	return document.SourceType(a.cfg.Category)
}

func (a *MCPAdapter) connect(ctx context.Context) (*client.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return a.client, nil
	}

	env := make([]string, 0, len(a.cfg.Env))
	for k, v := range a.cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(a.cfg.Command, env, a.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "dossier",
		Version: dossier.Version,
	}
	initReq.Params.ProtocolVersion = "2024-11-05"

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	a.client = mcpClient
	a.connected = true
	return mcpClient, nil
}

// Search calls the configured MCP search tool.
func (a *MCPAdapter) Search(ctx context.Context, query string, opts SearchOptions) ([]document.RawResult, error) {
	mcpClient, err := a.connect(ctx)
	if err != nil {
		return nil, providerErr(a.id, err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = a.cfg.Tool
	req.Params.Arguments = map[string]any{
		"query":       query,
		"max_results": opts.MaxResults,
	}

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, providerErr(a.id, fmt.Errorf("tool call failed: %w", err))
	}
	if resp.IsError {
		return nil, providerErr(a.id, fmt.Errorf("tool reported an error"))
	}

	var parsed []mcpResult
	for _, content := range resp.Content {
		textContent, ok := content.(mcp.TextContent)
		if !ok {
			continue
		}
		if err := decodeMCPResults(textContent.Text, &parsed); err != nil {
			return nil, providerErr(a.id, err)
		}
		break
	}

	results := make([]document.RawResult, 0, len(parsed))
	for _, r := range parsed {
		results = append(results, document.RawResult{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Snippet:     r.Snippet,
			PublishDate: r.PublishDate,
			Authors:     r.Authors,
			Score:       r.Score,
		})
	}
	return emulateFreshness(results, opts, a.now().UTC()), nil
}

// decodeMCPResults accepts either a bare JSON array or an object with
// a "results" key, the two shapes search servers return in practice.
func decodeMCPResults(text string, out *[]mcpResult) error {
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	var wrapped struct {
		Results []mcpResult `json:"results"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return fmt.Errorf("failed to decode tool results: %w", err)
	}
	*out = wrapped.Results
	return nil
}

// Close stops the MCP subprocess.
func (a *MCPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		err := a.client.Close()
		a.client = nil
		a.connected = false
		return err
	}
	return nil
}
