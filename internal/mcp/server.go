// Package mcp exposes watch management as Model Context Protocol tools over
// stdio, backed by a running pulsewatch instance's HTTP API.
package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server bridges MCP tool calls to the pulsewatch HTTP API.
type Server struct {
	baseURL string
	httpc   *http.Client
	mcp     *server.MCPServer
}

// New creates an MCP server talking to the pulsewatch instance at baseURL
// (e.g. "http://127.0.0.1:8080").
func New(baseURL, version string) *Server {
	s := &Server{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}

	s.mcp = server.NewMCPServer("pulsewatch", version)

	s.mcp.AddTool(mcp.NewTool("start_watch",
		mcp.WithDescription("Open (or extend) an observation watch for a VK wall post. "+
			"Returns the watch id and window bounds."),
		mcp.WithString("link",
			mcp.Required(),
			mcp.Description("Full post link, e.g. https://vk.com/wall-1_45616"),
		),
		mcp.WithBoolean("prolong",
			mcp.Description("Extend the window end when a watch is already open"),
		),
	), s.handleStartWatch)

	s.mcp.AddTool(mcp.NewTool("get_watch",
		mcp.WithDescription("Read a watch and its sampled engagement counters, "+
			"ordered by capture time."),
		mcp.WithString("watch_id",
			mcp.Required(),
			mcp.Description("Numeric watch id returned by start_watch"),
		),
	), s.handleGetWatch)

	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleStartWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	link, err := req.RequireString("link")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prolong := req.GetBool("prolong", false)

	body := fmt.Sprintf(`{"link":%q,"prolong":%t}`, link, prolong)
	out, err := s.call(ctx, http.MethodPost, "/api/watches", strings.NewReader(body))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleGetWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("watch_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.call(ctx, http.MethodGet, "/api/watches/"+id, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

// call issues one HTTP request to the pulsewatch API and returns the body.
func (s *Server) call(ctx context.Context, method, path string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("mcp: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("mcp: call %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("mcp: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("mcp: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}
