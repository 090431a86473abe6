package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for ci-tracker.
type Server struct {
	mcpServer *server.MCPServer
	store     *SnapshotStore
}

// NewServer creates a server answering from store.
func NewServer(store *SnapshotStore, version string) *Server {
	s := server.NewMCPServer(
		"ci-tracker",
		version,
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		store:     store,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	listTool := mcp.NewTool("list_ranked_tests",
		mcp.WithDescription("List the tests that currently hurt CI the most, heaviest first, grouped into tiers: tier 1 failed in the last 10 commits, tier 2 failed earlier in the window, tier 3 is only flaky or slow. History has one character per commit, newest first: F failed, f flaky, . passed, _ did not run. Use get_test_details to drill into a test."),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max tests in tier 1 (default: %d); lower tiers scale down", DefaultTier1Limit)),
		),
		mcp.WithString("owner",
			mcp.Description("Only list tests owned by this team"),
		),
	)

	detailsTool := mcp.NewTool("get_test_details",
		mcp.WithDescription("Get the failing and flaky runs of one ranked test with links to the CI jobs, its duration percentiles and its per-commit history."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Test name exactly as listed by list_ranked_tests"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max runs to return, newest first (default: %d)", DefaultLinkLimit)),
		),
	)

	statsTool := mcp.NewTool("get_fleet_stats",
		mcp.WithDescription("Get the fleet-wide health numbers: master green rates, PR build time, tests below the pass rate threshold, per-owner pass rates and the weekly release blocker series."),
	)

	s.mcpServer.AddTool(listTool, s.handleListRankedTests)
	s.mcpServer.AddTool(detailsTool, s.handleGetTestDetails)
	s.mcpServer.AddTool(statsTool, s.handleGetFleetStats)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleListRankedTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.store.Get()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp := TierTests(snap, request.GetInt("limit", DefaultTier1Limit), request.GetString("owner", ""))
	return jsonResult(resp)
}

func (s *Server) handleGetTestDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	snap, err := s.store.Get()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	detail, found := DetailOf(snap, name, request.GetInt("limit", DefaultLinkLimit))
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("test not ranked in snapshot %s: %s", snap.ID, name)), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleGetFleetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.store.Get()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(Fleet(snap))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
