// Package mcpserver exposes the operator client to MCP agents over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/DaewiLF/MinerIA/internal/api"
	"github.com/DaewiLF/MinerIA/internal/guard"
	"github.com/DaewiLF/MinerIA/internal/report"
	"github.com/DaewiLF/MinerIA/internal/session"
)

// Backend is the read side of the analysis API.
type Backend interface {
	History(ctx context.Context) ([]api.AnalysisSummary, error)
	Analysis(ctx context.Context, id string) (api.AnalysisDetail, error)
}

// Reports saves analysis reports locally.
type Reports interface {
	Download(ctx context.Context, id string) (report.Report, error)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Session session.Reader
	Backend Backend
	Reports Reports
	Version string
}

// New creates an MCP server with all MinerIA tools and resources registered.
func New(deps Deps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"mineria",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("MinerIA: browse mining site analyses and save their PDF reports. Log in with the mineria CLI first."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("session_status",
			mcp.WithDescription("Report whether an operator is logged in and who it is."),
		),
		toolSessionStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("analysis_history",
			mcp.WithDescription("List past analyses, newest first as returned by the backend."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of rows (default all)")),
		),
		toolHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("analysis_detail",
			mcp.WithDescription("Fetch the full record of one analysis, including the AI summary and recommendations."),
			mcp.WithString("id", mcp.Description("Analysis id"), mcp.Required()),
		),
		toolDetail(deps),
	)

	s.AddTool(
		mcp.NewTool("download_report",
			mcp.WithDescription("Download the PDF report of an analysis and return the saved path."),
			mcp.WithString("id", mcp.Description("Analysis id"), mcp.Required()),
		),
		toolDownloadReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"session://identity",
			"Operator Identity",
			mcp.WithResourceDescription("Identity of the logged-in operator as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		resourceIdentity(deps),
	)

	return s
}

type status struct {
	Authenticated bool              `json:"authenticated"`
	User          *session.Identity `json:"user,omitempty"`
}

func currentStatus(sess session.Reader) status {
	cur, ok := sess.Current()
	if !ok {
		return status{}
	}
	id := cur.Identity
	return status{Authenticated: true, User: &id}
}

// permitted runs the route guard for a destination.
func permitted(deps Deps, path string) bool {
	return guard.New(deps.Session).Resolve(path).Action == guard.Permit
}

func toolSessionStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(currentStatus(deps.Session))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func toolHistory(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !permitted(deps, guard.PathHistory) {
			return mcpError(notLoggedIn), nil
		}

		rows, err := deps.Backend.History(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("history failed: %v", err)), nil
		}
		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(rows) {
			rows = rows[:limit]
		}

		b, err := json.Marshal(rows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func toolDetail(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || id == "" {
			return mcpError("id is required"), nil
		}
		if !permitted(deps, guard.AnalysisPath(id)) {
			return mcpError(notLoggedIn), nil
		}

		d, err := deps.Backend.Analysis(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("analysis %s: %v", id, err)), nil
		}

		b, err := json.Marshal(d)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal analysis: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func toolDownloadReport(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || id == "" {
			return mcpError("id is required"), nil
		}
		if !permitted(deps, guard.AnalysisPath(id)) {
			return mcpError(notLoggedIn), nil
		}

		rep, err := deps.Reports.Download(ctx, id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Saved %s (%d bytes)", rep.Path, rep.Size)), nil
	}
}

func resourceIdentity(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(currentStatus(deps.Session))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal identity: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

const notLoggedIn = "not logged in: run `mineria login` first"

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
