package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"lyriclab/internal/domain"
	"lyriclab/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MediaChecker reports whether a media reference points at a stored file.
type MediaChecker interface {
	Exists(ref string) bool
}

// Server is the MCP server for LyricLab.
// It exposes tools, resources, and prompts so AI agents can read and edit
// song projects.
type Server struct {
	mcp *server.MCPServer

	projects *service.ProjectService
	editor   *service.EditorService
	media    MediaChecker
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Projects *service.ProjectService
	Editor   *service.EditorService
	Media    MediaChecker // optional; when nil audio refs are not checked
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	s := &Server{
		projects: deps.Projects,
		editor:   deps.Editor,
		media:    deps.Media,
	}

	s.mcp = server.NewMCPServer(
		"lyriclab-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerProjectTools()
	s.registerLyricsTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// settle writes the session of projectID to the store and drops it, so the
// next tool call reloads whatever another process saved in between.
func (s *Server) settle(ctx context.Context, projectID string) error {
	if err := s.editor.Close(ctx, projectID); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// requireProject reads projectId from the tool args and loads the project.
func (s *Server) requireProject(ctx context.Context, args map[string]any) (*domain.Project, error) {
	id := getString(args, "projectId", "")
	if id == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	return s.editor.Project(ctx, id)
}
