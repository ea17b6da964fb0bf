package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"lyriclab/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerProjectTools() {
	// ── list_projects ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List all song projects, most recently edited first"),
		mcp.WithString("status", mcp.Description("Filter by status: Idea, En Progreso, Finalizado (optional)")),
	), s.handleListProjects)

	// ── create_project ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_project",
		mcp.WithDescription("Create a new song project with a single empty text block"),
		mcp.WithString("title", mcp.Description("Song title (optional, defaults to an untitled song)")),
	), s.handleCreateProject)

	// ── set_status ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_status",
		mcp.WithDescription("Set the status of a project. Matching ignores case."),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Idea, En Progreso or Finalizado"), mcp.Required()),
	), s.handleSetStatus)

	// ── toggle_tag ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("toggle_tag",
		mcp.WithDescription("Add or remove a genre or mood tag. Only tags from the catalog are accepted."),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("kind", mcp.Description("genre or mood"), mcp.Required()),
		mcp.WithString("tag", mcp.Description("Tag name, as listed in the catalog"), mcp.Required()),
	), s.handleToggleTag)

	// ── set_notes ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_notes",
		mcp.WithDescription("Replace the free-form notes of a project"),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("notes", mcp.Description("New notes"), mcp.Required()),
	), s.handleSetNotes)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if status := getString(req.GetArguments(), "status", ""); status != "" {
		filtered := list[:0]
		for _, p := range list {
			if strings.EqualFold(string(p.Status), status) {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}
	return jsonResult(list)
}

func (s *Server) handleCreateProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.projects.Create(ctx, getString(req.GetArguments(), "title", ""))
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return jsonResult(p.Summary())
}

func (s *Server) handleSetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := getString(args, "projectId", "")
	if id == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	p, err := s.projects.SetStatus(ctx, id, getString(args, "status", ""))
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if err := s.settle(ctx, id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Project %s is now %q", p.ID, p.Status)), nil
}

func (s *Server) handleToggleTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := getString(args, "projectId", "")
	if id == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	kind := service.TagKind(strings.ToLower(getString(args, "kind", "")))
	p, err := s.projects.ToggleTag(ctx, id, kind, getString(args, "tag", ""))
	if err != nil {
		return nil, fmt.Errorf("toggle tag: %w", err)
	}
	if err := s.settle(ctx, id); err != nil {
		return nil, err
	}
	return jsonResult(map[string][]string{"genre": p.Genre, "mood": p.Mood})
}

func (s *Server) handleSetNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := getString(args, "projectId", "")
	if id == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	if !hasArg(args, "notes") {
		return nil, fmt.Errorf("notes is required")
	}
	if _, err := s.projects.SetNotes(ctx, id, getString(args, "notes", "")); err != nil {
		return nil, fmt.Errorf("set notes: %w", err)
	}
	if err := s.settle(ctx, id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Notes of %s updated", id)), nil
}
