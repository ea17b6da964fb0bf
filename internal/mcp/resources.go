package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	projectsURI      = "lyriclab://projects"
	projectURIPrefix = "lyriclab://project/"
	lyricsURISuffix  = "/lyrics"
)

func (s *Server) registerResources() {
	// ── lyriclab://projects ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		projectsURI,
		"All Song Projects",
		mcp.WithMIMEType("application/json"),
	), s.handleProjectsResource)

	// ── lyriclab://project/{projectId}/lyrics ──────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			projectURIPrefix+"{projectId}"+lyricsURISuffix,
			"Lyrics of a Project",
		),
		s.handleLyricsResource,
	)
}

func (s *Server) handleProjectsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := s.projects.List(ctx)
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(list, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      projectsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleLyricsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	projectID := extractProjectIDFromURI(uri)
	if projectID == "" {
		return nil, fmt.Errorf("could not extract projectId from URI: %s", uri)
	}

	p, err := s.editor.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(s.lyricsOf(p, nil), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// extractProjectIDFromURI extracts the id from "lyriclab://project/{id}/lyrics".
func extractProjectIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, projectURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, lyricsURISuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
