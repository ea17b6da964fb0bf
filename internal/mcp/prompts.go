package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("continue_song",
		mcp.WithPromptDescription("Write the next section of a song in the voice of its existing lyrics"),
		mcp.WithArgument("projectId",
			mcp.ArgumentDescription("Project to continue"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("section",
			mcp.ArgumentDescription("What to write next, e.g. verse, chorus, bridge (optional)"),
		),
	), s.handleContinueSongPrompt)
}

func (s *Server) handleContinueSongPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	projectID := req.Params.Arguments["projectId"]
	if projectID == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	section := req.Params.Arguments["section"]
	if section == "" {
		section = "section"
	}

	p, err := s.editor.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	lyrics := lyricsText(viewBlocks(p.Lyrics))
	if strings.TrimSpace(lyrics) == "" {
		lyrics = "(no lyrics yet)"
	}
	tags := strings.Join(append(append([]string{}, p.Genre...), p.Mood...), ", ")
	if tags == "" {
		tags = "none"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Continue %q", p.Title),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Continue the song "%s" (status: %s, tags: %s) with a new %s.

Current lyrics (audio takes appear as [audio id duration] markers):

%s

Songwriter notes:
%s

Follow these steps:

1. Read the lyrics above and match their meter, rhyme scheme and language
2. Write the new %s
3. Append it with edit_text_block on the last text block of project %s, keeping the existing content
4. Leave audio blocks where they are

Check the result with get_lyrics when you are done.`,
						p.Title, p.Status, tags, section, lyrics, p.Notes, section, p.ID),
				},
			},
		},
	}, nil
}
