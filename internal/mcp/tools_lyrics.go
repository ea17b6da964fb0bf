package mcpserver

import (
	"context"
	"fmt"

	"lyriclab/internal/domain"
	"lyriclab/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerLyricsTools() {
	// ── get_lyrics ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_lyrics",
		mcp.WithDescription("Read the lyrics of a project as an ordered list of text and audio blocks, plus a plain-text rendering"),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
	), s.handleGetLyrics)

	// ── edit_text_block ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("edit_text_block",
		mcp.WithDescription("Replace the content of a text block. Audio blocks cannot be edited."),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Text block ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("New content, may span several lines"), mcp.Required()),
	), s.handleEditTextBlock)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("Delete a block. Deleting the last block leaves a single empty text block."),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)

	// ── backspace_block ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("backspace_block",
		mcp.WithDescription("Press backspace at the start of a text block: removes a preceding audio block, or merges into the preceding text block"),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Text block ID"), mcp.Required()),
	), s.handleBackspaceBlock)

	// ── insert_audio_block ─────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_audio_block",
		mcp.WithDescription("Insert an existing recording into the lyrics. With a cursor inside a text block the block is split around the audio; without one the audio is appended."),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("mediaRef", mcp.Description("Stored media reference"), mcp.Required()),
		mcp.WithString("duration", mcp.Description("Display duration as M:SS"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Cursor block ID (optional)")),
		mcp.WithNumber("offset", mcp.Description("Cursor character offset inside blockId (optional, default 0)")),
	), s.handleInsertAudioBlock)

	// ── undo / redo ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last lyrics edit of a project"),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the most recently undone lyrics edit of a project"),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
	), s.handleRedo)

	// ── lyric_stats ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("lyric_stats",
		mcp.WithDescription("Character, line and block counts of a project's lyrics"),
		mcp.WithString("projectId", mcp.Description("Project ID"), mcp.Required()),
	), s.handleLyricStats)
}

// blockView is the agent-facing projection of a block.
type blockView struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	MediaRef string `json:"mediaRef,omitempty"`
	Duration string `json:"duration,omitempty"`
}

func viewBlocks(d domain.Document) []blockView {
	out := make([]blockView, 0, d.Len())
	for i, b := range d.Blocks() {
		v := blockView{Index: i, ID: b.BlockID(), Type: string(b.Type())}
		switch blk := b.(type) {
		case domain.TextBlock:
			v.Content = blk.Content
		case domain.AudioBlock:
			v.MediaRef = blk.MediaRef
			v.Duration = blk.Duration
		}
		out = append(out, v)
	}
	return out
}

type lyricsView struct {
	ProjectID string              `json:"projectId"`
	Title     string              `json:"title"`
	Blocks    []blockView         `json:"blocks"`
	Text      string              `json:"text"`
	Focus     *domain.FocusTarget `json:"focus,omitempty"`
	Stats     service.LyricStats  `json:"stats"`
	Changed   bool                `json:"changed"`
}

func (s *Server) lyricsOf(p *domain.Project, focus *domain.FocusTarget) lyricsView {
	blocks := viewBlocks(p.Lyrics)
	return lyricsView{
		ProjectID: p.ID,
		Title:     p.Title,
		Blocks:    blocks,
		Text:      lyricsText(blocks),
		Focus:     focus,
		Stats:     service.StatsOf(p),
	}
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleGetLyrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.requireProject(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return jsonResult(s.lyricsOf(p, nil))
}

func (s *Server) handleEditTextBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	p, blockID, err := s.requireBlock(ctx, args)
	if err != nil {
		return nil, err
	}
	if b, ok := p.Lyrics.Block(blockID); ok {
		if _, text := b.(domain.TextBlock); !text {
			return nil, fmt.Errorf("block %s is not a text block", blockID)
		}
	}
	if !hasArg(args, "content") {
		return nil, fmt.Errorf("content is required")
	}
	return s.finishEdit(ctx, p.ID, func() (*service.EditResult, error) {
		return s.editor.EditText(ctx, p.ID, blockID, getString(args, "content", ""))
	})
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, blockID, err := s.requireBlock(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return s.finishEdit(ctx, p.ID, func() (*service.EditResult, error) {
		return s.editor.DeleteBlock(ctx, p.ID, blockID)
	})
}

func (s *Server) handleBackspaceBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, blockID, err := s.requireBlock(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return s.finishEdit(ctx, p.ID, func() (*service.EditResult, error) {
		return s.editor.Backspace(ctx, p.ID, blockID, 0)
	})
}

func (s *Server) handleInsertAudioBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	p, err := s.requireProject(ctx, args)
	if err != nil {
		return nil, err
	}
	ref := getString(args, "mediaRef", "")
	if ref == "" {
		return nil, fmt.Errorf("mediaRef is required")
	}
	if s.media != nil && !s.media.Exists(ref) {
		return nil, fmt.Errorf("media %s not found", ref)
	}
	duration := getString(args, "duration", "")
	if duration == "" {
		duration = domain.FormatDuration(0)
	}

	var cursor *domain.Cursor
	if blockID := getString(args, "blockId", ""); blockID != "" {
		cursor = &domain.Cursor{BlockID: blockID, Offset: getInt(args, "offset", 0)}
	}
	return s.finishEdit(ctx, p.ID, func() (*service.EditResult, error) {
		return s.editor.InsertAudio(ctx, p.ID, domain.NewAudioBlock(ref, duration), cursor)
	})
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.travel(ctx, req, s.editor.Undo)
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.travel(ctx, req, s.editor.Redo)
}

func (s *Server) handleLyricStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.requireProject(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return jsonResult(service.StatsOf(p))
}

// ── Edit plumbing ──────────────────────────────────────────

// requireBlock loads the project and reads blockId. An id naming no block
// is passed through; the edit is then a no-op reported as changed=false.
func (s *Server) requireBlock(ctx context.Context, args map[string]any) (*domain.Project, string, error) {
	p, err := s.requireProject(ctx, args)
	if err != nil {
		return nil, "", err
	}
	blockID := getString(args, "blockId", "")
	if blockID == "" {
		return nil, "", fmt.Errorf("blockId is required")
	}
	return p, blockID, nil
}

// finishEdit runs an editor intent, saves the project and reports the new lyrics.
func (s *Server) finishEdit(ctx context.Context, projectID string, edit func() (*service.EditResult, error)) (*mcp.CallToolResult, error) {
	res, err := edit()
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, projectID); err != nil {
		return nil, err
	}
	p, err := s.editor.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	v := s.lyricsOf(p, res.Focus)
	v.Changed = res.Changed
	return jsonResult(v)
}

func (s *Server) travel(ctx context.Context, req mcp.CallToolRequest, step func(context.Context, string) (*service.EditorState, error)) (*mcp.CallToolResult, error) {
	id := getString(req.GetArguments(), "projectId", "")
	if id == "" {
		return nil, fmt.Errorf("projectId is required")
	}
	st, err := step(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, id); err != nil {
		return nil, err
	}
	return jsonResult(s.lyricsOf(st.Project, nil))
}
