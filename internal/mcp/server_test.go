package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"lyriclab/internal/domain"
	"lyriclab/internal/service"
	"lyriclab/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeMedia map[string]bool

func (m fakeMedia) Exists(ref string) bool { return m[ref] }

type testServer struct {
	*Server
	store *storage.ProjectStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "lyriclab.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewProjectStore(db)
	history := storage.NewHistoryStore(db, 40)
	emitter := service.NoopEmitter{}
	editor := service.NewEditorService(store, history, emitter)
	projects := service.NewProjectService(store, history, editor, nil, emitter)

	s := New(context.Background(), Deps{
		Projects: projects,
		Editor:   editor,
		Media:    fakeMedia{"take.wav": true},
	})
	return &testServer{Server: s, store: store}
}

func (ts *testServer) seed(t *testing.T, blocks ...domain.Block) *domain.Project {
	t.Helper()
	p := domain.NewProject("Test Song")
	p.Lyrics = domain.NewDocument(blocks...)
	if err := ts.store.Save(context.Background(), p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func (ts *testServer) stored(t *testing.T, id string) *domain.Project {
	t.Helper()
	p, err := ts.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func decodeLyrics(t *testing.T, res *mcp.CallToolResult) lyricsView {
	t.Helper()
	var v lyricsView
	if err := json.Unmarshal([]byte(resultText(t, res)), &v); err != nil {
		t.Fatalf("decode lyrics: %v", err)
	}
	return v
}

func TestExtractProjectIDFromURI(t *testing.T) {
	cases := map[string]string{
		"lyriclab://project/abc-123/lyrics": "abc-123",
		"lyriclab://project//lyrics":        "",
		"lyriclab://project/a/b/lyrics":     "",
		"lyriclab://projects":               "",
		"lyriclab://project/abc":            "",
	}
	for uri, want := range cases {
		if got := extractProjectIDFromURI(uri); got != want {
			t.Errorf("extractProjectIDFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestLyricsText(t *testing.T) {
	doc := domain.NewDocument(
		domain.TextBlock{ID: "t1", Content: "first\nsecond"},
		domain.AudioBlock{ID: "a1", MediaRef: "x.wav", Duration: "0:07"},
		domain.TextBlock{ID: "t2", Content: "third"},
	)
	want := "first\nsecond\n[audio a1 0:07]\nthird"
	if got := lyricsText(viewBlocks(doc)); got != want {
		t.Errorf("lyricsText = %q, want %q", got, want)
	}
}

func TestEditTools_UnknownBlockIsNoChange(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t, domain.TextBlock{ID: "t1", Content: "keep"})

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"edit_text_block": ts.handleEditTextBlock,
		"delete_block":    ts.handleDeleteBlock,
		"backspace_block": ts.handleBackspaceBlock,
	}
	for name, h := range handlers {
		res, err := h(ctx, callTool(map[string]any{
			"projectId": p.ID, "blockId": "missing", "content": "x",
		}))
		if err != nil {
			t.Fatalf("%s: unknown block should not fail: %v", name, err)
		}
		v := decodeLyrics(t, res)
		if v.Changed || len(v.Blocks) != 1 || v.Blocks[0].Content != "keep" {
			t.Errorf("%s: expected unchanged lyrics, got %+v", name, v)
		}
	}
	if got := ts.stored(t, p.ID).Lyrics.At(0).(domain.TextBlock).Content; got != "keep" {
		t.Errorf("stored lyrics changed to %q", got)
	}
}

func TestEditTextBlock_SavesImmediately(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t, domain.TextBlock{ID: "t1", Content: "old"})

	res, err := ts.handleEditTextBlock(ctx, callTool(map[string]any{
		"projectId": p.ID, "blockId": "t1", "content": "new line",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if v := decodeLyrics(t, res); v.Stats.Characters != 8 || !v.Changed {
		t.Errorf("expected a change to 8 characters, got %+v", v)
	}
	if got := ts.stored(t, p.ID).Lyrics.At(0).(domain.TextBlock).Content; got != "new line" {
		t.Errorf("edit should be saved, stored content is %q", got)
	}
	if open := ts.editor.OpenProjects(); len(open) != 0 {
		t.Errorf("no session should stay open, got %v", open)
	}
}

func TestEditTextBlock_RejectsAudioBlocks(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t, domain.AudioBlock{ID: "a1", MediaRef: "take.wav", Duration: "0:01"})

	if _, err := ts.handleEditTextBlock(ctx, callTool(map[string]any{
		"projectId": p.ID, "blockId": "a1", "content": "x",
	})); err == nil {
		t.Error("expected an error for an audio block")
	}
	if _, err := ts.handleEditTextBlock(ctx, callTool(map[string]any{"blockId": "a1"})); err == nil {
		t.Error("expected an error without projectId")
	}
}

func TestInsertAudioBlock_SplitsAtCursor(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t, domain.TextBlock{ID: "t1", Content: "hello\nworld"})

	res, err := ts.handleInsertAudioBlock(ctx, callTool(map[string]any{
		"projectId": p.ID, "mediaRef": "take.wav", "duration": "0:03",
		"blockId": "t1", "offset": float64(2),
	}))
	if err != nil {
		t.Fatal(err)
	}
	v := decodeLyrics(t, res)
	if len(v.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %+v", v.Blocks)
	}
	if v.Blocks[0].Content != "hello" || v.Blocks[1].Type != "audio" || v.Blocks[2].Content != "\nworld" {
		t.Errorf("unexpected split %+v", v.Blocks)
	}
	if v.Focus == nil || v.Focus.BlockID != v.Blocks[2].ID || v.Focus.Offset != 0 {
		t.Errorf("focus should move to the start of the tail block, got %+v", v.Focus)
	}
	if ts.stored(t, p.ID).Lyrics.Len() != 3 {
		t.Error("insert should be saved")
	}

	if _, err := ts.handleInsertAudioBlock(ctx, callTool(map[string]any{
		"projectId": p.ID, "mediaRef": "ghost.wav", "duration": "0:01",
	})); err == nil {
		t.Error("expected an error for unknown media")
	}
}

func TestBackspaceAfterAudio_ThenUndoRedo(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t,
		domain.TextBlock{ID: "t1", Content: "ab"},
		domain.AudioBlock{ID: "a1", MediaRef: "take.wav", Duration: "0:02"},
		domain.TextBlock{ID: "t2", Content: "cd"},
	)
	args := map[string]any{"projectId": p.ID, "blockId": "t2"}

	res, err := ts.handleBackspaceBlock(ctx, callTool(args))
	if err != nil {
		t.Fatal(err)
	}
	if v := decodeLyrics(t, res); len(v.Blocks) != 2 || v.Blocks[1].Content != "cd" {
		t.Fatalf("first backspace should only drop the audio, got %+v", v.Blocks)
	}

	res, err = ts.handleBackspaceBlock(ctx, callTool(args))
	if err != nil {
		t.Fatal(err)
	}
	if v := decodeLyrics(t, res); len(v.Blocks) != 1 || v.Blocks[0].Content != "abcd" {
		t.Fatalf("second backspace should merge, got %+v", v.Blocks)
	}

	if _, err := ts.handleUndo(ctx, callTool(map[string]any{"projectId": p.ID})); err != nil {
		t.Fatal(err)
	}
	if n := ts.stored(t, p.ID).Lyrics.Len(); n != 2 {
		t.Errorf("undo should restore two blocks, stored %d", n)
	}
	if _, err := ts.handleRedo(ctx, callTool(map[string]any{"projectId": p.ID})); err != nil {
		t.Fatal(err)
	}
	if n := ts.stored(t, p.ID).Lyrics.Len(); n != 1 {
		t.Errorf("redo should merge again, stored %d", n)
	}
}

func TestDeleteLastBlock_LeavesEmptyText(t *testing.T) {
	ts := newTestServer(t)
	p := ts.seed(t, domain.TextBlock{ID: "t1", Content: "only"})

	res, err := ts.handleDeleteBlock(context.Background(), callTool(map[string]any{"projectId": p.ID, "blockId": "t1"}))
	if err != nil {
		t.Fatal(err)
	}
	v := decodeLyrics(t, res)
	if len(v.Blocks) != 1 || v.Blocks[0].Type != "text" || v.Blocks[0].Content != "" {
		t.Errorf("expected a single empty text block, got %+v", v.Blocks)
	}
}

func TestMetadataTools(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t, domain.NewTextBlock(""))

	if _, err := ts.handleSetStatus(ctx, callTool(map[string]any{"projectId": p.ID, "status": "finalizado"})); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.handleToggleTag(ctx, callTool(map[string]any{"projectId": p.ID, "kind": "Mood", "tag": domain.Moods[0]})); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.handleToggleTag(ctx, callTool(map[string]any{"projectId": p.ID, "kind": "genre", "tag": "Nope"})); err == nil {
		t.Error("expected an error for a tag outside the catalog")
	}
	if _, err := ts.handleSetNotes(ctx, callTool(map[string]any{"projectId": p.ID, "notes": "capo 2"})); err != nil {
		t.Fatal(err)
	}

	got := ts.stored(t, p.ID)
	if got.Status != domain.StatusFinished {
		t.Errorf("expected status %q, got %q", domain.StatusFinished, got.Status)
	}
	if len(got.Mood) != 1 || got.Mood[0] != domain.Moods[0] {
		t.Errorf("expected mood tag, got %v", got.Mood)
	}
	if got.Notes != "capo 2" {
		t.Errorf("expected notes to be saved, got %q", got.Notes)
	}
}

func TestListAndCreateProjects(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if _, err := ts.handleCreateProject(ctx, callTool(map[string]any{"title": "Balada"})); err != nil {
		t.Fatal(err)
	}
	ts.seed(t, domain.NewTextBlock("x"))

	res, err := ts.handleListProjects(ctx, callTool(map[string]any{"status": "en progreso"}))
	if err != nil {
		t.Fatal(err)
	}
	var list []domain.ProjectSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected both new projects to be in progress, got %d", len(list))
	}
}

func TestLyricsResourceAndPrompt(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	p := ts.seed(t, domain.TextBlock{ID: "t1", Content: "la luna"})

	var rreq mcp.ReadResourceRequest
	rreq.Params.URI = "lyriclab://project/" + p.ID + "/lyrics"
	contents, err := ts.handleLyricsResource(ctx, rreq)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "la luna") {
		t.Errorf("resource should carry the lyrics, got %s", text)
	}

	var preq mcp.GetPromptRequest
	preq.Params.Arguments = map[string]string{"projectId": p.ID, "section": "chorus"}
	prompt, err := ts.handleContinueSongPrompt(ctx, preq)
	if err != nil {
		t.Fatal(err)
	}
	msg := prompt.Messages[0].Content.(mcp.TextContent).Text
	if !strings.Contains(msg, "la luna") || !strings.Contains(msg, "chorus") {
		t.Errorf("prompt should embed lyrics and section, got %s", msg)
	}
}
