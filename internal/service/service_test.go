package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lyriclab/internal/domain"
	"lyriclab/internal/service"
	"lyriclab/internal/storage"
)

// testEnv wires the services over a temporary sqlite database and media dir.
type testEnv struct {
	store    *storage.ProjectStore
	history  *storage.HistoryStore
	media    *storage.MediaStore
	emitter  *service.MockEmitter
	editor   *service.EditorService
	projects *service.ProjectService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.OpenSQLite(filepath.Join(dir, "lyriclab.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	media, err := storage.NewMediaStore(filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	env := &testEnv{
		store:   storage.NewProjectStore(db),
		history: storage.NewHistoryStore(db, 40),
		media:   media,
		emitter: &service.MockEmitter{},
	}
	env.editor = service.NewEditorService(env.store, env.history, env.emitter)
	env.projects = service.NewProjectService(env.store, env.history, env.editor, env.media, env.emitter)
	return env
}

// seed stores a project whose lyrics are the given blocks.
func (e *testEnv) seed(t *testing.T, blocks ...domain.Block) *domain.Project {
	t.Helper()
	p := domain.NewProject("Test Song")
	if len(blocks) > 0 {
		p.Lyrics = domain.NewDocument(blocks...)
	}
	if err := e.store.Save(context.Background(), p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

// ─────────────────────────────────────────────────────────────
// runningGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("project-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("project-1") {
		t.Fatal("expected second TryLock for same key to fail")
	}
	if !g.TryLock("project-2") {
		t.Fatal("expected TryLock for a different key to succeed")
	}
	if !g.Running("project-1") {
		t.Error("expected project-1 to be running")
	}
	g.Unlock("project-1")
	g.Unlock("project-2")

	if !g.TryLock("project-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("project-1")
}

func TestRunningGuard_UnlockUnknownKey(t *testing.T) {
	var g service.ExportedRunningGuard
	g.Unlock("nobody")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	g.WaitAll(ctx)
	if ctx.Err() != nil {
		t.Fatal("WaitAll should return immediately with nothing running")
	}
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("project-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("project-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventProjectUpdated, map[string]string{"id": "p1"})
	m.Emit(ctx, service.EventLyricsChanged, nil)
	m.Emit(ctx, service.EventProjectUpdated, nil)

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	if got := len(m.Named(service.EventProjectUpdated)); got != 2 {
		t.Errorf("expected 2 project:updated events, got %d", got)
	}
	if m.Events[len(m.Events)-1].Event != service.EventProjectUpdated {
		t.Errorf("unexpected last event %q", m.Events[len(m.Events)-1].Event)
	}
}
