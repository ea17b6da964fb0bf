package service_test

import (
	"context"
	"errors"
	"testing"

	"lyriclab/internal/domain"
	"lyriclab/internal/extedit"
	"lyriclab/internal/service"
)

type fakeBridge struct {
	files    map[extedit.Target]string
	released []extedit.Target
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{files: make(map[extedit.Target]string)}
}

func (b *fakeBridge) Export(t extedit.Target, content string) (string, error) {
	b.files[t] = content
	return "/edit/" + t.ProjectID + "/" + t.BlockID + ".txt", nil
}

func (b *fakeBridge) Read(t extedit.Target) (string, error) {
	return b.files[t], nil
}

func (b *fakeBridge) Release(t extedit.Target) {
	b.released = append(b.released, t)
	delete(b.files, t)
}

type fakeTerminal struct {
	opened []string
	input  []string
	closed bool
}

func (f *fakeTerminal) OpenFile(path string) error     { f.opened = append(f.opened, path); return nil }
func (f *fakeTerminal) Write(data string) error        { f.input = append(f.input, data); return nil }
func (f *fakeTerminal) Resize(cols, rows uint16) error { return nil }
func (f *fakeTerminal) Close()                         { f.closed = true }

func TestExternalEdit_LiveSyncAndEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seed(t, domain.TextBlock{ID: "t1", Content: "draft"})
	bridge := newFakeBridge()
	term := &fakeTerminal{}
	svc := service.NewExternalEditService(env.editor, bridge, term, env.emitter)

	ed, err := svc.Begin(ctx, p.ID, "t1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !ed.Terminal || len(term.opened) != 1 || term.opened[0] != ed.Path {
		t.Errorf("expected the editor to open %s, got %v", ed.Path, term.opened)
	}
	target := extedit.Target{ProjectID: p.ID, BlockID: "t1"}
	if bridge.files[target] != "draft" {
		t.Errorf("expected exported content, got %q", bridge.files[target])
	}

	svc.OnFileChanged(target, "draft two")
	got, _ := env.editor.Project(ctx, p.ID)
	if textOf(t, got.Lyrics, 0) != "draft two" {
		t.Errorf("file write should reach the block, got %q", textOf(t, got.Lyrics, 0))
	}

	bridge.files[target] = "final"
	svc.OnTerminalExit(ed.Path)
	got, _ = env.editor.Project(ctx, p.ID)
	if textOf(t, got.Lyrics, 0) != "final" {
		t.Errorf("exit should apply the final content, got %q", textOf(t, got.Lyrics, 0))
	}
	if len(bridge.released) != 1 || len(svc.Exports()) != 0 {
		t.Error("export should be released on exit")
	}
	if len(env.emitter.Named(service.EventTerminalExit)) != 1 {
		t.Error("expected a terminal:exit event")
	}

	svc.OnFileChanged(target, "late write")
	got, _ = env.editor.Project(ctx, p.ID)
	if textOf(t, got.Lyrics, 0) != "final" {
		t.Error("writes after release must be ignored")
	}
}

func TestExternalEdit_RejectsAudioBlock(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t, domain.AudioBlock{ID: "a1", MediaRef: "a.wav", Duration: "0:01"})
	svc := service.NewExternalEditService(env.editor, newFakeBridge(), nil, env.emitter)

	if _, err := svc.Begin(context.Background(), p.ID, "a1", false); !errors.Is(err, service.ErrNotTextBlock) {
		t.Errorf("expected ErrNotTextBlock, got %v", err)
	}
}

func TestExternalEdit_EndWithoutExport(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewExternalEditService(env.editor, newFakeBridge(), nil, env.emitter)
	if err := svc.End(context.Background(), "p", "b"); !errors.Is(err, service.ErrNotExported) {
		t.Errorf("expected ErrNotExported, got %v", err)
	}
	if err := svc.TerminalInput("x"); !errors.Is(err, service.ErrNoTerminal) {
		t.Errorf("expected ErrNoTerminal, got %v", err)
	}
}

func TestExternalEdit_TerminalRelay(t *testing.T) {
	env := newTestEnv(t)
	term := &fakeTerminal{}
	svc := service.NewExternalEditService(env.editor, newFakeBridge(), term, env.emitter)

	if err := svc.TerminalInput(":wq\r"); err != nil {
		t.Fatal(err)
	}
	if len(term.input) != 1 {
		t.Error("input should be forwarded")
	}
	svc.OnTerminalData([]byte("hello"))
	ev := env.emitter.Named(service.EventTerminalData)
	if len(ev) != 1 || ev[0].Data != "hello" {
		t.Errorf("expected terminal:data relay, got %+v", ev)
	}
	svc.Shutdown(context.Background())
	if !term.closed {
		t.Error("shutdown should close the terminal")
	}
}
