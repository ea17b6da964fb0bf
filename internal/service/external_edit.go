package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"lyriclab/internal/domain"
	"lyriclab/internal/extedit"
)

var (
	ErrNotTextBlock = errors.New("block is not a text block")
	ErrNotExported  = errors.New("block is not being edited externally")
	ErrNoTerminal   = errors.New("terminal editor is not available")
)

// FileBridge mirrors blocks to files on disk.
type FileBridge interface {
	Export(t extedit.Target, content string) (string, error)
	Read(t extedit.Target) (string, error)
	Release(t extedit.Target)
}

// TerminalRunner runs an editor process in a PTY.
type TerminalRunner interface {
	OpenFile(path string) error
	Write(data string) error
	Resize(cols, rows uint16) error
	Close()
}

// ─────────────────────────────────────────────────────────────
// External Edit Service: text blocks edited in $EDITOR
// ─────────────────────────────────────────────────────────────

type ExternalEditService struct {
	editor   *EditorService
	bridge   FileBridge
	terminal TerminalRunner
	emitter  EventEmitter

	mu      sync.Mutex
	exports map[extedit.Target]string // target -> file path
}

// ExternalEdit describes an exported block.
type ExternalEdit struct {
	ProjectID string `json:"projectId"`
	BlockID   string `json:"blockId"`
	Path      string `json:"path"`
	Terminal  bool   `json:"terminal"`
}

// TerminalExit is the payload of EventTerminalExit.
type TerminalExit struct {
	ProjectID string `json:"projectId"`
	BlockID   string `json:"blockId"`
}

func NewExternalEditService(editor *EditorService, bridge FileBridge, terminal TerminalRunner, emitter EventEmitter) *ExternalEditService {
	return &ExternalEditService{
		editor:   editor,
		bridge:   bridge,
		terminal: terminal,
		emitter:  emitter,
		exports:  make(map[extedit.Target]string),
	}
}

// SetBridge installs the file bridge. Call it before the first Begin.
func (s *ExternalEditService) SetBridge(b FileBridge) {
	s.mu.Lock()
	s.bridge = b
	s.mu.Unlock()
}

// SetTerminal installs the terminal runner. The runner reports back through
// OnTerminalData and OnTerminalExit.
func (s *ExternalEditService) SetTerminal(t TerminalRunner) {
	s.mu.Lock()
	s.terminal = t
	s.mu.Unlock()
}

// Begin exports a text block to a file and, when launch is set, opens it
// in the terminal editor. Writes to the file are applied to the block.
func (s *ExternalEditService) Begin(ctx context.Context, projectID, blockID string, launch bool) (*ExternalEdit, error) {
	if _, err := s.editor.Open(ctx, projectID); err != nil {
		return nil, err
	}
	p, err := s.editor.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	b, _ := p.Lyrics.Block(blockID)
	tb, ok := b.(domain.TextBlock)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTextBlock, blockID)
	}

	t := extedit.Target{ProjectID: projectID, BlockID: blockID}
	path, err := s.bridge.Export(t, tb.Content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.exports[t] = path
	term := s.terminal
	s.mu.Unlock()

	out := &ExternalEdit{ProjectID: projectID, BlockID: blockID, Path: path}
	if launch {
		if term == nil {
			return out, ErrNoTerminal
		}
		if err := term.OpenFile(path); err != nil {
			return out, fmt.Errorf("launch editor: %w", err)
		}
		out.Terminal = true
	}
	log.Printf("[extedit] exported %s/%s to %s", projectID, blockID, path)
	return out, nil
}

// End applies the file's final content and stops mirroring the block.
func (s *ExternalEditService) End(ctx context.Context, projectID, blockID string) error {
	t := extedit.Target{ProjectID: projectID, BlockID: blockID}
	s.mu.Lock()
	_, ok := s.exports[t]
	delete(s.exports, t)
	s.mu.Unlock()
	if !ok {
		return ErrNotExported
	}

	defer s.bridge.Release(t)
	content, err := s.bridge.Read(t)
	if err != nil {
		return fmt.Errorf("read edit file: %w", err)
	}
	if _, err := s.editor.EditText(ctx, projectID, blockID, content); err != nil {
		return err
	}
	return nil
}

// Exports lists the blocks currently mirrored to files.
func (s *ExternalEditService) Exports() []ExternalEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExternalEdit, 0, len(s.exports))
	for t, path := range s.exports {
		out = append(out, ExternalEdit{ProjectID: t.ProjectID, BlockID: t.BlockID, Path: path})
	}
	return out
}

// OnFileChanged applies content written by the external editor.
func (s *ExternalEditService) OnFileChanged(t extedit.Target, content string) {
	s.mu.Lock()
	_, ok := s.exports[t]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, err := s.editor.EditText(context.Background(), t.ProjectID, t.BlockID, content); err != nil {
		log.Printf("[extedit] apply %s/%s: %v", t.ProjectID, t.BlockID, err)
	}
}

// ── Terminal ────────────────────────────────────────────────

func (s *ExternalEditService) TerminalInput(data string) error {
	s.mu.Lock()
	term := s.terminal
	s.mu.Unlock()
	if term == nil {
		return ErrNoTerminal
	}
	return term.Write(data)
}

func (s *ExternalEditService) TerminalResize(cols, rows uint16) error {
	s.mu.Lock()
	term := s.terminal
	s.mu.Unlock()
	if term == nil {
		return ErrNoTerminal
	}
	return term.Resize(cols, rows)
}

// OnTerminalData relays editor output to clients.
func (s *ExternalEditService) OnTerminalData(data []byte) {
	s.emitter.Emit(context.Background(), EventTerminalData, string(data))
}

// OnTerminalExit ends the export whose file the editor had open.
func (s *ExternalEditService) OnTerminalExit(path string) {
	var target *extedit.Target
	s.mu.Lock()
	for t, p := range s.exports {
		if p == path {
			target = &t
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return
	}
	ctx := context.Background()
	if err := s.End(ctx, target.ProjectID, target.BlockID); err != nil && !errors.Is(err, ErrNotExported) {
		log.Printf("[extedit] finish %s/%s: %v", target.ProjectID, target.BlockID, err)
	}
	s.emitter.Emit(ctx, EventTerminalExit, TerminalExit{ProjectID: target.ProjectID, BlockID: target.BlockID})
}

// Shutdown applies and releases every export and kills the terminal.
func (s *ExternalEditService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	term := s.terminal
	targets := make([]extedit.Target, 0, len(s.exports))
	for t := range s.exports {
		targets = append(targets, t)
	}
	s.mu.Unlock()

	if term != nil {
		term.Close()
	}
	for _, t := range targets {
		if err := s.End(ctx, t.ProjectID, t.BlockID); err != nil && !errors.Is(err, ErrNotExported) {
			log.Printf("[extedit] shutdown %s/%s: %v", t.ProjectID, t.BlockID, err)
		}
	}
}
