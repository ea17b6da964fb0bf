package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"unicode/utf8"

	"lyriclab/internal/domain"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// ─────────────────────────────────────────────────────────────
// Editor Service: editing sessions over project lyrics
// ─────────────────────────────────────────────────────────────

// EditorService owns one editing session per open project. Intents on a
// session are applied one at a time, in arrival order.
type EditorService struct {
	store   domain.ProjectStore
	history domain.HistoryStore
	emitter EventEmitter

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	project *domain.Project
	cursor  *domain.Cursor
	focus   *domain.FocusTarget
	dirty   bool
}

// LyricStats are the derived counters shown next to the editor.
type LyricStats struct {
	Characters      int `json:"characters"`
	Lines           int `json:"lines"`
	Blocks          int `json:"blocks"`
	AudioBlocks     int `json:"audioBlocks"`
	NotesCharacters int `json:"notesCharacters"`
}

// EditorState is a snapshot of a session.
type EditorState struct {
	Project *domain.Project     `json:"project"`
	Stats   LyricStats          `json:"stats"`
	Cursor  *domain.Cursor      `json:"cursor,omitempty"`
	Focus   *domain.FocusTarget `json:"focus,omitempty"`
	Dirty   bool                `json:"dirty"`
	CanUndo bool                `json:"canUndo"`
	CanRedo bool                `json:"canRedo"`
}

// EditResult is returned by every document intent.
type EditResult struct {
	Changed bool                `json:"changed"`
	Lyrics  domain.Document     `json:"lyrics"`
	Focus   *domain.FocusTarget `json:"focus,omitempty"`
	Stats   LyricStats          `json:"stats"`
}

// LyricsChanged is the payload of EventLyricsChanged.
type LyricsChanged struct {
	ProjectID string              `json:"projectId"`
	Lyrics    domain.Document     `json:"lyrics"`
	Focus     *domain.FocusTarget `json:"focus,omitempty"`
	Stats     LyricStats          `json:"stats"`
	Label     string              `json:"label"`
}

func NewEditorService(store domain.ProjectStore, history domain.HistoryStore, emitter EventEmitter) *EditorService {
	return &EditorService{
		store:    store,
		history:  history,
		emitter:  emitter,
		sessions: make(map[string]*session),
	}
}

// StatsOf computes the editor counters for a project.
func StatsOf(p *domain.Project) LyricStats {
	return LyricStats{
		Characters:      p.Lyrics.CharacterCount(),
		Lines:           p.Lyrics.LineCount(),
		Blocks:          p.Lyrics.Len(),
		AudioBlocks:     len(p.Lyrics.AudioRefs()),
		NotesCharacters: utf8.RuneCountInString(p.Notes),
	}
}

// ── Sessions ────────────────────────────────────────────────

// Open starts (or returns) the editing session of a project.
func (s *EditorService) Open(ctx context.Context, projectID string) (*EditorState, error) {
	sess, err := s.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.state(ctx, sess), nil
}

// session returns the open session of projectID, loading it on first use.
func (s *EditorService) session(ctx context.Context, projectID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[projectID]; ok {
		return sess, nil
	}

	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess := &session{project: p}
	// Stored lyrics may be an empty list; editing needs a text block to target.
	if p.Lyrics.Len() == 0 {
		p.Lyrics = domain.DefaultDocument()
		sess.dirty = true
	}

	// Seed the history root so the loaded state can be returned to.
	cur, err := s.history.Current(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if cur == nil || cur.Snapshot != encodeSnapshot(p.Lyrics) {
		parent := ""
		if cur != nil {
			parent = cur.ID
		}
		if _, err := s.history.Push(ctx, projectID, parent, "open", encodeSnapshot(p.Lyrics)); err != nil {
			return nil, fmt.Errorf("seed history: %w", err)
		}
	}

	s.sessions[projectID] = sess
	log.Printf("[editor] opened %s", projectID)
	return sess, nil
}

// Close saves a dirty session and drops it.
func (s *EditorService) Close(ctx context.Context, projectID string) error {
	if err := s.Save(ctx, projectID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, projectID)
	s.mu.Unlock()
	log.Printf("[editor] closed %s", projectID)
	return nil
}

// Forget drops a session without saving it.
func (s *EditorService) Forget(projectID string) {
	s.mu.Lock()
	delete(s.sessions, projectID)
	s.mu.Unlock()
}

// CloseAll saves and drops every session.
func (s *EditorService) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range s.OpenProjects() {
		if err := s.Close(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// OpenProjects lists the ids of open sessions, sorted.
func (s *EditorService) OpenProjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *EditorService) lookup(projectID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[projectID]
	return sess, ok
}

// Project returns the live copy of a project: the session state when open,
// the stored state otherwise.
func (s *EditorService) Project(ctx context.Context, projectID string) (*domain.Project, error) {
	if sess, ok := s.lookup(projectID); ok {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.project.Clone(), nil
	}
	return s.store.Get(ctx, projectID)
}

// Snapshot returns the state of an open or closed project without opening it.
func (s *EditorService) Snapshot(ctx context.Context, projectID string) (*EditorState, error) {
	if sess, ok := s.lookup(projectID); ok {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return s.state(ctx, sess), nil
	}
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &EditorState{Project: p, Stats: StatsOf(p)}, nil
}

// ── Document intents ────────────────────────────────────────

// EditText replaces the content of a text block.
func (s *EditorService) EditText(ctx context.Context, projectID, blockID, content string) (*EditResult, error) {
	return s.apply(ctx, projectID, "edit", func(d domain.Document) (domain.Document, *domain.FocusTarget) {
		return d.EditText(blockID, content), nil
	})
}

// DeleteBlock removes a block. A document left empty gets a fresh empty text block.
func (s *EditorService) DeleteBlock(ctx context.Context, projectID, blockID string) (*EditResult, error) {
	return s.apply(ctx, projectID, "delete", func(d domain.Document) (domain.Document, *domain.FocusTarget) {
		return d.DeleteBlock(blockID), nil
	})
}

// InsertAudio places an audio block at cursor. A nil cursor falls back to
// the last cursor reported for the session.
func (s *EditorService) InsertAudio(ctx context.Context, projectID string, block domain.AudioBlock, cursor *domain.Cursor) (*EditResult, error) {
	sess, err := s.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		sess.mu.Lock()
		if sess.cursor != nil {
			c := *sess.cursor
			cursor = &c
		}
		sess.mu.Unlock()
	}
	return s.apply(ctx, projectID, "record", func(d domain.Document) (domain.Document, *domain.FocusTarget) {
		return d.InsertAudio(block, cursor)
	})
}

// Backspace handles backspace at the start of a block.
func (s *EditorService) Backspace(ctx context.Context, projectID, blockID string, selectionStart int) (*EditResult, error) {
	return s.apply(ctx, projectID, "backspace", func(d domain.Document) (domain.Document, *domain.FocusTarget) {
		return d.BoundaryBackspace(blockID, selectionStart)
	})
}

// SetCursor records the caret position. A cursor on an unknown block is kept
// as-is and treated as absent by later inserts.
func (s *EditorService) SetCursor(ctx context.Context, projectID string, cursor *domain.Cursor) error {
	sess, err := s.session(ctx, projectID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if cursor == nil {
		sess.cursor = nil
		return nil
	}
	c := *cursor
	sess.cursor = &c
	return nil
}

// Cursor returns the last reported caret position of an open session.
func (s *EditorService) Cursor(projectID string) *domain.Cursor {
	sess, ok := s.lookup(projectID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cursor == nil {
		return nil
	}
	c := *sess.cursor
	return &c
}

func (s *EditorService) apply(ctx context.Context, projectID, label string, op func(domain.Document) (domain.Document, *domain.FocusTarget)) (*EditResult, error) {
	sess, err := s.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	before := sess.project.Lyrics
	next, focus := op(before)
	if next.Equal(before) {
		return &EditResult{Lyrics: before, Stats: StatsOf(sess.project)}, nil
	}
	if next.Len() == 0 {
		seed := domain.NewTextBlock("")
		next = domain.NewDocument(seed)
		focus = &domain.FocusTarget{BlockID: seed.ID}
	}

	if err := s.commit(ctx, sess, next, label); err != nil {
		return nil, err
	}
	sess.focus = focus
	if focus != nil {
		sess.cursor = &domain.Cursor{BlockID: focus.BlockID, Offset: focus.Offset}
	}

	stats := StatsOf(sess.project)
	s.emitter.Emit(ctx, EventLyricsChanged, LyricsChanged{
		ProjectID: projectID,
		Lyrics:    next,
		Focus:     focus,
		Stats:     stats,
		Label:     label,
	})
	return &EditResult{Changed: true, Lyrics: next, Focus: focus, Stats: stats}, nil
}

// commit records doc in the history and installs it in the session.
func (s *EditorService) commit(ctx context.Context, sess *session, doc domain.Document, label string) error {
	p := sess.project
	parent := ""
	if cur, err := s.history.Current(ctx, p.ID); err != nil {
		return fmt.Errorf("load history: %w", err)
	} else if cur != nil {
		parent = cur.ID
	}
	if _, err := s.history.Push(ctx, p.ID, parent, label, encodeSnapshot(doc)); err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	next := p.Clone()
	next.Lyrics = doc
	sess.project = next
	sess.dirty = true
	return nil
}

// ── History ─────────────────────────────────────────────────

// Undo restores the lyrics of the previous history node.
func (s *EditorService) Undo(ctx context.Context, projectID string) (*EditorState, error) {
	return s.travel(ctx, projectID, func(cur *domain.HistoryNode) (*domain.HistoryNode, error) {
		if cur == nil || cur.ParentID == nil {
			return nil, ErrNothingToUndo
		}
		n, err := s.history.Node(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, ErrNothingToUndo
		}
		return n, nil
	})
}

// Redo re-applies the most recent child of the current history node.
func (s *EditorService) Redo(ctx context.Context, projectID string) (*EditorState, error) {
	return s.travel(ctx, projectID, func(cur *domain.HistoryNode) (*domain.HistoryNode, error) {
		if cur == nil {
			return nil, ErrNothingToRedo
		}
		n, err := s.history.LatestChild(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, ErrNothingToRedo
		}
		return n, nil
	})
}

func (s *EditorService) travel(ctx context.Context, projectID string, pick func(*domain.HistoryNode) (*domain.HistoryNode, error)) (*EditorState, error) {
	sess, err := s.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	cur, err := s.history.Current(ctx, projectID)
	if err != nil {
		return nil, err
	}
	target, err := pick(cur)
	if err != nil {
		return nil, err
	}
	doc, err := domain.DecodeLyrics(json.RawMessage(target.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("decode history snapshot: %w", err)
	}
	if err := s.history.GoTo(ctx, projectID, target.ID); err != nil {
		return nil, fmt.Errorf("move history: %w", err)
	}

	next := sess.project.Clone()
	next.Lyrics = doc
	sess.project = next
	sess.dirty = true
	sess.focus = nil

	s.emitter.Emit(ctx, EventLyricsChanged, LyricsChanged{
		ProjectID: projectID,
		Lyrics:    doc,
		Stats:     StatsOf(next),
		Label:     target.Label,
	})
	return s.state(ctx, sess), nil
}

// ── Metadata & persistence ──────────────────────────────────

// Mutate applies fn to a copy of the project. Open sessions keep the change
// in memory until saved; closed projects are saved right away.
func (s *EditorService) Mutate(ctx context.Context, projectID string, fn func(*domain.Project) error) (*domain.Project, error) {
	if sess, ok := s.lookup(projectID); ok {
		sess.mu.Lock()
		next := sess.project.Clone()
		if err := fn(next); err != nil {
			sess.mu.Unlock()
			return nil, err
		}
		sess.project = next
		sess.dirty = true
		out := next.Clone()
		sess.mu.Unlock()

		s.emitter.Emit(ctx, EventProjectUpdated, out)
		return out, nil
	}

	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventProjectUpdated, p)
	return p.Clone(), nil
}

// Save persists a dirty session. Closed or clean projects are left alone.
// On failure the session stays dirty.
func (s *EditorService) Save(ctx context.Context, projectID string) error {
	sess, ok := s.lookup(projectID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.dirty {
		return nil
	}

	p := sess.project.Clone()
	if err := s.store.Save(ctx, p); err != nil {
		return fmt.Errorf("save project %s: %w", projectID, err)
	}
	sess.project.LastModified = p.LastModified
	sess.dirty = false
	return nil
}

// SaveDirty saves every dirty session and returns how many were written.
func (s *EditorService) SaveDirty(ctx context.Context) (int, error) {
	saved := 0
	var errs []error
	for _, id := range s.OpenProjects() {
		sess, ok := s.lookup(id)
		if !ok {
			continue
		}
		sess.mu.Lock()
		dirty := sess.dirty
		sess.mu.Unlock()
		if !dirty {
			continue
		}
		if err := s.Save(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

func (s *EditorService) state(ctx context.Context, sess *session) *EditorState {
	st := &EditorState{
		Project: sess.project.Clone(),
		Stats:   StatsOf(sess.project),
		Focus:   sess.focus,
		Dirty:   sess.dirty,
	}
	if sess.cursor != nil {
		c := *sess.cursor
		st.Cursor = &c
	}

	cur, err := s.history.Current(ctx, sess.project.ID)
	if err != nil {
		log.Printf("[editor] history for %s: %v", sess.project.ID, err)
		return st
	}
	if cur != nil {
		st.CanUndo = cur.ParentID != nil
		if child, err := s.history.LatestChild(ctx, cur.ID); err == nil && child != nil {
			st.CanRedo = true
		}
	}
	return st
}

func encodeSnapshot(d domain.Document) string {
	data, err := json.Marshal(d)
	if err != nil {
		// Document encoding cannot fail for well-formed blocks.
		panic(err)
	}
	return string(data)
}
