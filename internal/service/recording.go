package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lyriclab/internal/domain"
)

var (
	ErrRecordingActive = errors.New("a recording is already running for this project")
	ErrNoRecording     = errors.New("no recording in progress")
)

// Take is one running capture.
type Take interface {
	Levels() <-chan float64
	Stop() (time.Duration, error)
	Cancel() error
}

// Recorder starts captures into files.
type Recorder interface {
	Start(path string) (Take, error)
}

// MediaAllocator hands out fresh media references.
type MediaAllocator interface {
	Allocate(ext string) (ref, path string)
	Remove(ref string) error
}

// ─────────────────────────────────────────────────────────────
// Recording Service: microphone takes, inline or standalone
// ─────────────────────────────────────────────────────────────

type RecordingService struct {
	recorder Recorder
	media    MediaAllocator
	editor   *EditorService
	projects *ProjectService
	emitter  EventEmitter
	now      func() time.Time

	guard  runningGuard
	mu     sync.Mutex
	active map[string]*activeTake
}

type activeTake struct {
	take    Take
	ref     string
	inline  bool
	started time.Time
	// stopping is set once Stop or Cancel claimed the take. The ref stays
	// in ActiveRefs until the claimer finishes.
	stopping bool
}

// RecordingStarted is the payload of EventRecordingStarted.
type RecordingStarted struct {
	ProjectID string    `json:"projectId"`
	MediaRef  string    `json:"mediaRef"`
	Inline    bool      `json:"inline"`
	StartedAt time.Time `json:"startedAt"`
}

// RecordingLevel is the payload of EventRecordingLevel.
type RecordingLevel struct {
	ProjectID string  `json:"projectId"`
	Level     float64 `json:"level"`
}

// RecordingResult describes a finished take. Exactly one of Block and
// Recording is set.
type RecordingResult struct {
	ProjectID string              `json:"projectId"`
	Inline    bool                `json:"inline"`
	Duration  string              `json:"duration"`
	Block     *domain.AudioBlock  `json:"block,omitempty"`
	Recording *domain.Recording   `json:"recording,omitempty"`
	Focus     *domain.FocusTarget `json:"focus,omitempty"`
}

func NewRecordingService(recorder Recorder, media MediaAllocator, editor *EditorService, projects *ProjectService, emitter EventEmitter) *RecordingService {
	return &RecordingService{
		recorder: recorder,
		media:    media,
		editor:   editor,
		projects: projects,
		emitter:  emitter,
		now:      time.Now,
		active:   make(map[string]*activeTake),
	}
}

// Start begins a take for projectID. Inline takes become audio blocks in
// the lyrics when stopped; the others are kept as standalone recordings.
func (s *RecordingService) Start(ctx context.Context, projectID string, inline bool) (*RecordingStarted, error) {
	if _, err := s.editor.Project(ctx, projectID); err != nil {
		return nil, err
	}
	if !s.guard.TryLock(projectID) {
		return nil, ErrRecordingActive
	}

	ref, path := s.media.Allocate("wav")
	take, err := s.recorder.Start(path)
	if err != nil {
		s.guard.Unlock(projectID)
		_ = s.media.Remove(ref)
		return nil, fmt.Errorf("start recording: %w", err)
	}

	at := &activeTake{take: take, ref: ref, inline: inline, started: s.now()}
	s.mu.Lock()
	s.active[projectID] = at
	s.mu.Unlock()

	go s.relayLevels(projectID, take.Levels())

	started := &RecordingStarted{ProjectID: projectID, MediaRef: ref, Inline: inline, StartedAt: at.started}
	s.emitter.Emit(ctx, EventRecordingStarted, started)
	log.Printf("[recording] started %s (inline=%v)", ref, inline)
	return started, nil
}

func (s *RecordingService) relayLevels(projectID string, levels <-chan float64) {
	for level := range levels {
		s.emitter.Emit(context.Background(), EventRecordingLevel, RecordingLevel{ProjectID: projectID, Level: level})
	}
}

// take claims the running take of projectID. The caller must call release
// once the media file is referenced by the project or removed.
func (s *RecordingService) take(projectID string) (*activeTake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.active[projectID]
	if !ok || at.stopping {
		return nil, ErrNoRecording
	}
	at.stopping = true
	return at, nil
}

func (s *RecordingService) release(projectID string) {
	s.mu.Lock()
	delete(s.active, projectID)
	s.mu.Unlock()
	s.guard.Unlock(projectID)
}

// Stop finishes the take. An inline take is inserted at cursor, or at the
// session's last known cursor when cursor is nil.
func (s *RecordingService) Stop(ctx context.Context, projectID string, cursor *domain.Cursor) (*RecordingResult, error) {
	at, err := s.take(projectID)
	if err != nil {
		return nil, err
	}
	defer s.release(projectID)

	d, err := at.take.Stop()
	if err != nil {
		_ = s.media.Remove(at.ref)
		return nil, fmt.Errorf("stop recording: %w", err)
	}

	res := &RecordingResult{ProjectID: projectID, Inline: at.inline, Duration: domain.FormatDuration(d)}
	if at.inline {
		block := domain.NewAudioBlock(at.ref, res.Duration)
		edit, err := s.editor.InsertAudio(ctx, projectID, block, cursor)
		if err != nil {
			return nil, err
		}
		// InsertAudio may have replaced a colliding id.
		for _, b := range edit.Lyrics.Blocks() {
			if a, ok := b.(domain.AudioBlock); ok && a.MediaRef == at.ref {
				block = a
				break
			}
		}
		res.Block = &block
		res.Focus = edit.Focus
	} else {
		rec := domain.Recording{
			ID:       domain.NewID(),
			Name:     domain.RecordingName(at.started),
			MediaRef: at.ref,
			Duration: res.Duration,
			Date:     at.started,
		}
		if _, err := s.projects.AddRecording(ctx, projectID, rec); err != nil {
			return nil, err
		}
		res.Recording = &rec
	}

	s.emitter.Emit(ctx, EventRecordingStopped, res)
	log.Printf("[recording] stopped %s (%s)", at.ref, res.Duration)
	return res, nil
}

// Cancel discards the take. The lyrics are never touched.
func (s *RecordingService) Cancel(ctx context.Context, projectID string) error {
	at, err := s.take(projectID)
	if err != nil {
		return err
	}
	defer s.release(projectID)

	if err := at.take.Cancel(); err != nil {
		log.Printf("[recording] cancel %s: %v", at.ref, err)
	}
	_ = s.media.Remove(at.ref)

	s.emitter.Emit(ctx, EventRecordingCanceled, map[string]string{"projectId": projectID})
	return nil
}

// Active reports whether projectID has a take running.
func (s *RecordingService) Active(projectID string) bool {
	return s.guard.Running(projectID)
}

// ActiveRefs returns the media references currently being written or
// finalized.
func (s *RecordingService) ActiveRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]string, 0, len(s.active))
	for _, at := range s.active {
		refs = append(refs, at.ref)
	}
	return refs
}

// Shutdown cancels every running take.
func (s *RecordingService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Cancel(ctx, id); err != nil && !errors.Is(err, ErrNoRecording) {
			log.Printf("[recording] shutdown %s: %v", id, err)
		}
	}
	s.guard.WaitAll(ctx)
}
