package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"lyriclab/internal/domain"
)

var (
	ErrUnknownTag       = errors.New("unknown tag")
	ErrRecordingMissing = errors.New("recording not found")
)

// MediaRemover deletes stored media files.
type MediaRemover interface {
	Remove(ref string) error
}

// ─────────────────────────────────────────────────────────────
// Project Service: project lifecycle and metadata
// ─────────────────────────────────────────────────────────────

type ProjectService struct {
	store   domain.ProjectStore
	history domain.HistoryStore
	editor  *EditorService
	media   MediaRemover
	emitter EventEmitter
}

// Catalog lists the values the metadata pickers offer.
type Catalog struct {
	Statuses []domain.Status `json:"statuses"`
	Genres   []string        `json:"genres"`
	Moods    []string        `json:"moods"`
}

// ProjectPatch carries the metadata fields a client may change at once.
// Nil fields are left untouched.
type ProjectPatch struct {
	Title            *string `json:"title,omitempty"`
	Status           *string `json:"status,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	HideRecordButton *bool   `json:"hideRecordButton,omitempty"`
}

type TagKind string

const (
	TagGenre TagKind = "genre"
	TagMood  TagKind = "mood"
)

func NewProjectService(store domain.ProjectStore, history domain.HistoryStore, editor *EditorService, media MediaRemover, emitter EventEmitter) *ProjectService {
	return &ProjectService{store: store, history: history, editor: editor, media: media, emitter: emitter}
}

func (s *ProjectService) Catalog() Catalog {
	return Catalog{
		Statuses: slices.Clone(domain.StatusCycle),
		Genres:   slices.Clone(domain.Genres),
		Moods:    slices.Clone(domain.Moods),
	}
}

// Create stores a new project with default content.
func (s *ProjectService) Create(ctx context.Context, title string) (*domain.Project, error) {
	p := domain.NewProject(title)
	if err := s.store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.emitter.Emit(ctx, EventProjectUpdated, p)
	return p, nil
}

// Get returns the live state of a project.
func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	return s.editor.Project(ctx, id)
}

// List returns summaries newest first. Open sessions contribute their
// unsaved state.
func (s *ProjectService) List(ctx context.Context) ([]domain.ProjectSummary, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if _, open := s.editor.lookup(list[i].ID); !open {
			continue
		}
		if p, err := s.editor.Project(ctx, list[i].ID); err == nil {
			list[i] = p.Summary()
		}
	}
	return list, nil
}

// Delete removes a project along with its history and media.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	p, err := s.editor.Project(ctx, id)
	if err != nil {
		return err
	}
	s.editor.Forget(id)

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.history.Clear(ctx, id); err != nil {
		log.Printf("[project] clear history of %s: %v", id, err)
	}
	for _, ref := range p.MediaRefs() {
		if err := s.media.Remove(ref); err != nil {
			log.Printf("[project] remove media %s: %v", ref, err)
		}
	}

	s.emitter.Emit(ctx, EventProjectDeleted, map[string]string{"id": id})
	return nil
}

// Update applies a metadata patch.
func (s *ProjectService) Update(ctx context.Context, id string, patch ProjectPatch) (*domain.Project, error) {
	return s.editor.Mutate(ctx, id, func(p *domain.Project) error {
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				title = domain.DefaultProjectTitle
			}
			p.Title = title
		}
		if patch.Status != nil {
			p.Status = domain.ParseStatus(*patch.Status)
		}
		if patch.Notes != nil {
			p.Notes = *patch.Notes
		}
		if patch.HideRecordButton != nil {
			p.HideRecordButton = *patch.HideRecordButton
		}
		return nil
	})
}

func (s *ProjectService) Rename(ctx context.Context, id, title string) (*domain.Project, error) {
	return s.Update(ctx, id, ProjectPatch{Title: &title})
}

func (s *ProjectService) SetStatus(ctx context.Context, id, status string) (*domain.Project, error) {
	return s.Update(ctx, id, ProjectPatch{Status: &status})
}

func (s *ProjectService) SetNotes(ctx context.Context, id, notes string) (*domain.Project, error) {
	return s.Update(ctx, id, ProjectPatch{Notes: &notes})
}

func (s *ProjectService) SetHideRecordButton(ctx context.Context, id string, hide bool) (*domain.Project, error) {
	return s.Update(ctx, id, ProjectPatch{HideRecordButton: &hide})
}

// CycleStatus advances Idea → En Progreso → Finalizado → Idea.
func (s *ProjectService) CycleStatus(ctx context.Context, id string) (*domain.Project, error) {
	return s.editor.Mutate(ctx, id, func(p *domain.Project) error {
		p.Status = domain.NextStatus(p.Status)
		return nil
	})
}

// ToggleTag adds or removes a catalog genre or mood.
func (s *ProjectService) ToggleTag(ctx context.Context, id string, kind TagKind, tag string) (*domain.Project, error) {
	var catalog []string
	switch kind {
	case TagGenre:
		catalog = domain.Genres
	case TagMood:
		catalog = domain.Moods
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownTag, kind)
	}
	if !slices.Contains(catalog, tag) {
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownTag, kind, tag)
	}

	return s.editor.Mutate(ctx, id, func(p *domain.Project) error {
		if kind == TagGenre {
			p.Genre = domain.ToggleTag(p.Genre, tag)
		} else {
			p.Mood = domain.ToggleTag(p.Mood, tag)
		}
		return nil
	})
}

func (s *ProjectService) ToggleGenre(ctx context.Context, id, genre string) (*domain.Project, error) {
	return s.ToggleTag(ctx, id, TagGenre, genre)
}

func (s *ProjectService) ToggleMood(ctx context.Context, id, mood string) (*domain.Project, error) {
	return s.ToggleTag(ctx, id, TagMood, mood)
}

// ── Standalone recordings ───────────────────────────────────

// AddRecording attaches a standalone take to the project.
func (s *ProjectService) AddRecording(ctx context.Context, id string, rec domain.Recording) (*domain.Project, error) {
	return s.editor.Mutate(ctx, id, func(p *domain.Project) error {
		p.Recordings = append(p.Recordings, rec)
		return nil
	})
}

func (s *ProjectService) RenameRecording(ctx context.Context, id, recordingID, name string) (*domain.Project, error) {
	return s.editor.Mutate(ctx, id, func(p *domain.Project) error {
		i, ok := p.Recording(recordingID)
		if !ok {
			return ErrRecordingMissing
		}
		p.Recordings[i].Name = strings.TrimSpace(name)
		return nil
	})
}

// DeleteRecording detaches a standalone take and deletes its file.
func (s *ProjectService) DeleteRecording(ctx context.Context, id, recordingID string) (*domain.Project, error) {
	var ref string
	p, err := s.editor.Mutate(ctx, id, func(p *domain.Project) error {
		i, ok := p.Recording(recordingID)
		if !ok {
			return ErrRecordingMissing
		}
		ref = p.Recordings[i].MediaRef
		p.Recordings = slices.Delete(p.Recordings, i, i+1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.media.Remove(ref); err != nil {
		log.Printf("[project] remove media %s: %v", ref, err)
	}
	return p, nil
}
