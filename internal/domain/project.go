package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrProjectNotFound is returned by stores when no project has the given id.
var ErrProjectNotFound = errors.New("project not found")

const DefaultProjectTitle = "Nuevo Proyecto"

type Status string

const (
	StatusIdea       Status = "Idea"
	StatusInProgress Status = "En Progreso"
	StatusFinished   Status = "Finalizado"
)

// StatusCycle is the order the status toggle walks through.
var StatusCycle = []Status{StatusIdea, StatusInProgress, StatusFinished}

// ParseStatus matches s against the known statuses ignoring case and
// surrounding space. Unknown values are returned verbatim.
func ParseStatus(s string) Status {
	trimmed := strings.TrimSpace(s)
	for _, st := range StatusCycle {
		if strings.EqualFold(trimmed, string(st)) {
			return st
		}
	}
	return Status(s)
}

// Known reports whether s is one of the cycle statuses.
func (s Status) Known() bool {
	for _, st := range StatusCycle {
		if st == s {
			return true
		}
	}
	return false
}

// NextStatus advances along StatusCycle, wrapping around. Unknown statuses advance to Idea.
func NextStatus(s Status) Status {
	s = ParseStatus(string(s))
	for i, st := range StatusCycle {
		if st == s {
			return StatusCycle[(i+1)%len(StatusCycle)]
		}
	}
	return StatusIdea
}

var Genres = []string{
	"Pop", "Rock", "Balada", "Folk", "Latino", "Reggaeton",
	"Indie", "Acústico", "Electrónico", "Jazz", "Blues", "Country",
}

var Moods = []string{
	"Romántico", "Melancólico", "Alegre", "Nostálgico", "Energético",
	"Reflexivo", "Apasionado", "Tranquilo", "Rebelde", "Esperanzador",
}

// ToggleTag removes tag from list if present, otherwise appends it.
// The input slice is not modified.
func ToggleTag(list []string, tag string) []string {
	out := make([]string, 0, len(list)+1)
	found := false
	for _, t := range list {
		if t == tag {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		out = append(out, tag)
	}
	return out
}

// Recording is a standalone take attached to a project, outside the lyrics.
type Recording struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	MediaRef string    `json:"uri"`
	Duration string    `json:"duration"`
	Date     time.Time `json:"date"`
}

// Project is the persisted aggregate: lyrics plus everything around them.
type Project struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Status           Status      `json:"status"`
	Lyrics           Document    `json:"lyrics"`
	Notes            string      `json:"notes"`
	Recordings       []Recording `json:"recordings"`
	Genre            []string    `json:"genre"`
	Mood             []string    `json:"mood"`
	CreatedAt        time.Time   `json:"createdAt"`
	LastModified     time.Time   `json:"lastModified"`
	HideRecordButton bool        `json:"hideRecordButton"`
}

// NewProject returns a project with default metadata and a single empty text block.
func NewProject(title string) *Project {
	if strings.TrimSpace(title) == "" {
		title = DefaultProjectTitle
	}
	now := time.Now()
	return &Project{
		ID:           NewID(),
		Title:        title,
		Status:       StatusInProgress,
		Lyrics:       DefaultDocument(),
		Recordings:   []Recording{},
		Genre:        []string{},
		Mood:         []string{},
		CreatedAt:    now,
		LastModified: now,
	}
}

// Clone returns a deep copy of the project. Documents are immutable so
// they are shared.
func (p *Project) Clone() *Project {
	c := *p
	c.Recordings = append([]Recording{}, p.Recordings...)
	c.Genre = append([]string{}, p.Genre...)
	c.Mood = append([]string{}, p.Mood...)
	return &c
}

// MediaRefs lists every media reference the project holds, inline or standalone.
func (p *Project) MediaRefs() []string {
	refs := p.Lyrics.AudioRefs()
	for _, r := range p.Recordings {
		refs = append(refs, r.MediaRef)
	}
	return refs
}

// Recording looks up a standalone recording by id.
func (p *Project) Recording(id string) (int, bool) {
	for i, r := range p.Recordings {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

// RecordingName is the default name for a standalone take made at t.
func RecordingName(t time.Time) string {
	return "Grabación " + t.Format("15:04:05")
}

// FormatDuration renders d as M:SS, truncating fractional seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ── Summaries ───────────────────────────────────────────────

// ProjectSummary is the list-view projection of a project.
type ProjectSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Status         Status    `json:"status"`
	Snippet        string    `json:"snippet"`
	CharacterCount int       `json:"characterCount"`
	LineCount      int       `json:"lineCount"`
	RecordingCount int       `json:"recordingCount"`
	Genre          []string  `json:"genre"`
	Mood           []string  `json:"mood"`
	CreatedAt      time.Time `json:"createdAt"`
	LastModified   time.Time `json:"lastModified"`
}

// Summary projects p for listing. The snippet falls back to the first line
// of the notes when the lyrics have no text.
func (p *Project) Summary() ProjectSummary {
	snippet := p.Lyrics.Snippet()
	if snippet == "" && p.Notes != "" {
		snippet = firstLine(p.Notes)
	}
	return ProjectSummary{
		ID:             p.ID,
		Title:          p.Title,
		Status:         p.Status,
		Snippet:        snippet,
		CharacterCount: p.Lyrics.CharacterCount(),
		LineCount:      p.Lyrics.LineCount(),
		RecordingCount: len(p.Recordings),
		Genre:          p.Genre,
		Mood:           p.Mood,
		CreatedAt:      p.CreatedAt,
		LastModified:   p.LastModified,
	}
}

// ── Stores ──────────────────────────────────────────────────

// ProjectStore persists project aggregates keyed by id.
type ProjectStore interface {
	// List returns summaries ordered by LastModified, newest first.
	List(ctx context.Context) ([]ProjectSummary, error)
	Get(ctx context.Context, id string) (*Project, error)
	// Save stamps LastModified and inserts or replaces the project.
	Save(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id string) error
	Close() error
}
