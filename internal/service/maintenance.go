package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"lyriclab/internal/domain"
)

// OrphanPruner deletes media files outside a keep set.
type OrphanPruner interface {
	PruneOrphans(keep map[string]struct{}) ([]string, error)
}

// ActiveMedia reports media still being written.
type ActiveMedia interface {
	ActiveRefs() []string
}

// ─────────────────────────────────────────────────────────────
// Maintenance Service: autosave and pruning on a schedule
// ─────────────────────────────────────────────────────────────

type MaintenanceService struct {
	store        domain.ProjectStore
	history      domain.HistoryStore
	editor       *EditorService
	media        OrphanPruner
	active       ActiveMedia
	historyLimit int

	mu    sync.Mutex
	sched *cron.Cron
}

// PruneReport summarizes one pruning pass.
type PruneReport struct {
	RemovedMedia     []string `json:"removedMedia"`
	PrunedHistories  int      `json:"prunedHistories"`
	ClearedHistories int      `json:"clearedHistories"`
}

func NewMaintenanceService(store domain.ProjectStore, history domain.HistoryStore, editor *EditorService, media OrphanPruner, active ActiveMedia, historyLimit int) *MaintenanceService {
	return &MaintenanceService{
		store:        store,
		history:      history,
		editor:       editor,
		media:        media,
		active:       active,
		historyLimit: historyLimit,
	}
}

// Start schedules autosave and pruning. An empty schedule disables that job.
func (s *MaintenanceService) Start(ctx context.Context, autosaveSpec, pruneSpec string) error {
	s.Stop()

	c := cron.New()
	if autosaveSpec != "" {
		if _, err := c.AddFunc(autosaveSpec, func() {
			if _, err := s.Autosave(ctx); err != nil {
				log.Printf("[cron] autosave: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid autosave schedule %q: %w", autosaveSpec, err)
		}
	}
	if pruneSpec != "" {
		if _, err := c.AddFunc(pruneSpec, func() {
			report, err := s.RunOnce(ctx)
			if err != nil {
				log.Printf("[cron] prune: %v", err)
				return
			}
			log.Printf("[cron] prune: %d media file(s) removed, %d history tree(s) pruned",
				len(report.RemovedMedia), report.PrunedHistories)
		}); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", pruneSpec, err)
		}
	}
	c.Start()

	s.mu.Lock()
	s.sched = c
	s.mu.Unlock()
	log.Printf("[cron] scheduled autosave=%q prune=%q", autosaveSpec, pruneSpec)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	c := s.sched
	s.sched = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Autosave writes every dirty editing session.
func (s *MaintenanceService) Autosave(ctx context.Context) (int, error) {
	n, err := s.editor.SaveDirty(ctx)
	if n > 0 {
		log.Printf("[cron] autosaved %d project(s)", n)
	}
	return n, err
}

// RunOnce trims history trees, drops the history of deleted projects and
// removes media no project references.
func (s *MaintenanceService) RunOnce(ctx context.Context) (*PruneReport, error) {
	report := &PruneReport{}

	summaries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	live := make(map[string]struct{}, len(summaries))
	for _, sum := range summaries {
		live[sum.ID] = struct{}{}
	}

	var errs []error
	histories, err := s.history.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	for _, id := range histories {
		if _, ok := live[id]; !ok {
			if _, open := s.editor.lookup(id); open {
				continue
			}
			if err := s.history.Clear(ctx, id); err != nil {
				errs = append(errs, err)
				continue
			}
			report.ClearedHistories++
			continue
		}
		if err := s.history.Prune(ctx, id, s.historyLimit); err != nil {
			errs = append(errs, err)
			continue
		}
		report.PrunedHistories++
	}

	keep, err := s.referencedMedia(ctx, summaries)
	if err != nil {
		return nil, err
	}
	removed, err := s.media.PruneOrphans(keep)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune media: %w", err))
	}
	report.RemovedMedia = removed
	return report, errors.Join(errs...)
}

// referencedMedia collects every ref a project, its undo history or a
// running take still points at.
func (s *MaintenanceService) referencedMedia(ctx context.Context, summaries []domain.ProjectSummary) (map[string]struct{}, error) {
	keep := make(map[string]struct{})
	add := func(refs []string) {
		for _, r := range refs {
			keep[r] = struct{}{}
		}
	}

	ids := make(map[string]struct{}, len(summaries))
	for _, sum := range summaries {
		ids[sum.ID] = struct{}{}
	}
	for _, id := range s.editor.OpenProjects() {
		ids[id] = struct{}{}
	}

	for id := range ids {
		p, err := s.editor.Project(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) {
				continue
			}
			return nil, fmt.Errorf("load project %s: %w", id, err)
		}
		add(p.MediaRefs())

		tree, err := s.history.LoadTree(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load history %s: %w", id, err)
		}
		if tree == nil {
			continue
		}
		for _, n := range tree.Nodes {
			doc, err := domain.DecodeLyrics(json.RawMessage(n.Snapshot))
			if err != nil {
				log.Printf("[cron] bad history snapshot %s: %v", n.ID, err)
				continue
			}
			add(doc.AudioRefs())
		}
	}
	if s.active != nil {
		add(s.active.ActiveRefs())
	}
	return keep, nil
}
