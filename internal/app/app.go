package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"lyriclab/internal/config"
	"lyriclab/internal/domain"
	"lyriclab/internal/events"
	"lyriclab/internal/service"
	"lyriclab/internal/storage"
)

// App owns the storage and the core services shared by every entry point.
// Serve, ServeMCP and Prune add their own surfaces on top.
type App struct {
	cfg    *config.Config
	origin string

	local   *storage.DB // history, and projects with the sqlite driver
	store   domain.ProjectStore
	history *storage.HistoryStore
	media   *storage.MediaStore

	rdb     *redis.Client
	emitter *events.Fanout

	editor   *service.EditorService
	projects *service.ProjectService
}

// New opens storage and builds the editor and project services. origin tags
// the events this process publishes on the bus.
func New(ctx context.Context, cfg *config.Config, origin string) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &App{cfg: cfg, origin: origin, emitter: events.NewFanout()}

	local, err := storage.OpenSQLite(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	a.local = local
	a.history = storage.NewHistoryStore(local, cfg.HistoryLimit)

	if a.store, err = a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if a.media, err = storage.NewMediaStore(cfg.MediaDir()); err != nil {
		a.Close()
		return nil, err
	}
	a.media.SetPruneGrace(cfg.MediaGrace)

	if cfg.RedisURL != "" {
		rdb, err := events.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		a.emitter.Add(events.NewPublisher(rdb, events.DefaultChannel, origin))
		log.Printf("[app] publishing events to redis as %q", origin)
	}

	a.editor = service.NewEditorService(a.store, a.history, a.emitter)
	a.projects = service.NewProjectService(a.store, a.history, a.editor, a.media, a.emitter)
	return a, nil
}

// openStore picks the project store for the configured driver.
func (a *App) openStore(ctx context.Context) (domain.ProjectStore, error) {
	switch a.cfg.StoreDriver {
	case "mongo":
		s, err := storage.OpenMongo(ctx, a.cfg.StoreDSN, a.cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		log.Printf("[app] projects in mongo database %s", a.cfg.MongoDatabase)
		return s, nil
	case "postgres", "mysql":
		db, err := storage.Open(a.cfg.StoreDriver, a.cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", a.cfg.StoreDriver, err)
		}
		log.Printf("[app] projects in %s", a.cfg.StoreDriver)
		return storage.NewProjectStore(db), nil
	default:
		return storage.NewProjectStore(a.local), nil
	}
}

// Close saves open sessions and releases storage. Safe on a partly built App.
func (a *App) Close() error {
	var errs []error
	if a.editor != nil {
		if err := a.editor.CloseAll(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	// The sqlite project store shares the local db.
	if a.store != nil && a.cfg.StoreDriver != "sqlite" {
		errs = append(errs, a.store.Close())
	}
	if a.local != nil {
		errs = append(errs, a.local.Close())
	}
	return errors.Join(errs...)
}

// Prune runs one maintenance pass and logs what it removed.
func (a *App) Prune(ctx context.Context) (*service.PruneReport, error) {
	m := service.NewMaintenanceService(a.store, a.history, a.editor, a.media, nil, a.cfg.HistoryLimit)
	report, err := m.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("[app] pruned %d media files, %d histories trimmed, %d cleared",
		len(report.RemovedMedia), report.PrunedHistories, report.ClearedHistories)
	return report, nil
}
