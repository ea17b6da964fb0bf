package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"lyriclab/internal/audio"
	"lyriclab/internal/events"
	"lyriclab/internal/httpapi"
	"lyriclab/internal/service"
)

// Serve runs the HTTP/WebSocket server with recording, playback, external
// editing and scheduled maintenance until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Hub: local clients see every event emitted in this process.
	hub := httpapi.NewHub(a.origin, nil)
	go hub.Run(ctx)
	a.emitter.Add(hub)

	// Events from other processes (a standalone MCP server) reach the hub.
	if a.rdb != nil {
		sub := events.NewSubscriber(a.rdb, events.DefaultChannel, a.origin, func(_ events.Envelope, msg []byte) {
			hub.Relay(msg)
		})
		go func() {
			if err := sub.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[app] redis subscriber stopped: %v", err)
			}
		}()
	}

	recorder := newCaptureRecorder(audio.CaptureConfig{
		SampleRate:  a.cfg.SampleRate,
		Channels:    a.cfg.Channels,
		InputDevice: a.cfg.InputDevice,
	})
	recordings := service.NewRecordingService(recorder, a.media, a.editor, a.projects, a.emitter)
	playback := newPlayback(a.media, a.emitter)

	external, err := a.newExternalEdit()
	if err != nil {
		return err
	}
	defer external.Close()

	maintenance := service.NewMaintenanceService(a.store, a.history, a.editor, a.media, recordings, a.cfg.HistoryLimit)
	if err := maintenance.Start(ctx, a.cfg.AutosaveSchedule, a.cfg.PruneSchedule); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	defer maintenance.Stop()

	api := httpapi.NewServer(httpapi.Services{
		Projects:   a.projects,
		Editor:     a.editor,
		Recordings: recordings,
		Playback:   playback,
		External:   external.svc,
		Media:      a.media,
	}, hub)

	srv := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: api.Router(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Logger,
			middleware.Recoverer,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[app] listening on %s", a.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Println("[app] shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[app] http shutdown: %v", err)
	}

	recordings.Shutdown(shutdownCtx)
	external.svc.Shutdown(shutdownCtx)
	if err := playback.Stop(shutdownCtx); err != nil {
		log.Printf("[app] stop playback: %v", err)
	}
	if n, err := a.editor.SaveDirty(shutdownCtx); err != nil {
		log.Printf("[app] final save: %v", err)
	} else if n > 0 {
		log.Printf("[app] saved %d open projects", n)
	}
	return nil
}
