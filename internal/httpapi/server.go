package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lyriclab/internal/domain"
	"lyriclab/internal/events"
	"lyriclab/internal/service"
)

// MediaFiles resolves media references to files.
type MediaFiles interface {
	Path(ref string) (string, error)
}

// Services are the business services the API dispatches to. Recordings,
// Playback and External may be nil when the host has no audio or terminal.
type Services struct {
	Projects   *service.ProjectService
	Editor     *service.EditorService
	Recordings *service.RecordingService
	Playback   *service.PlaybackService
	External   *service.ExternalEditService
	Media      MediaFiles
}

type Server struct {
	svc Services
	hub *Hub
}

// NewServer creates the API server. Inbound websocket messages on hub are
// dispatched to the server unless the hub already has a handler.
func NewServer(svc Services, hub *Hub) *Server {
	s := &Server{svc: svc, hub: hub}
	if hub.inbound == nil {
		hub.inbound = s.HandleInbound
	}
	return s
}

// Router builds the chi router with all routes.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.serveWS)
	r.Get("/media/{ref}", s.handleMedia)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Post("/playback", s.handlePlayback)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.Patch("/", s.handleUpdateProject)
			r.Delete("/", s.handleDeleteProject)
			r.Post("/status/next", s.handleCycleStatus)
			r.Post("/tags", s.handleToggleTag)

			r.Post("/open", s.handleOpen)
			r.Post("/close", s.handleClose)
			r.Get("/editor", s.handleEditorState)
			r.Put("/cursor", s.handleSetCursor)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)

			r.Put("/blocks/{blockId}/text", s.handleEditText)
			r.Delete("/blocks/{blockId}", s.handleDeleteBlock)
			r.Post("/blocks/{blockId}/backspace", s.handleBackspace)
			r.Post("/blocks/{blockId}/external", s.handleBeginExternal)
			r.Delete("/blocks/{blockId}/external", s.handleEndExternal)

			r.Post("/recording/start", s.handleRecordingStart)
			r.Post("/recording/stop", s.handleRecordingStop)
			r.Post("/recording/cancel", s.handleRecordingCancel)
			r.Patch("/recordings/{recId}", s.handleRenameRecording)
			r.Delete("/recordings/{recId}", s.handleDeleteRecording)
		})
	})

	return r
}

// HandleInbound dispatches messages sent by websocket clients.
func (s *Server) HandleInbound(env events.Envelope) {
	if s.svc.External == nil {
		return
	}
	switch env.Event {
	case "terminal:input":
		var data string
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Printf("[ws] terminal:input: %v", err)
			return
		}
		if err := s.svc.External.TerminalInput(data); err != nil {
			log.Printf("[ws] terminal:input: %v", err)
		}
	case "terminal:resize":
		var size struct {
			Cols uint16 `json:"cols"`
			Rows uint16 `json:"rows"`
		}
		if err := json.Unmarshal(env.Data, &size); err != nil {
			log.Printf("[ws] terminal:resize: %v", err)
			return
		}
		if err := s.svc.External.TerminalResize(size.Cols, size.Rows); err != nil {
			log.Printf("[ws] terminal:resize: %v", err)
		}
	}
}

// ── General ─────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lyriclab",
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Projects.Catalog())
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.Media.Path(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// ── Projects ────────────────────────────────────────────────

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Projects.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.svc.Projects.Create(r.Context(), body.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch service.ProjectPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.svc.Projects.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Projects.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Projects.CycleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleToggleTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind service.TagKind `json:"kind"`
		Tag  string          `json:"tag"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.svc.Projects.ToggleTag(r.Context(), chi.URLParam(r, "id"), body.Kind, body.Tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ── Editing sessions ────────────────────────────────────────

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Editor.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Editor.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditorState(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Editor.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetCursor(w http.ResponseWriter, r *http.Request) {
	var cursor *domain.Cursor
	if err := decode(r, &cursor); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Editor.SetCursor(r.Context(), chi.URLParam(r, "id"), cursor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Editor.Undo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Editor.Redo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleEditText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content *string `json:"content"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Content == nil {
		writeError(w, fmt.Errorf("%w: content is required", errBadRequest))
		return
	}
	res, err := s.svc.Editor.EditText(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "blockId"), *body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Editor.DeleteBlock(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "blockId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBackspace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SelectionStart int `json:"selectionStart"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Editor.Backspace(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "blockId"), body.SelectionStart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ── External editor ─────────────────────────────────────────

func (s *Server) handleBeginExternal(w http.ResponseWriter, r *http.Request) {
	if s.svc.External == nil {
		writeError(w, errUnavailable)
		return
	}
	var body struct {
		Terminal bool `json:"terminal"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ed, err := s.svc.External.Begin(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "blockId"), body.Terminal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ed)
}

func (s *Server) handleEndExternal(w http.ResponseWriter, r *http.Request) {
	if s.svc.External == nil {
		writeError(w, errUnavailable)
		return
	}
	if err := s.svc.External.End(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "blockId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Recording ───────────────────────────────────────────────

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.svc.Recordings == nil {
		writeError(w, errUnavailable)
		return
	}
	var body struct {
		Inline bool `json:"inline"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	started, err := s.svc.Recordings.Start(r.Context(), chi.URLParam(r, "id"), body.Inline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.svc.Recordings == nil {
		writeError(w, errUnavailable)
		return
	}
	var body struct {
		Cursor *domain.Cursor `json:"cursor"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Recordings.Stop(r.Context(), chi.URLParam(r, "id"), body.Cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecordingCancel(w http.ResponseWriter, r *http.Request) {
	if s.svc.Recordings == nil {
		writeError(w, errUnavailable)
		return
	}
	if err := s.svc.Recordings.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameRecording(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.svc.Projects.RenameRecording(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "recId"), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Projects.DeleteRecording(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "recId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ── Playback ────────────────────────────────────────────────

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if s.svc.Playback == nil {
		writeError(w, errUnavailable)
		return
	}
	var body struct {
		Action         string `json:"action"`
		MediaRef       string `json:"mediaRef"`
		PositionMillis int64  `json:"positionMillis"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	var (
		st  *service.PlaybackStatus
		err error
	)
	switch body.Action {
	case "play":
		st, err = s.svc.Playback.Play(ctx, body.MediaRef)
	case "pause":
		st, err = s.svc.Playback.Pause(ctx)
	case "seek":
		st, err = s.svc.Playback.Seek(ctx, body.PositionMillis)
	case "stop":
		if err = s.svc.Playback.Stop(ctx); err == nil {
			st = s.svc.Playback.Status()
		}
	default:
		err = fmt.Errorf("%w: unknown action %q", errBadRequest, body.Action)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
