package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lyriclab/internal/domain"
	"lyriclab/internal/events"
	"lyriclab/internal/service"
	"lyriclab/internal/storage"
)

type testAPI struct {
	srv   *httptest.Server
	hub   *Hub
	store *storage.ProjectStore
	media *storage.MediaStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.OpenSQLite(filepath.Join(dir, "lyriclab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	media, err := storage.NewMediaStore(filepath.Join(dir, "media"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub("test", nil)
	go hub.Run(ctx)

	store := storage.NewProjectStore(db)
	history := storage.NewHistoryStore(db, 40)
	editor := service.NewEditorService(store, history, hub)
	projects := service.NewProjectService(store, history, editor, media, hub)

	s := NewServer(Services{Projects: projects, Editor: editor, Media: media}, hub)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, hub: hub, store: store, media: media}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (a *testAPI) seed(t *testing.T, blocks ...domain.Block) *domain.Project {
	t.Helper()
	p := domain.NewProject("Canción")
	if len(blocks) > 0 {
		p.Lyrics = domain.NewDocument(blocks...)
	}
	require.NoError(t, a.store.Save(context.Background(), p))
	return p
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok"`)
}

func TestProjectsCRUD(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/projects", map[string]string{"title": "Balada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created domain.Project
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Balada", created.Title)
	assert.Equal(t, 1, created.Lyrics.Len())

	resp, body = api.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.ProjectSummary
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)

	resp, body = api.do(t, http.MethodPatch, "/api/projects/"+created.ID, map[string]string{"status": "finalizado"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated domain.Project
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, domain.StatusFinished, updated.Status)

	resp, _ = api.do(t, http.MethodPost, "/api/projects/"+created.ID+"/tags", map[string]string{"kind": "mood", "tag": "Alegre"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPost, "/api/projects/"+created.ID+"/tags", map[string]string{"kind": "mood", "tag": "Nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, "/api/projects/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = api.do(t, http.MethodGet, "/api/projects/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "project not found")
}

func TestEditingFlow(t *testing.T) {
	api := newTestAPI(t)
	p := api.seed(t,
		domain.TextBlock{ID: "t1", Content: "ab"},
		domain.AudioBlock{ID: "a1", MediaRef: "a.wav", Duration: "0:02"},
		domain.TextBlock{ID: "t2", Content: "cd"},
	)
	base := "/api/projects/" + p.ID

	resp, _ := api.do(t, http.MethodPost, base+"/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.do(t, http.MethodPut, base+"/blocks/t1/text", map[string]string{"content": "abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res service.EditResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, 5, res.Stats.Characters)

	resp, _ = api.do(t, http.MethodPut, base+"/blocks/t1/text", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, base+"/blocks/t2/backspace", map[string]int{"selectionStart": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.Lyrics.Len())
	assert.Nil(t, res.Focus)

	resp, _ = api.do(t, http.MethodPost, base+"/undo", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, base+"/editor", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st service.EditorState
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 3, st.Project.Lyrics.Len())
	assert.True(t, st.Dirty)

	resp, _ = api.do(t, http.MethodPost, base+"/close", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	stored, err := api.store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", stored.Lyrics.At(0).(domain.TextBlock).Content)
}

func TestUndoWithoutHistoryConflicts(t *testing.T) {
	api := newTestAPI(t)
	p := api.seed(t)
	resp, _ := api.do(t, http.MethodPost, "/api/projects/"+p.ID+"/undo", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUnavailableServices(t *testing.T) {
	api := newTestAPI(t)
	p := api.seed(t)
	resp, _ := api.do(t, http.MethodPost, "/api/projects/"+p.ID+"/recording/start", map[string]bool{"inline": true})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPost, "/api/playback", map[string]string{"action": "play", "mediaRef": "a.wav"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMedia(t *testing.T) {
	api := newTestAPI(t)
	ref, path := api.media.Allocate("wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o644))

	resp, body := api.do(t, http.MethodGet, "/media/"+ref, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "RIFFdata", string(body))

	resp, _ = api.do(t, http.MethodGet, "/media/.hidden", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketReceivesEvents(t *testing.T) {
	api := newTestAPI(t)
	p := api.seed(t, domain.TextBlock{ID: "t1", Content: ""})

	url := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// Registration is asynchronous; retry the edit until an event arrives.
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	got := make(chan events.Envelope, 1)
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env events.Envelope
			if json.Unmarshal(msg, &env) == nil && env.Event == service.EventLyricsChanged {
				got <- env
				return
			}
		}
	}()

	for i := 0; ; i++ {
		api.do(t, http.MethodPut, "/api/projects/"+p.ID+"/blocks/t1/text", map[string]string{"content": strings.Repeat("x", i+1)})
		select {
		case env := <-got:
			assert.Equal(t, "test", env.Origin)
			assert.Contains(t, string(env.Data), p.ID)
			return
		case <-time.After(100 * time.Millisecond):
		}
		if i > 20 {
			t.Fatal("no lyrics:changed event received")
		}
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrProjectNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrRecordingActive))
	assert.Equal(t, http.StatusBadRequest, statusFor(storage.ErrInvalidMediaRef))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
