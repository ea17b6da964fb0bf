package service_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"lyriclab/internal/domain"
	"lyriclab/internal/service"
)

func TestProject_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.projects.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != domain.DefaultProjectTitle || p.Status != domain.StatusInProgress {
		t.Errorf("unexpected defaults: %q %q", p.Title, p.Status)
	}

	list, err := env.projects.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("expected the created project, got %+v", list)
	}
}

func TestProject_ListOverlaysOpenSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seed(t, domain.TextBlock{ID: "t1", Content: ""})

	env.editor.EditText(ctx, p.ID, "t1", "primera línea\nsegunda")

	list, err := env.projects.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Snippet != "primera línea" || list[0].LineCount != 2 {
		t.Errorf("expected unsaved session state in the summary, got %+v", list[0])
	}
}

func TestProject_UpdateAndCycleStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seed(t)

	title := "  "
	status := "idea"
	got, err := env.projects.Update(ctx, p.ID, service.ProjectPatch{Title: &title, Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != domain.DefaultProjectTitle {
		t.Errorf("blank title should fall back to the default, got %q", got.Title)
	}
	if got.Status != domain.StatusIdea {
		t.Errorf("expected status to be normalized to %q, got %q", domain.StatusIdea, got.Status)
	}

	for _, want := range []domain.Status{domain.StatusInProgress, domain.StatusFinished, domain.StatusIdea} {
		got, err = env.projects.CycleStatus(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != want {
			t.Errorf("expected %q, got %q", want, got.Status)
		}
	}
}

func TestProject_ToggleTag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seed(t)

	got, err := env.projects.ToggleGenre(ctx, p.ID, "Rock")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Genre) != 1 || got.Genre[0] != "Rock" {
		t.Errorf("expected Rock, got %v", got.Genre)
	}
	got, _ = env.projects.ToggleGenre(ctx, p.ID, "Rock")
	if len(got.Genre) != 0 {
		t.Errorf("second toggle should remove the tag, got %v", got.Genre)
	}

	if _, err := env.projects.ToggleMood(ctx, p.ID, "Furioso"); !errors.Is(err, service.ErrUnknownTag) {
		t.Errorf("expected ErrUnknownTag, got %v", err)
	}
	if _, err := env.projects.ToggleTag(ctx, p.ID, "tempo", "Rock"); !errors.Is(err, service.ErrUnknownTag) {
		t.Errorf("expected ErrUnknownTag for an unknown kind, got %v", err)
	}
}

func TestProject_Recordings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seed(t)

	ref, path := env.media.Allocate("wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := domain.Recording{ID: "r1", Name: "take", MediaRef: ref, Duration: "0:03", Date: time.Now()}
	if _, err := env.projects.AddRecording(ctx, p.ID, rec); err != nil {
		t.Fatal(err)
	}

	got, err := env.projects.RenameRecording(ctx, p.ID, "r1", " Coro ")
	if err != nil {
		t.Fatal(err)
	}
	if got.Recordings[0].Name != "Coro" {
		t.Errorf("expected trimmed name, got %q", got.Recordings[0].Name)
	}
	if _, err := env.projects.RenameRecording(ctx, p.ID, "nope", "x"); !errors.Is(err, service.ErrRecordingMissing) {
		t.Errorf("expected ErrRecordingMissing, got %v", err)
	}

	got, err = env.projects.DeleteRecording(ctx, p.ID, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Recordings) != 0 {
		t.Error("recording should be detached")
	}
	if env.media.Exists(ref) {
		t.Error("recording file should be deleted")
	}
}

func TestProject_DeleteRemovesMediaAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ref, path := env.media.Allocate("wav")
	os.WriteFile(path, []byte("RIFF"), 0o644)
	p := env.seed(t,
		domain.TextBlock{ID: "t1", Content: "x"},
		domain.AudioBlock{ID: "a1", MediaRef: ref, Duration: "0:01"},
	)
	env.editor.EditText(ctx, p.ID, "t1", "y")

	if err := env.projects.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.projects.Get(ctx, p.ID); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
	if env.media.Exists(ref) {
		t.Error("audio block media should be deleted with the project")
	}
	if n, _ := env.history.Current(ctx, p.ID); n != nil {
		t.Error("history should be cleared")
	}
	if len(env.emitter.Named(service.EventProjectDeleted)) != 1 {
		t.Error("expected a project:deleted event")
	}
}
