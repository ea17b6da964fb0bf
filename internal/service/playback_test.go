package service_test

import (
	"context"
	"errors"
	"testing"

	"lyriclab/internal/audio"
	"lyriclab/internal/service"
	"lyriclab/internal/storage"
)

type fakePlayer struct {
	path    string
	playing bool
	pos     int64
	loads   int
}

func (p *fakePlayer) Load(path string) error {
	p.path, p.pos, p.playing = path, 0, false
	p.loads++
	return nil
}
func (p *fakePlayer) Loaded() string { return p.path }
func (p *fakePlayer) Play() error {
	if p.path == "" {
		return audio.ErrNothingLoaded
	}
	p.playing = true
	return nil
}
func (p *fakePlayer) Pause() error        { p.playing = false; return nil }
func (p *fakePlayer) Seek(ms int64) error { p.pos = ms; return nil }
func (p *fakePlayer) Close() error        { p.path, p.playing = "", false; return nil }
func (p *fakePlayer) Status() audio.PlayerStatus {
	return audio.PlayerStatus{Path: p.path, PositionMillis: p.pos, DurationMillis: 3000, IsPlaying: p.playing}
}

func TestPlayback_PlayTogglesSameRef(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	player := &fakePlayer{}
	svc := service.NewPlaybackService(player, env.media, env.emitter)

	st, err := svc.Play(ctx, "a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsPlaying || st.MediaRef != "a.wav" {
		t.Errorf("expected a.wav playing, got %+v", st)
	}

	st, _ = svc.Play(ctx, "a.wav")
	if st.IsPlaying {
		t.Error("second play of the same ref should pause")
	}
	st, _ = svc.Play(ctx, "a.wav")
	if !st.IsPlaying || player.loads != 1 {
		t.Errorf("third play should resume without reloading, loads=%d", player.loads)
	}

	svc.Play(ctx, "b.wav")
	if player.loads != 2 {
		t.Error("a different ref should be loaded")
	}
}

func TestPlayback_SeekAndStop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	player := &fakePlayer{}
	svc := service.NewPlaybackService(player, env.media, env.emitter)

	svc.Play(ctx, "a.wav")
	st, err := svc.Seek(ctx, 1500)
	if err != nil {
		t.Fatal(err)
	}
	if st.PositionMillis != 1500 {
		t.Errorf("expected position 1500, got %d", st.PositionMillis)
	}
	if err := svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.Status().MediaRef != "" || player.Loaded() != "" {
		t.Error("stop should unload the clip")
	}
}

func TestPlayback_RejectsUnsafeRef(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewPlaybackService(&fakePlayer{}, env.media, env.emitter)
	if _, err := svc.Play(context.Background(), "../secret.wav"); !errors.Is(err, storage.ErrInvalidMediaRef) {
		t.Errorf("expected ErrInvalidMediaRef, got %v", err)
	}
}

func TestPlayback_PublishEmitsStatus(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewPlaybackService(&fakePlayer{}, env.media, env.emitter)

	svc.Publish(audio.PlayerStatus{Path: "/data/media/a.wav", PositionMillis: 3000, DurationMillis: 3000, DidJustFinish: true})

	events := env.emitter.Named(service.EventPlaybackStatus)
	if len(events) != 1 {
		t.Fatalf("expected one playback:status event, got %d", len(events))
	}
	st := events[0].Data.(service.PlaybackStatus)
	if st.MediaRef != "a.wav" || !st.DidJustFinish {
		t.Errorf("unexpected status %+v", st)
	}
}
