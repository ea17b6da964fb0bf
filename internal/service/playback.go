package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"lyriclab/internal/audio"
)

// Player is the audio output the playback service drives.
type Player interface {
	Load(path string) error
	Loaded() string
	Play() error
	Pause() error
	Seek(positionMillis int64) error
	Status() audio.PlayerStatus
	Close() error
}

// MediaResolver maps media references to local files.
type MediaResolver interface {
	Path(ref string) (string, error)
}

// ─────────────────────────────────────────────────────────────
// Playback Service: one clip at a time
// ─────────────────────────────────────────────────────────────

type PlaybackService struct {
	player  Player
	media   MediaResolver
	emitter EventEmitter

	mu  sync.Mutex
	ref string
}

// PlaybackStatus is the payload of EventPlaybackStatus.
type PlaybackStatus struct {
	MediaRef       string `json:"mediaRef"`
	PositionMillis int64  `json:"positionMillis"`
	DurationMillis int64  `json:"durationMillis"`
	IsPlaying      bool   `json:"isPlaying"`
	DidJustFinish  bool   `json:"didJustFinish"`
}

func NewPlaybackService(player Player, media MediaResolver, emitter EventEmitter) *PlaybackService {
	return &PlaybackService{player: player, media: media, emitter: emitter}
}

// SetPlayer installs the player. The player reports back through Publish, so
// the two are constructed in either order.
func (s *PlaybackService) SetPlayer(p Player) {
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
}

// Play starts mediaRef. Playing the loaded clip again toggles play/pause.
func (s *PlaybackService) Play(ctx context.Context, mediaRef string) (*PlaybackStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mediaRef == s.ref && s.player.Loaded() != "" {
		st := s.player.Status()
		var err error
		if st.IsPlaying {
			err = s.player.Pause()
		} else {
			err = s.player.Play()
		}
		if err != nil {
			return nil, err
		}
		return s.statusLocked(), nil
	}

	path, err := s.media.Path(mediaRef)
	if err != nil {
		return nil, err
	}
	if err := s.player.Load(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", mediaRef, err)
	}
	s.ref = mediaRef
	if err := s.player.Play(); err != nil {
		return nil, err
	}
	return s.statusLocked(), nil
}

func (s *PlaybackService) Pause(ctx context.Context) (*PlaybackStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.player.Pause(); err != nil {
		return nil, err
	}
	return s.statusLocked(), nil
}

func (s *PlaybackService) Seek(ctx context.Context, positionMillis int64) (*PlaybackStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.player.Seek(positionMillis); err != nil {
		return nil, err
	}
	return s.statusLocked(), nil
}

// Stop unloads the current clip.
func (s *PlaybackService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref = ""
	return s.player.Close()
}

func (s *PlaybackService) Status() *PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *PlaybackService) statusLocked() *PlaybackStatus {
	st := s.player.Status()
	return &PlaybackStatus{
		MediaRef:       s.ref,
		PositionMillis: st.PositionMillis,
		DurationMillis: st.DurationMillis,
		IsPlaying:      st.IsPlaying,
		DidJustFinish:  st.DidJustFinish,
	}
}

// Publish relays a player status report to clients. It must not take s.mu:
// the player calls it while the service may be waiting on the player.
func (s *PlaybackService) Publish(st audio.PlayerStatus) {
	s.emitter.Emit(context.Background(), EventPlaybackStatus, PlaybackStatus{
		MediaRef:       mediaRefOf(st.Path),
		PositionMillis: st.PositionMillis,
		DurationMillis: st.DurationMillis,
		IsPlaying:      st.IsPlaying,
		DidJustFinish:  st.DidJustFinish,
	})
}

func mediaRefOf(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
