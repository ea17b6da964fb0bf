package app

// ─────────────────────────────────────────────────────────────
// Audio Adapter Bridge
// ─────────────────────────────────────────────────────────────
//
// The service layer drives recording and playback through small interfaces
// (service.Recorder, service.Player) so it can be tested without a sound
// card. This file provides the concrete adapters over the portaudio-backed
// audio/device package.

import (
	"lyriclab/internal/audio"
	"lyriclab/internal/audio/device"
	"lyriclab/internal/service"
)

// ── Recorder ───────────────────────────────────────────────

type captureRecorder struct{ capture *device.Capture }

func newCaptureRecorder(cfg audio.CaptureConfig) *captureRecorder {
	return &captureRecorder{capture: device.NewCapture(cfg)}
}

func (r *captureRecorder) Start(path string) (service.Take, error) {
	session, err := r.capture.Start(path)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ── Player ─────────────────────────────────────────────────

// newPlayback builds the playback service and its player. Status updates
// from the player's output callback are published through the service.
func newPlayback(media service.MediaResolver, emitter service.EventEmitter) *service.PlaybackService {
	playback := service.NewPlaybackService(nil, media, emitter)
	playback.SetPlayer(device.NewPlayer(playback.Publish))
	return playback
}
