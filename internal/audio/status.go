package audio

import "errors"

var ErrNothingLoaded = errors.New("no audio loaded")

// PlayerStatus is reported while a clip plays and whenever its state changes.
type PlayerStatus struct {
	Path           string `json:"path"`
	PositionMillis int64  `json:"positionMillis"`
	DurationMillis int64  `json:"durationMillis"`
	IsPlaying      bool   `json:"isPlaying"`
	DidJustFinish  bool   `json:"didJustFinish"`
}

// CaptureConfig selects the input device and PCM layout for recordings.
type CaptureConfig struct {
	SampleRate int
	Channels   int
	// InputDevice is a PortAudio device index; empty means the default input.
	InputDevice string
}
