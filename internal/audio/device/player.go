package device

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"lyriclab/internal/audio"
)

const statusInterval = 250 * time.Millisecond

// Player plays one WAV clip at a time on the default output device.
type Player struct {
	onStatus func(audio.PlayerStatus)
	volume   float64

	mu       sync.Mutex
	path     string
	samples  []int16
	format   audio.WAVFormat
	pos      int
	stream   *portaudio.Stream
	playing  bool
	finished bool
	stopTick chan struct{}
}

// NewPlayer returns a player that reports status changes to onStatus.
func NewPlayer(onStatus func(audio.PlayerStatus)) *Player {
	if onStatus == nil {
		onStatus = func(audio.PlayerStatus) {}
	}
	return &Player{onStatus: onStatus, volume: 1.0}
}

// Load replaces the current clip. The new clip starts paused at 0.
func (p *Player) Load(path string) error {
	samples, format, err := audio.ReadWAV(path)
	if err != nil {
		return fmt.Errorf("read clip: %w", err)
	}

	p.Close()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	out, err := portaudio.DefaultOutputDevice()
	if err != nil {
		terminate()
		return fmt.Errorf("no output device: %w", err)
	}
	params := portaudio.HighLatencyParameters(nil, out)
	params.SampleRate = float64(format.SampleRate)
	params.Output.Channels = format.Channels
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, p.process)
	if err != nil {
		terminate()
		return fmt.Errorf("open output stream: %w", err)
	}

	p.mu.Lock()
	p.path = path
	p.samples = samples
	p.format = format
	p.pos = 0
	p.stream = stream
	p.playing = false
	p.finished = false
	p.mu.Unlock()

	p.onStatus(p.Status())
	return nil
}

// Loaded returns the path of the current clip, if any.
func (p *Player) Loaded() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Play starts or resumes playback. A finished clip restarts from the beginning.
func (p *Player) Play() error {
	p.mu.Lock()
	stream := p.stream
	if stream == nil {
		p.mu.Unlock()
		return audio.ErrNothingLoaded
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	if p.finished || p.pos >= len(p.samples) {
		p.pos = 0
	}
	p.finished = false
	p.playing = true
	p.stopTick = make(chan struct{})
	stop := p.stopTick
	p.mu.Unlock()

	if err := stream.Start(); err != nil {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		return fmt.Errorf("start playback: %w", err)
	}

	go p.tick(stream, stop)
	p.onStatus(p.Status())
	return nil
}

// Pause stops output and keeps the position.
func (p *Player) Pause() error {
	p.mu.Lock()
	stream := p.stream
	if stream == nil || !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	close(p.stopTick)
	p.mu.Unlock()

	// The stream waits for the callback to return, so it is stopped without holding mu.
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("pause playback: %w", err)
	}
	p.onStatus(p.Status())
	return nil
}

// Seek moves the playhead to positionMillis, clamped to the clip.
func (p *Player) Seek(positionMillis int64) error {
	p.mu.Lock()
	if p.stream == nil {
		p.mu.Unlock()
		return audio.ErrNothingLoaded
	}
	if positionMillis < 0 {
		positionMillis = 0
	}
	frame := int(positionMillis * int64(p.format.SampleRate) / 1000)
	pos := frame * p.format.Channels
	if pos > len(p.samples) {
		pos = len(p.samples)
	}
	p.pos = pos
	p.finished = false
	p.mu.Unlock()

	p.onStatus(p.Status())
	return nil
}

// Status reports the current playhead.
func (p *Player) Status() audio.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Player) statusLocked() audio.PlayerStatus {
	return audio.PlayerStatus{
		Path:           p.path,
		PositionMillis: audio.SamplesToMillis(p.pos, p.format),
		DurationMillis: audio.SamplesToMillis(len(p.samples), p.format),
		IsPlaying:      p.playing,
		DidJustFinish:  p.finished,
	}
}

// Close stops playback and releases the output stream.
func (p *Player) Close() error {
	p.mu.Lock()
	stream := p.stream
	if stream == nil {
		p.mu.Unlock()
		return nil
	}
	if p.playing {
		close(p.stopTick)
	}
	p.stream = nil
	p.playing = false
	p.path = ""
	p.samples = nil
	p.pos = 0
	p.mu.Unlock()

	if err := stream.Stop(); err != nil {
		log.Printf("[audio] stop playback: %v", err)
	}
	err := stream.Close()
	terminate()
	return err
}

// process runs on the PortAudio callback thread.
func (p *Player) process(out []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range out {
		if !p.playing || p.pos >= len(p.samples) {
			out[i] = 0
			continue
		}
		v := float64(p.samples[p.pos]) * p.volume
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
		p.pos++
	}
}

// tick reports progress and detects the end of the clip. The stream is
// stopped from here rather than from the callback.
func (p *Player) tick(stream *portaudio.Stream, stop <-chan struct{}) {
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		p.mu.Lock()
		if p.stream != stream || !p.playing {
			p.mu.Unlock()
			return
		}
		done := p.pos >= len(p.samples)
		if done {
			p.playing = false
			p.finished = true
			close(p.stopTick)
		}
		st := p.statusLocked()
		p.mu.Unlock()

		if done {
			if err := stream.Stop(); err != nil {
				log.Printf("[audio] stop finished clip: %v", err)
			}
			p.onStatus(st)
			return
		}
		p.onStatus(st)
	}
}
