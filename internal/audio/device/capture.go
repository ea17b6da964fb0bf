// Package device records and plays WAV files on PortAudio devices.
package device

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"lyriclab/internal/audio"
)

const framesPerBuffer = 1024

// Capture opens microphone recordings into WAV files.
type Capture struct {
	cfg audio.CaptureConfig
}

func NewCapture(cfg audio.CaptureConfig) *Capture {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Capture{cfg: cfg}
}

// CaptureSession is one running recording.
type CaptureSession struct {
	path   string
	stream *portaudio.Stream
	file   *os.File
	w      *bufio.Writer
	format audio.WAVFormat
	levels chan float64

	mu       sync.Mutex
	written  int64
	writeErr error
	closed   bool
}

// Start begins recording into path. The file holds a placeholder header
// until Stop patches in the final sizes.
func (c *Capture) Start(path string) (*CaptureSession, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	s, err := c.open(path)
	if err != nil {
		if terr := portaudio.Terminate(); terr != nil {
			log.Printf("[audio] terminate portaudio: %v", terr)
		}
		return nil, err
	}
	return s, nil
}

func (c *Capture) open(path string) (*CaptureSession, error) {
	dev, err := inputDevice(c.cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	if c.cfg.SampleRate > 0 {
		params.SampleRate = float64(c.cfg.SampleRate)
	} else if dev.DefaultSampleRate > 0 {
		params.SampleRate = dev.DefaultSampleRate
	}
	channels := c.cfg.Channels
	if dev.MaxInputChannels > 0 && dev.MaxInputChannels < channels {
		channels = dev.MaxInputChannels
	}
	params.Input.Channels = channels
	params.FramesPerBuffer = framesPerBuffer

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	s := &CaptureSession{
		path:   path,
		file:   file,
		w:      bufio.NewWriter(file),
		format: audio.WAVFormat{SampleRate: int(params.SampleRate), Channels: channels, BitsPerSample: 16},
		levels: make(chan float64, 16),
	}
	if err := audio.WriteWAVHeader(s.w, s.format, 0); err != nil {
		s.discard()
		return nil, fmt.Errorf("write wav header: %w", err)
	}

	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		s.discard()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	log.Printf("[audio] recording on %s at %d Hz, %d ch", dev.Name, s.format.SampleRate, channels)
	return s, nil
}

func inputDevice(id string) (*portaudio.DeviceInfo, error) {
	if id != "" {
		devices, err := portaudio.Devices()
		if err == nil {
			if idx, err := strconv.Atoi(id); err == nil && idx >= 0 && idx < len(devices) {
				return devices[idx], nil
			}
		}
		log.Printf("[audio] input device %q not found, using default", id)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("no input device: %w", err)
	}
	return dev, nil
}

// process runs on the PortAudio callback thread.
func (s *CaptureSession) process(in []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.writeErr != nil {
		return
	}
	if err := binary.Write(s.w, binary.LittleEndian, in); err != nil {
		s.writeErr = err
		return
	}
	s.written += int64(len(in) * 2)

	select {
	case s.levels <- audio.RMSLevel(in):
	default:
	}
}

// Path returns the file being recorded.
func (s *CaptureSession) Path() string { return s.path }

// Levels streams input levels in 0..1 while recording. The channel is
// closed when the session ends.
func (s *CaptureSession) Levels() <-chan float64 { return s.levels }

// Stop ends the recording, finalizes the WAV header and returns the
// recorded duration computed from the data written.
func (s *CaptureSession) Stop() (time.Duration, error) {
	if err := s.stopStream(); err != nil {
		log.Printf("[audio] stop stream: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("recording already stopped")
	}
	s.closed = true
	close(s.levels)
	defer terminate()

	err := s.w.Flush()
	if err == nil {
		err = audio.FinalizeWAV(s.file, s.written)
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.writeErr
	}
	if err != nil {
		return 0, fmt.Errorf("finalize recording: %w", err)
	}
	return audio.DataDuration(s.format, s.written), nil
}

// Cancel stops the recording and deletes the file.
func (s *CaptureSession) Cancel() error {
	_, err := s.Stop()
	if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return rerr
	}
	return err
}

func (s *CaptureSession) stopStream() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	s.stream = nil
	return err
}

func (s *CaptureSession) discard() {
	s.file.Close()
	os.Remove(s.path)
}

func terminate() {
	if err := portaudio.Terminate(); err != nil {
		log.Printf("[audio] terminate portaudio: %v", err)
	}
}
