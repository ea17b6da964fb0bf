// Package audio holds the 16-bit PCM WAV format and the device-independent
// types shared by recording and playback. The PortAudio code lives in
// audio/device.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

const wavHeaderSize = 44

var ErrNotWAV = errors.New("not a valid WAV file")

// WAVFormat describes the PCM layout of a WAV file.
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (f WAVFormat) bytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// WriteWAVHeader writes a canonical 44-byte PCM header for dataSize bytes of samples.
func WriteWAVHeader(w io.Writer, f WAVFormat, dataSize int64) error {
	header := make([]byte, wavHeaderSize)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(f.SampleRate*f.bytesPerFrame()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.bytesPerFrame()))
	binary.LittleEndian.PutUint16(header[34:36], uint16(f.BitsPerSample))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	_, err := w.Write(header)
	return err
}

// ReadWAVHeader parses a canonical header and returns the format and data size.
func ReadWAVHeader(r io.Reader) (WAVFormat, int64, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVFormat{}, 0, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" || string(header[36:40]) != "data" {
		return WAVFormat{}, 0, ErrNotWAV
	}
	f := WAVFormat{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	if f.BitsPerSample != 16 || f.Channels == 0 || f.SampleRate == 0 {
		return WAVFormat{}, 0, fmt.Errorf("%w: unsupported format %+v", ErrNotWAV, f)
	}
	return f, int64(binary.LittleEndian.Uint32(header[40:44])), nil
}

// ReadWAV loads all samples of a 16-bit PCM WAV file.
func ReadWAV(path string) ([]int16, WAVFormat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, WAVFormat{}, err
	}
	defer file.Close()

	f, dataSize, err := ReadWAVHeader(file)
	if err != nil {
		return nil, WAVFormat{}, err
	}

	data := make([]byte, dataSize)
	n, err := io.ReadFull(file, data)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, WAVFormat{}, fmt.Errorf("read wav data: %w", err)
	}
	data = data[:n]

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples, f, nil
}

// FinalizeWAV patches the RIFF and data sizes once recording has ended.
func FinalizeWAV(file io.WriteSeeker, dataSize int64) error {
	if _, err := file.Seek(4, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(36+dataSize)); err != nil {
		return err
	}
	if _, err := file.Seek(40, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(file, binary.LittleEndian, uint32(dataSize))
}

// DataDuration converts a PCM byte count into playing time.
func DataDuration(f WAVFormat, dataSize int64) time.Duration {
	frame := f.bytesPerFrame()
	if frame <= 0 || f.SampleRate <= 0 {
		return 0
	}
	frames := dataSize / int64(frame)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// RMSLevel returns the root-mean-square level of samples scaled to 0..1.
func RMSLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}

// SamplesToMillis converts an interleaved sample count into milliseconds.
func SamplesToMillis(n int, f WAVFormat) int64 {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return int64(n/f.Channels) * 1000 / int64(f.SampleRate)
}
