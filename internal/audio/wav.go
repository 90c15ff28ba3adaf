package audio

import (
	"fmt"
	"os"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Info describes a decoded WAV artifact.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Duration   time.Duration
}

// WriteFile writes mono 16-bit PCM samples as a canonical WAV file. The
// fixed mono/16-bit layout is a compatibility contract with downstream
// transcription providers.
func WriteFile(path string, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	buffer := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		enc.Close()
		file.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return file.Close()
}

// ReadFile decodes a WAV file back to PCM samples plus format metadata.
func ReadFile(path string) ([]int16, Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("open wav file: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buffer, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Info{}, fmt.Errorf("decode wav: %w", err)
	}
	if !dec.WasPCMAccessed() {
		return nil, Info{}, fmt.Errorf("unsupported wav encoding: not PCM")
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	samples := make([]int16, len(buffer.Data))
	for i, v := range buffer.Data {
		samples[i] = int16(v)
	}

	frames := len(samples) / channels
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   int(dec.BitDepth),
		Frames:     frames,
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(float64(frames) / float64(info.SampleRate) * float64(time.Second))
	}
	return samples, info, nil
}
