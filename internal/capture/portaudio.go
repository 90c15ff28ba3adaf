package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// portaudioDevice reads from the system default input via PortAudio.
type portaudioDevice struct {
	stream      *portaudio.Stream
	in          []int16
	initialized bool
}

// NewPortAudioDevice returns a Device backed by the default system input.
func NewPortAudioDevice() Device {
	return &portaudioDevice{}
}

func (d *portaudioDevice) Open(sampleRate, channels, chunkFrames int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	d.initialized = true

	d.in = make([]int16, chunkFrames*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), chunkFrames, d.in)
	if err != nil {
		d.terminate()
		return fmt.Errorf("%w: open default input stream: %v", ErrUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		d.terminate()
		return fmt.Errorf("start input stream: %w", err)
	}
	d.stream = stream
	return nil
}

func (d *portaudioDevice) Read() ([]int16, error) {
	if d.stream == nil {
		return nil, errDeviceClosed
	}
	if err := d.stream.Read(); err != nil {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	chunk := make([]int16, len(d.in))
	copy(chunk, d.in)
	return chunk, nil
}

func (d *portaudioDevice) Stop() error {
	if d.stream == nil {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("stop input stream: %w", err)
	}
	return nil
}

func (d *portaudioDevice) Close() error {
	if d.stream != nil {
		err := d.stream.Close()
		d.stream = nil
		d.terminate()
		if err != nil {
			return fmt.Errorf("close input stream: %w", err)
		}
		return nil
	}
	d.terminate()
	return nil
}

func (d *portaudioDevice) terminate() {
	if d.initialized {
		_ = portaudio.Terminate()
		d.initialized = false
	}
}
