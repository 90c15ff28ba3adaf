// Package capture owns the microphone pipeline: it acquires the input
// device, buffers PCM frames, exposes a live loudness reading, and turns a
// finished take into a WAV artifact in the spool directory.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxdlabs/voxd/internal/audio"
	"github.com/voxdlabs/voxd/internal/config"
	"github.com/voxdlabs/voxd/internal/fault"
)

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Artifact describes a finished capture written to the spool directory.
type Artifact struct {
	Path     string
	Duration time.Duration
	Frames   int
}

// Engine buffers PCM from a Device and finalizes takes into WAV artifacts.
// All methods are safe for concurrent use.
type Engine struct {
	cfg    config.CaptureConfig
	device Device
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	frames  []int16
	readErr error

	wg       sync.WaitGroup
	stopping atomic.Bool
	loudness atomic.Uint64 // float64 bits
}

func NewEngine(cfg config.CaptureConfig, device Device, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		device: device,
		logger: logger.With(slog.String("component", "capture")),
	}
}

// Start acquires the device and begins buffering. Calling Start while a
// capture is already running is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.logger.Debug("capture already running")
		return nil
	}
	if err := os.MkdirAll(e.cfg.SpoolDir, 0o755); err != nil {
		return fault.Wrap(fault.DeviceError, "error.device", "prepare spool directory", err)
	}
	if err := e.device.Open(e.cfg.SampleRate, e.cfg.Channels, e.cfg.ChunkFrames); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return fault.Wrap(fault.DeviceUnavailable, "error.device_unavailable", "input device busy or missing", err)
		}
		return fault.Wrap(fault.DeviceError, "error.device", "acquire input device", err)
	}

	e.frames = nil
	e.readErr = nil
	e.stopping.Store(false)
	e.loudness.Store(0)
	e.running = true
	e.wg.Add(1)
	go e.readLoop()
	e.logger.Info("capture started",
		slog.Int("sample_rate", e.cfg.SampleRate),
		slog.Int("chunk_frames", e.cfg.ChunkFrames))
	return nil
}

func (e *Engine) readLoop() {
	defer e.wg.Done()
	for {
		chunk, err := e.device.Read()
		if err != nil {
			if !e.stopping.Load() {
				e.mu.Lock()
				e.readErr = err
				e.mu.Unlock()
				e.logger.Warn("input stream failed", slogError(err))
			}
			return
		}
		e.loudness.Store(math.Float64bits(audio.Loudness(chunk)))
		e.mu.Lock()
		e.frames = append(e.frames, chunk...)
		e.mu.Unlock()
	}
}

// CurrentLoudness returns the normalized loudness of the most recent chunk,
// or 0 when nothing has been captured yet.
func (e *Engine) CurrentLoudness() float64 {
	return math.Float64frombits(e.loudness.Load())
}

// Err reports a device failure observed by the reader goroutine, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readErr
}

// Recording reports whether a capture is in progress.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Captured returns the duration of audio buffered so far.
func (e *Engine) Captured() time.Duration {
	e.mu.Lock()
	n := len(e.frames)
	e.mu.Unlock()
	if e.cfg.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(e.cfg.SampleRate) * float64(time.Second))
}

// Stop ends the capture, releases the device and writes the buffered frames
// to a WAV file in the spool directory. The stream is halted before the
// device handle is released, and both are attempted even when one fails.
func (e *Engine) Stop() (Artifact, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return Artifact{}, fault.New(fault.NotRecording, "error.not_recording", "no capture in progress")
	}
	e.running = false
	e.stopping.Store(true)
	e.mu.Unlock()

	stopErr := e.device.Stop()
	e.wg.Wait()
	closeErr := e.device.Close()

	e.mu.Lock()
	readErr := e.readErr
	frames := e.frames
	e.frames = nil
	e.readErr = nil
	e.mu.Unlock()

	if readErr != nil {
		return Artifact{}, fault.Wrap(fault.DeviceError, "error.device", "input stream failed during capture", readErr)
	}
	if stopErr != nil {
		return Artifact{}, fault.Wrap(fault.DeviceError, "error.device", "stop input stream", stopErr)
	}
	if closeErr != nil {
		return Artifact{}, fault.Wrap(fault.DeviceError, "error.device", "release input device", closeErr)
	}
	if len(frames) == 0 {
		return Artifact{}, fault.New(fault.EmptyRecording, "error.empty_recording", "no audio captured")
	}

	duration := time.Duration(float64(len(frames)) / float64(e.cfg.SampleRate) * float64(time.Second))
	if min := time.Duration(e.cfg.MinDurationMS) * time.Millisecond; duration < min {
		return Artifact{}, fault.Newf(fault.TooShort, "error.too_short",
			"captured %.2fs, need at least %.2fs", duration.Seconds(), min.Seconds()).
			WithParam("duration", fmt.Sprintf("%.2f", duration.Seconds()))
	}

	path := filepath.Join(e.cfg.SpoolDir, "voxd_"+uuid.NewString()+".wav")
	if err := audio.WriteFile(path, frames, e.cfg.SampleRate); err != nil {
		return Artifact{}, fault.Wrap(fault.DeviceError, "error.device", "write capture artifact", err)
	}
	e.logger.Info("capture finished",
		slog.String("path", path),
		slog.Float64("duration_s", duration.Seconds()))
	return Artifact{Path: path, Duration: duration, Frames: len(frames)}, nil
}

// Cleanup releases the device and discards buffered audio. It never fails
// and may be called any number of times, in any state.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	if wasRunning {
		e.stopping.Store(true)
		if err := e.device.Stop(); err != nil {
			e.logger.Debug("cleanup: stop input stream", slogError(err))
		}
		e.wg.Wait()
		if err := e.device.Close(); err != nil {
			e.logger.Debug("cleanup: release input device", slogError(err))
		}
	}

	e.mu.Lock()
	e.frames = nil
	e.readErr = nil
	e.mu.Unlock()
	e.loudness.Store(0)
}
