package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/voxdlabs/voxd/internal/audio"
	"github.com/voxdlabs/voxd/internal/config"
	"github.com/voxdlabs/voxd/internal/fault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCaptureConfig(t *testing.T) config.CaptureConfig {
	t.Helper()
	return config.CaptureConfig{
		Driver:        "mock",
		SampleRate:    16000,
		Channels:      1,
		ChunkFrames:   1024,
		MinDurationMS: 500,
		SpoolDir:      t.TempDir(),
	}
}

func constantChunk(n int, value int16) []int16 {
	chunk := make([]int16, n)
	for i := range chunk {
		chunk[i] = value
	}
	return chunk
}

func waitCaptured(t *testing.T, e *Engine, want time.Duration) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Captured() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v of captured audio, have %v", want, e.Captured())
}

func TestStopWithoutStart(t *testing.T) {
	e := NewEngine(testCaptureConfig(t), NewMockDevice(), testLogger())
	if _, err := e.Stop(); !fault.IsKind(err, fault.NotRecording) {
		t.Fatalf("expected not_recording, got %v", err)
	}
}

func TestStopEmptyRecording(t *testing.T) {
	dev := NewMockDevice()
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Stop(); !fault.IsKind(err, fault.EmptyRecording) {
		t.Fatalf("expected empty_recording, got %v", err)
	}
	if dev.Opened() {
		t.Fatal("device must be released after stop")
	}
}

func TestStopTooShort(t *testing.T) {
	// Three 1024-frame chunks at 16 kHz is 0.192s, below the 500ms floor.
	dev := NewMockDevice(
		constantChunk(1024, 100),
		constantChunk(1024, 100),
		constantChunk(1024, 100),
	)
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitCaptured(t, e, 192*time.Millisecond)

	_, err := e.Stop()
	if !fault.IsKind(err, fault.TooShort) {
		t.Fatalf("expected too_short, got %v", err)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected fault.Error, got %T", err)
	}
	if fe.Params["duration"] != "0.19" {
		t.Fatalf("expected measured duration param, got %q", fe.Params["duration"])
	}
}

func TestStopWritesArtifact(t *testing.T) {
	// Sixteen 1000-frame chunks at 16 kHz is exactly one second.
	chunks := make([][]int16, 16)
	for i := range chunks {
		chunk := make([]int16, 1000)
		for j := range chunk {
			chunk[j] = int16(2000 * math.Sin(float64(i*1000+j)/20))
		}
		chunks[i] = chunk
	}
	dev := NewMockDevice(chunks...)
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitCaptured(t, e, time.Second)

	artifact, err := e.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if artifact.Frames != 16000 {
		t.Fatalf("expected 16000 frames, got %d", artifact.Frames)
	}
	if artifact.Duration != time.Second {
		t.Fatalf("expected 1s duration, got %v", artifact.Duration)
	}

	_, info, err := audio.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if info.Channels != 1 || info.BitDepth != 16 || info.SampleRate != 16000 {
		t.Fatalf("unexpected artifact format: %+v", info)
	}
	if info.Frames != 16000 {
		t.Fatalf("expected 16000 frames in artifact, got %d", info.Frames)
	}
}

func TestStartIdempotent(t *testing.T) {
	dev := NewMockDevice(constantChunk(1024, 100))
	dev.Loop = true
	dev.ReadDelay = time.Millisecond
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if dev.Opens() != 1 {
		t.Fatalf("expected one device acquisition, got %d", dev.Opens())
	}
	e.Cleanup()
}

func TestStartClassifiesDeviceErrors(t *testing.T) {
	dev := NewMockDevice()
	dev.OpenErr = fmt.Errorf("%w: default input busy", ErrUnavailable)
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); !fault.IsKind(err, fault.DeviceUnavailable) {
		t.Fatalf("expected device_unavailable, got %v", err)
	}

	dev.OpenErr = errors.New("host api rejected stream parameters")
	if err := e.Start(); !fault.IsKind(err, fault.DeviceError) {
		t.Fatalf("expected device_error, got %v", err)
	}
}

func TestCurrentLoudnessTracksInput(t *testing.T) {
	dev := NewMockDevice(constantChunk(1024, 8192))
	dev.Loop = true
	dev.ReadDelay = time.Millisecond
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Cleanup()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := e.CurrentLoudness(); v > 0 {
			if math.Abs(v-0.25) > 1e-9 {
				t.Fatalf("expected loudness 0.25 for constant 8192 input, got %v", v)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("loudness never updated")
}

func TestCleanupIdempotent(t *testing.T) {
	dev := NewMockDevice(constantChunk(1024, 100))
	dev.Loop = true
	dev.ReadDelay = time.Millisecond
	e := NewEngine(testCaptureConfig(t), dev, testLogger())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	e.Cleanup()
	e.Cleanup()

	if dev.Opened() {
		t.Fatal("device must be released after cleanup")
	}
	if e.Recording() {
		t.Fatal("engine must be idle after cleanup")
	}
	if e.CurrentLoudness() != 0 {
		t.Fatal("loudness must reset after cleanup")
	}
	if _, err := e.Stop(); !fault.IsKind(err, fault.NotRecording) {
		t.Fatalf("expected not_recording after cleanup, got %v", err)
	}

	// Cleanup on a never-started engine is also fine.
	fresh := NewEngine(testCaptureConfig(t), NewMockDevice(), testLogger())
	fresh.Cleanup()
}
