package capture

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/voxdlabs/voxd/internal/fault"
	"github.com/voxdlabs/voxd/internal/silence"
)

type sessionRecorder struct {
	mu        sync.Mutex
	artifact  Artifact
	err       error
	silence   bool
	cancelled bool
	complete  bool
}

func (r *sessionRecorder) events() Events {
	return Events{
		OnSilence: func(time.Duration) {
			r.mu.Lock()
			r.silence = true
			r.mu.Unlock()
		},
		OnComplete: func(a Artifact) {
			r.mu.Lock()
			r.complete = true
			r.artifact = a
			r.mu.Unlock()
		},
		OnCancelled: func() {
			r.mu.Lock()
			r.cancelled = true
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		},
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSessionAutoStopsOnSilence(t *testing.T) {
	cfg := testCaptureConfig(t)
	cfg.MinDurationMS = 0
	dev := NewMockDevice(constantChunk(1024, 0))
	dev.Loop = true
	dev.ReadDelay = time.Millisecond
	engine := NewEngine(cfg, dev, testLogger())

	rec := &sessionRecorder{}
	s := NewSession(engine, SessionOptions{
		PollInterval: 5 * time.Millisecond,
		Silence:      &silence.Config{Threshold: 0.02, Duration: 40 * time.Millisecond, Padding: 10 * time.Millisecond},
	}, rec.events(), testLogger())

	s.Start()
	waitDone(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.err != nil {
		t.Fatalf("unexpected error: %v", rec.err)
	}
	if !rec.silence {
		t.Fatal("expected silence to be detected")
	}
	if !rec.complete {
		t.Fatal("expected the take to complete")
	}
	if rec.artifact.Duration <= 0 {
		t.Fatalf("expected a non-empty artifact, got %+v", rec.artifact)
	}
	if _, err := os.Stat(rec.artifact.Path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if dev.Opened() {
		t.Fatal("device must be released when the session ends")
	}
}

func TestSessionManualStop(t *testing.T) {
	cfg := testCaptureConfig(t)
	cfg.MinDurationMS = 0
	dev := NewMockDevice(constantChunk(1024, 5000))
	dev.Loop = true
	dev.ReadDelay = time.Millisecond
	engine := NewEngine(cfg, dev, testLogger())

	var loudnessSeen bool
	rec := &sessionRecorder{}
	events := rec.events()
	events.OnLoudness = func(v float64) {
		if v > 0 {
			loudnessSeen = true
		}
	}

	s := NewSession(engine, SessionOptions{PollInterval: 5 * time.Millisecond}, events, testLogger())
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.RequestStop()
	waitDone(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.err != nil {
		t.Fatalf("unexpected error: %v", rec.err)
	}
	if !rec.complete {
		t.Fatal("expected the take to complete")
	}
	if rec.silence || rec.cancelled {
		t.Fatal("no silence or cancel expected for a manual stop")
	}
	if !loudnessSeen {
		t.Fatal("expected at least one voiced loudness sample")
	}
}

func TestSessionCancelDiscardsTake(t *testing.T) {
	cfg := testCaptureConfig(t)
	cfg.MinDurationMS = 0
	dev := NewMockDevice(constantChunk(1024, 5000))
	dev.Loop = true
	dev.ReadDelay = time.Millisecond
	engine := NewEngine(cfg, dev, testLogger())

	rec := &sessionRecorder{}
	s := NewSession(engine, SessionOptions{PollInterval: 5 * time.Millisecond}, rec.events(), testLogger())
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.RequestCancel()
	waitDone(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.cancelled {
		t.Fatal("expected the session to report cancellation")
	}
	if rec.complete {
		t.Fatal("a cancelled take must not complete")
	}
	if rec.err != nil {
		t.Fatalf("unexpected error: %v", rec.err)
	}

	entries, err := os.ReadDir(cfg.SpoolDir)
	if err != nil {
		t.Fatalf("read spool dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cancelled take must not leave artifacts, found %d", len(entries))
	}
	if dev.Opened() {
		t.Fatal("device must be released after cancel")
	}
}

func TestSessionReportsStartFailure(t *testing.T) {
	dev := NewMockDevice()
	dev.OpenErr = ErrUnavailable
	engine := NewEngine(testCaptureConfig(t), dev, testLogger())

	rec := &sessionRecorder{}
	s := NewSession(engine, SessionOptions{PollInterval: 5 * time.Millisecond}, rec.events(), testLogger())
	s.Start()
	waitDone(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !fault.IsKind(rec.err, fault.DeviceUnavailable) {
		t.Fatalf("expected device_unavailable, got %v", rec.err)
	}
	if rec.complete || rec.cancelled {
		t.Fatal("failed session must not complete or cancel")
	}
}

func TestSessionSurfacesMidCaptureFailure(t *testing.T) {
	cfg := testCaptureConfig(t)
	cfg.MinDurationMS = 0
	// Loud input, so the silence policy never fires, then the stream dies.
	dev := NewMockDevice(constantChunk(1024, 5000), constantChunk(1024, 5000))
	dev.ReadErr = errors.New("input overflowed")
	engine := NewEngine(cfg, dev, testLogger())

	rec := &sessionRecorder{}
	s := NewSession(engine, SessionOptions{
		PollInterval: 5 * time.Millisecond,
		Silence:      &silence.Config{Threshold: 0.02, Duration: time.Hour},
	}, rec.events(), testLogger())
	s.Start()
	waitDone(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !fault.IsKind(rec.err, fault.DeviceError) {
		t.Fatalf("expected device_error without a stop request, got %v", rec.err)
	}
	if rec.complete {
		t.Fatal("a dead stream must not produce an artifact")
	}
}

func TestSessionStopWithNoAudio(t *testing.T) {
	dev := NewMockDevice()
	engine := NewEngine(testCaptureConfig(t), dev, testLogger())

	rec := &sessionRecorder{}
	s := NewSession(engine, SessionOptions{PollInterval: 5 * time.Millisecond}, rec.events(), testLogger())
	s.RequestStop()
	s.Start()
	waitDone(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !fault.IsKind(rec.err, fault.EmptyRecording) {
		t.Fatalf("expected empty_recording, got %v", rec.err)
	}
}
