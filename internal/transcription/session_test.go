package transcription

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/voxdlabs/voxd/internal/fault"
)

func receiveOutcome(t *testing.T, s *Session) Outcome {
	t.Helper()
	select {
	case out := <-s.Outcome():
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("session never emitted an outcome")
		return Outcome{}
	}
}

func TestSessionEmitsTranscriptAndDeletesArtifact(t *testing.T) {
	path := testArtifact(t)
	mock := NewMockTranscriber()
	mock.Text = "turn on the lights"

	s := NewSession(mock, path, testLogger())
	s.Start(context.Background())

	out := receiveOutcome(t, s)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Text != "turn on the lights" {
		t.Fatalf("unexpected transcript %q", out.Text)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("artifact must be deleted after the handoff")
	}

	select {
	case extra := <-s.Outcome():
		t.Fatalf("session emitted a second outcome: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionEmitsErrorAndStillDeletesArtifact(t *testing.T) {
	path := testArtifact(t)
	mock := NewMockTranscriber()
	mock.Err = fault.New(fault.ProviderError, "error.provider", "backend exploded")

	s := NewSession(mock, path, testLogger())
	s.Start(context.Background())

	out := receiveOutcome(t, s)
	if !fault.IsKind(out.Err, fault.ProviderError) {
		t.Fatalf("expected provider_error, got %v", out.Err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("artifact must be deleted even when the handoff fails")
	}
}

type blockingTranscriber struct {
	started chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, artifactPath string) (Result, error) {
	close(b.started)
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func TestSessionCancelAbortsHandoff(t *testing.T) {
	path := testArtifact(t)
	block := &blockingTranscriber{started: make(chan struct{})}

	s := NewSession(block, path, testLogger())
	s.Start(context.Background())

	select {
	case <-block.started:
	case <-time.After(2 * time.Second):
		t.Fatal("handoff never started")
	}
	s.Cancel()

	out := receiveOutcome(t, s)
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", out.Err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("artifact must be deleted after cancellation")
	}
}

func TestSessionStartIsSingleUse(t *testing.T) {
	path := testArtifact(t)
	mock := NewMockTranscriber()
	mock.Text = "once"

	s := NewSession(mock, path, testLogger())
	s.Start(context.Background())
	s.Start(context.Background())

	out := receiveOutcome(t, s)
	if out.Text != "once" {
		t.Fatalf("unexpected transcript %q", out.Text)
	}
	select {
	case extra := <-s.Outcome():
		t.Fatalf("second Start produced another outcome: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
