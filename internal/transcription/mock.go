package transcription

import (
	"context"
	"fmt"
	"os"

	"github.com/voxdlabs/voxd/internal/fault"
)

// MockTranscriber returns a deterministic transcript without touching the
// network. Used in tests and in headless deployments.
type MockTranscriber struct {
	Text string
	Err  error
}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

func (m *MockTranscriber) Transcribe(ctx context.Context, artifactPath string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return Result{}, fault.Newf(fault.ArtifactNotFound, "error.artifact_not_found",
			"capture artifact missing: %s", artifactPath).
			WithParam("path", artifactPath)
	}
	if m.Text != "" {
		return Result{Text: m.Text}, nil
	}
	return Result{Text: fmt.Sprintf("[mock transcript of %d bytes]", info.Size())}, nil
}
