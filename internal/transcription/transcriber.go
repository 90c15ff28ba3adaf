// Package transcription hands finished capture artifacts to a speech-to-text
// backend and normalizes every failure into the shared fault taxonomy.
package transcription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxdlabs/voxd/internal/config"
)

// Result is the output of one transcription attempt.
type Result struct {
	Text string
}

// Transcriber abstracts speech-to-text backends. Implementations honor
// context cancellation and return fault.Error values for classified
// failures.
type Transcriber interface {
	Transcribe(ctx context.Context, artifactPath string) (Result, error)
}

// New builds the backend selected by cfg.Mode.
func New(cfg config.TranscriptionConfig, logger *slog.Logger) (Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockTranscriber(), nil
	case "openai":
		return NewClient(cfg, logger), nil
	case "exec":
		return NewExecTranscriber(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown transcription mode %q", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
