package transcription

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Outcome is the single terminal result of a transcription session: either
// the recognized text or a classified error.
type Outcome struct {
	Text string
	Err  error
}

// Session runs one artifact handoff in the background. It emits exactly one
// Outcome and then deletes the artifact best-effort; deletion happens at
// most once and its failure is only logged. A Session is single-use.
type Session struct {
	transcriber Transcriber
	path        string
	logger      *slog.Logger
	started     atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool

	outcome chan Outcome
}

func NewSession(transcriber Transcriber, artifactPath string, logger *slog.Logger) *Session {
	return &Session{
		transcriber: transcriber,
		path:        artifactPath,
		logger:      logger.With(slog.String("component", "transcription_session")),
		outcome:     make(chan Outcome, 1),
	}
}

// Start launches the handoff goroutine. Subsequent calls are no-ops.
func (s *Session) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	if s.cancelled {
		cancel()
	}
	s.mu.Unlock()
	go s.run(ctx, cancel)
}

// Cancel aborts the handoff. Effective even when it lands before Start.
// The session still emits its single Outcome, carrying the cancellation
// error.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Outcome delivers the terminal result. The channel is buffered, so the
// session never blocks on a slow consumer.
func (s *Session) Outcome() <-chan Outcome {
	return s.outcome
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	result, err := s.transcriber.Transcribe(ctx, s.path)

	// The artifact is spooled only for this handoff. Remove it regardless
	// of the outcome; a leftover file is not worth failing the session.
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		s.logger.Warn("failed to remove capture artifact", slogError(rmErr), slog.String("path", s.path))
	}

	if err != nil {
		s.outcome <- Outcome{Err: err}
		return
	}
	s.outcome <- Outcome{Text: result.Text}
}
