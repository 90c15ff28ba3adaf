package capture

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voxdlabs/voxd/internal/silence"
)

// Events are the callbacks a Session fires from its polling goroutine.
// Nil callbacks are skipped. Handlers must not block.
type Events struct {
	OnLoudness  func(value float64)
	OnSilence   func(padding time.Duration)
	OnComplete  func(artifact Artifact)
	OnCancelled func()
	OnError     func(err error)
}

// SessionOptions tune one recording session. A nil Silence disables
// auto-stop for the session.
type SessionOptions struct {
	PollInterval time.Duration
	Silence      *silence.Config
}

// Session drives one recording end to end: it starts the engine, polls
// loudness on a fixed interval, applies the silence policy, and finalizes
// or discards the take. Stop and cancel are cooperative flags checked once
// per poll tick. A Session is single-use.
type Session struct {
	engine  *Engine
	opts    SessionOptions
	events  Events
	logger  *slog.Logger
	stopReq atomic.Bool
	cancel  atomic.Bool
	started atomic.Bool
	done    chan struct{}
}

func NewSession(engine *Engine, opts SessionOptions, events Events, logger *slog.Logger) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	return &Session{
		engine: engine,
		opts:   opts,
		events: events,
		logger: logger.With(slog.String("component", "recording_session")),
		done:   make(chan struct{}),
	}
}

// Start launches the session goroutine. Subsequent calls are no-ops.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
}

// RequestStop asks the session to finalize the take. Honored at the next
// poll tick.
func (s *Session) RequestStop() {
	s.stopReq.Store(true)
}

// RequestCancel asks the session to discard the take without writing an
// artifact. Cancel wins over a concurrent stop request.
func (s *Session) RequestCancel() {
	s.cancel.Store(true)
}

// Done is closed after the terminal callback has fired and the device has
// been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)
	defer s.engine.Cleanup()

	if err := s.engine.Start(); err != nil {
		s.emitError(err)
		return
	}

	var detector *silence.Detector
	var padding time.Duration
	if s.opts.Silence != nil {
		detector = silence.NewDetector(*s.opts.Silence)
		padding = s.opts.Silence.Padding
	}

	for {
		if s.cancel.Load() {
			s.engine.Cleanup()
			s.logger.Info("recording cancelled")
			if s.events.OnCancelled != nil {
				s.events.OnCancelled()
			}
			return
		}
		if s.stopReq.Load() {
			break
		}
		// A dead input stream would otherwise freeze the last loudness
		// value and spin here until a manual stop.
		if err := s.engine.Err(); err != nil {
			break
		}
		value := s.engine.CurrentLoudness()
		if s.events.OnLoudness != nil {
			s.events.OnLoudness(value)
		}
		if detector != nil && detector.Update(value, time.Now()) {
			s.logger.Info("silence detected, stopping capture")
			if s.events.OnSilence != nil {
				s.events.OnSilence(padding)
			}
			break
		}
		time.Sleep(s.opts.PollInterval)
	}

	artifact, err := s.engine.Stop()
	if err != nil {
		s.emitError(err)
		return
	}
	if s.events.OnComplete != nil {
		s.events.OnComplete(artifact)
	}
}

func (s *Session) emitError(err error) {
	s.logger.Warn("recording failed", slogError(err))
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}
