// Package dictation orchestrates the pipeline: it owns the single active
// recording session, hands finished artifacts to the transcription backend,
// broadcasts progress on the bus and appends the timeline to the event
// store.
package dictation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxdlabs/voxd/internal/capture"
	"github.com/voxdlabs/voxd/internal/config"
	"github.com/voxdlabs/voxd/internal/eventstore"
	"github.com/voxdlabs/voxd/internal/fault"
	"github.com/voxdlabs/voxd/internal/protocol"
	"github.com/voxdlabs/voxd/internal/silence"
	"github.com/voxdlabs/voxd/internal/transcription"
)

// State describes where the pipeline currently is. Terminal states stick
// around until the next session starts.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateCompleted    State = "completed"
	StateCancelled    State = "cancelled"
	StateFailed       State = "failed"
)

// Publisher is the slice of the bus connection the service needs.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// DeviceFactory builds a fresh input device for each recording session.
type DeviceFactory func() capture.Device

// Status is a point-in-time snapshot of the pipeline.
type Status struct {
	State           State     `json:"state"`
	SessionID       string    `json:"session_id,omitempty"`
	Loudness        float64   `json:"loudness"`
	CapturedSeconds float64   `json:"captured_seconds"`
	StartedAt       time.Time `json:"started_at"`
	Transcript      string    `json:"transcript,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// Service coordinates at most one recording at a time. A transcription
// handoff from a finished take keeps running in the background and does not
// block the next recording.
type Service struct {
	cfg         config.Config
	pub         Publisher
	store       *eventstore.Store
	transcriber transcription.Transcriber
	devices     DeviceFactory
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	sessionID  string
	engine     *capture.Engine
	recording  *capture.Session
	handoff    *transcription.Session
	startedAt  time.Time
	transcript string
	lastErr    error
	closed     bool

	completed     metric.Int64Counter
	cancelled     metric.Int64Counter
	failed        metric.Int64Counter
	recordingDur  metric.Float64Histogram
	transcribeDur metric.Float64Histogram
}

func NewService(parent context.Context, cfg config.Config, pub Publisher, store *eventstore.Store, transcriber transcription.Transcriber, devices DeviceFactory, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:         cfg,
		pub:         pub,
		store:       store,
		transcriber: transcriber,
		devices:     devices,
		logger:      logger.With(slog.String("component", "dictation")),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
	}

	meter := otel.Meter("github.com/voxdlabs/voxd/internal/dictation")
	s.completed, _ = meter.Int64Counter("voxd.sessions.completed")
	s.cancelled, _ = meter.Int64Counter("voxd.sessions.cancelled")
	s.failed, _ = meter.Int64Counter("voxd.sessions.failed")
	s.recordingDur, _ = meter.Float64Histogram("voxd.recording.duration", metric.WithUnit("s"))
	s.transcribeDur, _ = meter.Float64Histogram("voxd.transcription.duration", metric.WithUnit("s"))

	return s
}

// Close stops any active recording and waits for background work.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	rec := s.recording
	s.mu.Unlock()

	if rec != nil {
		rec.RequestCancel()
		<-rec.Done()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Start begins a new recording session and returns its ID. Calling Start
// while a recording is active is a no-op that returns the active ID.
func (s *Service) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("dictation service is shut down")
	}
	if s.state == StateRecording {
		s.logger.Debug("recording already active", slog.String("session_id", s.sessionID))
		return s.sessionID, nil
	}

	id := uuid.NewString()
	engine := capture.NewEngine(s.cfg.Capture, s.devices(), s.logger)

	opts := capture.SessionOptions{
		PollInterval: time.Duration(s.cfg.Capture.PollIntervalMS) * time.Millisecond,
	}
	if s.cfg.Silence.AutoStop {
		opts.Silence = &silence.Config{
			Threshold: s.cfg.Silence.Threshold,
			Duration:  time.Duration(s.cfg.Silence.DurationMS) * time.Millisecond,
			Padding:   time.Duration(s.cfg.Silence.PaddingMS) * time.Millisecond,
		}
	}

	rec := capture.NewSession(engine, opts, capture.Events{
		OnLoudness:  func(v float64) { s.onLoudness(id, v) },
		OnSilence:   func(padding time.Duration) { s.onSilence(id, padding) },
		OnComplete:  func(a capture.Artifact) { s.onRecordingComplete(id, a) },
		OnCancelled: func() { s.onCancelled(id) },
		OnError:     func(err error) { s.onRecordingError(id, err) },
	}, s.logger)

	s.state = StateRecording
	s.sessionID = id
	s.engine = engine
	s.recording = rec
	s.startedAt = time.Now()
	s.transcript = ""
	s.lastErr = nil

	s.appendSession(id, string(StateRecording))
	rec.Start()
	s.logger.Info("dictation started", slog.String("session_id", id))
	return id, nil
}

// Stop asks the active recording to finalize. Returns NotRecording when no
// recording is in progress.
func (s *Service) Stop() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording || s.recording == nil {
		return "", fault.New(fault.NotRecording, "error.not_recording", "no recording in progress")
	}
	s.recording.RequestStop()
	return s.sessionID, nil
}

// Cancel discards the active recording, or aborts the in-flight
// transcription when the pipeline has already moved on to the handoff.
func (s *Service) Cancel() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateRecording && s.recording != nil:
		s.recording.RequestCancel()
		return s.sessionID, nil
	case s.state == StateTranscribing && s.handoff != nil:
		s.handoff.Cancel()
		return s.sessionID, nil
	default:
		return "", fault.New(fault.NotRecording, "error.not_recording", "nothing to cancel")
	}
}

// Status reports the current pipeline snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:      s.state,
		SessionID:  s.sessionID,
		StartedAt:  s.startedAt,
		Transcript: s.transcript,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.state == StateRecording && s.engine != nil {
		st.Loudness = s.engine.CurrentLoudness()
		st.CapturedSeconds = s.engine.Captured().Seconds()
	}
	return st
}

// SessionEvents returns the stored timeline for a session.
func (s *Service) SessionEvents(ctx context.Context, sessionID string, limit int) ([]eventstore.Event, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListSessionEvents(ctx, sessionID, limit)
}

// StoredSession returns the persisted session row, or sql.ErrNoRows when
// the session is unknown or persistence is disabled.
func (s *Service) StoredSession(ctx context.Context, sessionID string) (eventstore.Session, error) {
	if s.store == nil {
		return eventstore.Session{}, sql.ErrNoRows
	}
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) onLoudness(id string, value float64) {
	s.publish(protocol.SubjectLoudness, protocol.LoudnessUpdate{
		SessionID: id,
		Value:     value,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) onSilence(id string, padding time.Duration) {
	msg := protocol.SilenceDetected{
		SessionID: id,
		PaddingMS: int(padding / time.Millisecond),
		Timestamp: time.Now().UTC(),
	}
	s.publish(protocol.SubjectSilence, msg)
	s.appendEvent(id, "silence", msg)
}

func (s *Service) onRecordingComplete(id string, artifact capture.Artifact) {
	msg := protocol.RecordingComplete{
		SessionID:       id,
		Path:            artifact.Path,
		DurationSeconds: artifact.Duration.Seconds(),
		Timestamp:       time.Now().UTC(),
	}
	s.publish(protocol.SubjectRecordingComplete, msg)
	s.appendEvent(id, "recording_complete", msg)
	s.recordingDur.Record(s.ctx, artifact.Duration.Seconds())

	handoff := transcription.NewSession(s.transcriber, artifact.Path, s.logger)
	s.updateSessionState(id, string(StateTranscribing))

	s.mu.Lock()
	if s.sessionID == id {
		s.state = StateTranscribing
		s.recording = nil
		s.engine = nil
		s.handoff = handoff
	}
	s.mu.Unlock()

	handoff.Start(s.ctx)
	s.wg.Add(1)
	go s.awaitTranscript(id, handoff, time.Now())
}

func (s *Service) awaitTranscript(id string, handoff *transcription.Session, started time.Time) {
	defer s.wg.Done()
	out := <-handoff.Outcome()
	s.transcribeDur.Record(context.Background(), time.Since(started).Seconds())

	if out.Err != nil {
		if errors.Is(out.Err, context.Canceled) {
			s.logger.Info("transcription cancelled", slog.String("session_id", id))
			s.publish(protocol.SubjectRecordingCancelled, protocol.RecordingCancelled{
				SessionID: id,
				Timestamp: time.Now().UTC(),
			})
			s.finishSession(id, StateCancelled, nil)
			s.cancelled.Add(context.Background(), 1)
			return
		}
		s.logger.Warn("transcription failed", slog.String("session_id", id), slogError(out.Err))
		msg := pipelineError(id, "transcription", out.Err)
		s.publish(protocol.SubjectTranscriptError, msg)
		s.appendEvent(id, "transcription_error", msg)
		s.finishSession(id, StateFailed, out.Err)
		s.failed.Add(context.Background(), 1)
		return
	}

	msg := protocol.Transcript{
		SessionID: id,
		Text:      out.Text,
		Timestamp: time.Now().UTC(),
	}
	s.publish(protocol.SubjectTranscriptFinal, msg)
	s.appendEvent(id, "transcript", msg)

	s.mu.Lock()
	if s.sessionID == id {
		s.transcript = out.Text
	}
	s.mu.Unlock()
	s.finishSession(id, StateCompleted, nil)
	s.completed.Add(context.Background(), 1)
	s.logger.Info("dictation completed", slog.String("session_id", id), slog.Int("chars", len(out.Text)))
}

func (s *Service) onCancelled(id string) {
	msg := protocol.RecordingCancelled{
		SessionID: id,
		Timestamp: time.Now().UTC(),
	}
	s.publish(protocol.SubjectRecordingCancelled, msg)
	s.appendEvent(id, "recording_cancelled", msg)
	s.finishSession(id, StateCancelled, nil)
	s.cancelled.Add(context.Background(), 1)
}

func (s *Service) onRecordingError(id string, err error) {
	msg := pipelineError(id, "recording", err)
	s.publish(protocol.SubjectRecordingError, msg)
	s.appendEvent(id, "recording_error", msg)
	s.finishSession(id, StateFailed, err)
	s.failed.Add(context.Background(), 1)
}

func (s *Service) finishSession(id string, terminal State, err error) {
	// Persist first so a terminal Status() is never ahead of the store.
	s.updateSessionState(id, string(terminal))
	s.mu.Lock()
	if s.sessionID == id {
		s.state = terminal
		s.recording = nil
		s.engine = nil
		s.handoff = nil
		s.lastErr = err
	}
	s.mu.Unlock()
}

func (s *Service) publish(subject string, msg any) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal bus message", slogError(err), slog.String("subject", subject))
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish bus message", slogError(err), slog.String("subject", subject))
	}
}

func (s *Service) appendSession(id, state string) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendSession(context.Background(), id, state); err != nil {
		s.logger.Warn("failed to record session state", slogError(err), slog.String("session_id", id))
	}
}

func (s *Service) updateSessionState(id, state string) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateSessionState(context.Background(), id, state); err != nil {
		s.logger.Warn("failed to update session state", slogError(err), slog.String("session_id", id))
	}
}

func (s *Service) appendEvent(id, eventType string, msg any) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal timeline event", slogError(err))
		return
	}
	if err := s.store.AppendEvent(context.Background(), eventstore.Event{
		SessionID: id,
		Type:      eventType,
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("failed to append timeline event", slogError(err), slog.String("session_id", id))
	}
}

func pipelineError(id, stage string, err error) protocol.PipelineError {
	msg := protocol.PipelineError{
		SessionID: id,
		Stage:     stage,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		msg.Kind = string(fe.Kind)
		msg.Message = fe.Message
		msg.UserKey = fe.UserKey
		msg.Params = fe.Params
	}
	return msg
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
