package protocol

import "time"

// LoudnessUpdate is the live meter reading published while a recording is
// in progress.
type LoudnessUpdate struct {
	SessionID string    `json:"session_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// SilenceDetected announces that the auto-stop policy fired. PaddingMS is
// the trailing audio consumers keep before the detected boundary.
type SilenceDetected struct {
	SessionID string    `json:"session_id"`
	PaddingMS int       `json:"padding_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordingComplete announces a finalized take and its spool artifact.
type RecordingComplete struct {
	SessionID       string    `json:"session_id"`
	Path            string    `json:"path"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// RecordingCancelled announces a take that was discarded before finalizing.
type RecordingCancelled struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PipelineError is a classified failure broadcast on the bus. Kind matches
// the fault taxonomy; UserKey and Params let presentation layers localize.
type PipelineError struct {
	SessionID string            `json:"session_id"`
	Stage     string            `json:"stage"` // recording, transcription
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	UserKey   string            `json:"user_key,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Transcript is the final recognized text for a session.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectLoudness           = "dictation.loudness"
	SubjectSilence            = "dictation.silence"
	SubjectRecordingComplete  = "dictation.recording.complete"
	SubjectRecordingError     = "dictation.recording.error"
	SubjectRecordingCancelled = "dictation.cancelled"
	SubjectTranscriptFinal    = "stt.text.final"
	SubjectTranscriptError    = "stt.error"
)
