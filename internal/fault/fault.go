// Package fault defines the normalized error taxonomy shared by the capture
// and transcription pipeline. Every Error carries a stable technical message
// for logs and a user-facing key with parameters that the presentation layer
// resolves to localized text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// Capture failures.
	DeviceUnavailable Kind = "device_unavailable"
	DeviceError       Kind = "device_error"
	NotRecording      Kind = "not_recording"
	EmptyRecording    Kind = "empty_recording"
	TooShort          Kind = "too_short"

	// Transcription failures.
	ArtifactNotFound    Kind = "artifact_not_found"
	AuthenticationError Kind = "authentication_error"
	NetworkError        Kind = "network_error"
	TimeoutError        Kind = "timeout_error"
	ProviderError       Kind = "provider_error"
)

// Error is a classified pipeline failure. Message is locale-stable; UserKey
// and Params are resolved downstream.
type Error struct {
	Kind    Kind
	Message string
	UserKey string
	Params  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without parameters.
func New(kind Kind, userKey, message string) *Error {
	return &Error{Kind: kind, Message: message, UserKey: userKey}
}

// Newf creates an Error with a formatted technical message.
func Newf(kind Kind, userKey, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), UserKey: userKey}
}

// Wrap attaches a cause to an Error.
func Wrap(kind Kind, userKey, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, UserKey: userKey, Err: err}
}

// WithParam returns e with an added user-facing parameter.
func (e *Error) WithParam(key, value string) *Error {
	if e.Params == nil {
		e.Params = make(map[string]string)
	}
	e.Params[key] = value
	return e
}

// KindOf returns the Kind of err if it is (or wraps) a fault.Error, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
