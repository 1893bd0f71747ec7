package chat

import (
	"errors"
	"fmt"

	"github.com/vocality/voicelink/pkg/audioio"
	"github.com/vocality/voicelink/pkg/capture"
)

// ErrorCode classifies a ServiceError for the display layer.
type ErrorCode string

const (
	// CodeNotConnected: a command was issued in the wrong state.
	// Recoverable by connecting first.
	CodeNotConnected ErrorCode = "NOT_CONNECTED"

	// CodeMicPermissionDenied: microphone access was refused.
	// The user may grant access and retry.
	CodeMicPermissionDenied ErrorCode = "MICROPHONE_PERMISSION_DENIED"

	// CodeAudioNotSupported: no capture capability on this platform.
	CodeAudioNotSupported ErrorCode = "AUDIO_NOT_SUPPORTED"

	// CodeAudioConversion: encoding captured audio failed.
	CodeAudioConversion ErrorCode = "AUDIO_CONVERSION_ERROR"

	// CodeConnectionFailed: the transport could not be established.
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// CodeHandshakeTimeout: the backend never acknowledged the hello.
	CodeHandshakeTimeout ErrorCode = "HANDSHAKE_TIMEOUT"

	// CodeSendFailed: an outbound frame could not be transmitted.
	CodeSendFailed ErrorCode = "SEND_FAILED"
)

// ServiceError is the single error shape the session raises across its
// public boundary. The Recoverable flag tells the display layer whether
// to offer a retry action.
type ServiceError struct {
	Code        ErrorCode
	Message     string
	Recoverable bool
	Cause       error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chat: [%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("chat: [%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func newServiceError(code ErrorCode, msg string, recoverable bool, cause error) *ServiceError {
	return &ServiceError{
		Code:        code,
		Message:     msg,
		Recoverable: recoverable,
		Cause:       cause,
	}
}

func notConnectedError(op string) *ServiceError {
	return newServiceError(CodeNotConnected, op+" requires an active connection", true, nil)
}

// captureError maps capture-path failures onto the session taxonomy.
func captureError(err error) *ServiceError {
	switch {
	case errors.Is(err, capture.ErrAlreadyRecording):
		return notConnectedError("startRecording")
	case errors.Is(err, audioio.ErrPermissionDenied):
		return newServiceError(CodeMicPermissionDenied, "microphone permission denied", true, err)
	case errors.Is(err, audioio.ErrDeviceBusy):
		return newServiceError(CodeMicPermissionDenied, "microphone is in use by another application", true, err)
	case errors.Is(err, audioio.ErrNotSupported):
		return newServiceError(CodeAudioNotSupported, "audio capture is not supported on this device", false, err)
	default:
		return newServiceError(CodeAudioConversion, "audio capture failed", true, err)
	}
}

// AsServiceError extracts a *ServiceError from err, if any.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
