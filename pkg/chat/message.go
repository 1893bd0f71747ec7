// Package chat implements the realtime chat session client: one
// WebSocket connection to a voice-assistant backend, the hello
// handshake, interleaved inbound text/speech/activation events,
// microphone streaming, and a race-free state surface for a display
// layer.
package chat

import (
	"time"
)

// ConnectionState is the connection lifecycle state.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// RecordingState is the microphone capture state. Recording and Stopping
// only occur while the connection is Connected.
type RecordingState string

const (
	RecordingIdle     RecordingState = "idle"
	RecordingActive   RecordingState = "recording"
	RecordingStopping RecordingState = "stopping"
)

// MessageKind identifies who or what produced a chat message.
type MessageKind string

const (
	KindUser      MessageKind = "user"      // Typed by the local user
	KindServer    MessageKind = "server"    // Server control/system text
	KindSTTResult MessageKind = "sttResult" // Transcript of user speech
	KindLLMText   MessageKind = "llmText"   // Assistant text
	KindTTSEvent  MessageKind = "ttsEvent"  // Spoken sentence boundary
)

// Message is one entry in the session transcript. The transcript is
// append-only in strict arrival order; it is never reordered or
// deduplicated.
type Message struct {
	ID        string
	Kind      MessageKind
	Text      string
	Timestamp time.Time
}

// ActivationChallenge is a short-lived code the user must act on
// out-of-band. At most one is active; a newer challenge replaces an
// older one outright.
type ActivationChallenge struct {
	Message   string
	Code      string
	Challenge string
	Timeout   time.Duration
}

// Event is a state-change notification delivered to subscribers at the
// point of transition. Listeners must not invoke session commands
// synchronously from the callback.
type Event interface {
	isSessionEvent()
}

// ConnectionStateChanged reports a connection state transition.
type ConnectionStateChanged struct {
	State ConnectionState
}

// RecordingStateChanged reports a recording state transition.
type RecordingStateChanged struct {
	State RecordingState
}

// MessageAppended reports a new transcript entry.
type MessageAppended struct {
	Message Message
}

// ActivationChanged reports a new, replaced, or dismissed challenge.
// Challenge is nil on dismissal.
type ActivationChanged struct {
	Challenge *ActivationChallenge
}

// ErrorRaised reports a ServiceError surfaced to the display layer.
// The frequency sample is deliberately not an event: the visualization
// buffer is polled via FrequencySample, matching its fixed cadence.
type ErrorRaised struct {
	Err *ServiceError
}

func (ConnectionStateChanged) isSessionEvent() {}
func (RecordingStateChanged) isSessionEvent()  {}
func (MessageAppended) isSessionEvent()        {}
func (ActivationChanged) isSessionEvent()      {}
func (ErrorRaised) isSessionEvent()            {}
