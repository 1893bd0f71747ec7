// Package protocol defines the JSON control frames exchanged with the
// voice-assistant backend and decodes inbound frames into typed events.
// Encoding and decoding are pure; the package holds no connection state.
package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameType identifies the type of a JSON control frame.
type FrameType string

const (
	// Client → Server frames
	TypeHello  FrameType = "hello"  // Identity handshake
	TypeListen FrameType = "listen" // Microphone control / text input
	TypeSpeak  FrameType = "speak"  // Playback control
	TypeAbort  FrameType = "abort"  // Cancel in-flight server speech

	// Server → Client frames (hello doubles as the handshake ack)
	TypeLLM        FrameType = "llm"        // Assistant text delta
	TypeSTT        FrameType = "stt"        // Speech recognition transcript
	TypeTTS        FrameType = "tts"        // Speech synthesis lifecycle
	TypeActivation FrameType = "activation" // Device activation challenge
)

// ListenMode selects how the backend segments captured speech.
type ListenMode string

const (
	ModeManual   ListenMode = "manual"
	ModeAuto     ListenMode = "auto"
	ModeRealtime ListenMode = "realtime"
)

// ListenState is the state field of a listen frame.
type ListenState string

const (
	StateStart  ListenState = "start"
	StateStop   ListenState = "stop"
	StateDetect ListenState = "detect" // Carries wake text or typed input
)

// TTSState is the lifecycle phase of a tts frame.
type TTSState string

const (
	TTSStart         TTSState = "start"
	TTSSentenceStart TTSState = "sentence_start"
	TTSSentenceEnd   TTSState = "sentence_end"
	TTSStop          TTSState = "stop"
)

// AudioParams describes the audio format negotiated in the hello frame.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"` // milliseconds
}

// Features advertises optional client capabilities in the hello frame.
type Features struct {
	MCP bool `json:"mcp,omitempty"`
}

// Hello carries device identity and capabilities for the handshake.
type Hello struct {
	Type       FrameType    `json:"type"`
	Version    int          `json:"version"`
	Transport  string       `json:"transport"`
	DeviceID   string       `json:"device_id"`
	DeviceName string       `json:"device_name"`
	DeviceMAC  string       `json:"device_mac"`
	Token      string       `json:"token"`
	Features   *Features    `json:"features,omitempty"`
	Audio      *AudioParams `json:"audio_params,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
}

// EncodeHello builds the outbound hello frame.
func EncodeHello(h Hello) ([]byte, error) {
	h.Type = TypeHello
	if h.Version == 0 {
		h.Version = 1
	}
	if h.Transport == "" {
		h.Transport = "websocket"
	}
	return json.Marshal(h)
}

type listenFrame struct {
	Type      FrameType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Mode      ListenMode  `json:"mode"`
	State     ListenState `json:"state"`
	Text      string      `json:"text,omitempty"`
}

// EncodeListen builds an outbound listen frame.
func EncodeListen(sessionID string, mode ListenMode, state ListenState, text string) ([]byte, error) {
	return json.Marshal(listenFrame{
		Type:      TypeListen,
		SessionID: sessionID,
		Mode:      mode,
		State:     state,
		Text:      text,
	})
}

// EncodeSpeak builds an outbound speak frame.
func EncodeSpeak(sessionID string, mode ListenMode, state ListenState, text string) ([]byte, error) {
	return json.Marshal(listenFrame{
		Type:      TypeSpeak,
		SessionID: sessionID,
		Mode:      mode,
		State:     state,
		Text:      text,
	})
}

type abortFrame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// EncodeAbort builds an outbound abort frame.
func EncodeAbort(sessionID, reason string) ([]byte, error) {
	return json.Marshal(abortFrame{
		Type:      TypeAbort,
		SessionID: sessionID,
		Reason:    reason,
	})
}

// frame is the superset of all inbound JSON frame fields.
type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Transport string `json:"transport"`
	Mode      string `json:"mode"`
	State     string `json:"state"`
	Text      string `json:"text"`

	// Activation challenge fields (the frame may omit "type")
	Message   string `json:"message"`
	Code      string `json:"code"`
	Challenge string `json:"challenge"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (f *frame) String() string {
	return fmt.Sprintf("frame{type=%s state=%s}", f.Type, f.State)
}
