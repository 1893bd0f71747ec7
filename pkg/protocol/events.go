package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Decode errors. Unknown frames are expected traffic from newer backends;
// callers log them and carry on.
var (
	ErrUnknownFrame   = errors.New("protocol: unknown frame type")
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

// Event is a decoded inbound frame. Exactly one concrete type is produced
// per frame.
type Event interface {
	isEvent()
}

// HelloAck acknowledges the hello handshake and assigns a session id.
type HelloAck struct {
	SessionID string
	Transport string
}

// ControlEcho is the server echo of a listen or speak control frame.
type ControlEcho struct {
	Frame FrameType // TypeListen or TypeSpeak
	Mode  ListenMode
	State ListenState
	Text  string
}

// LLMDelta is a chunk of assistant text.
type LLMDelta struct {
	Text string
}

// STTResult is a speech recognition transcript of the user's audio.
type STTResult struct {
	Text string
}

// TTSEvent marks a phase of server speech synthesis. Text is set on
// sentence boundaries.
type TTSEvent struct {
	State TTSState
	Text  string
}

// Activation is a device activation challenge. The countdown is
// server-supplied; the client never guesses one.
type Activation struct {
	Message   string
	Code      string
	Challenge string
	Timeout   time.Duration
}

// Audio is a raw binary audio frame for playback.
type Audio struct {
	Data []byte
}

func (HelloAck) isEvent()    {}
func (ControlEcho) isEvent() {}
func (LLMDelta) isEvent()    {}
func (STTResult) isEvent()   {}
func (TTSEvent) isEvent()    {}
func (Activation) isEvent()  {}
func (Audio) isEvent()       {}

// DecodeBinary wraps a binary WebSocket message as an audio event.
func DecodeBinary(data []byte) Event {
	return Audio{Data: data}
}

// Decode parses an inbound JSON frame into its typed event.
// Returns ErrUnknownFrame for frame types this client does not speak and
// ErrMalformedFrame when the payload is not valid JSON.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch FrameType(f.Type) {
	case TypeHello:
		return HelloAck{SessionID: f.SessionID, Transport: f.Transport}, nil
	case TypeListen, TypeSpeak:
		return ControlEcho{
			Frame: FrameType(f.Type),
			Mode:  ListenMode(f.Mode),
			State: ListenState(f.State),
			Text:  f.Text,
		}, nil
	case TypeLLM:
		return LLMDelta{Text: f.Text}, nil
	case TypeSTT:
		return STTResult{Text: f.Text}, nil
	case TypeTTS:
		return TTSEvent{State: TTSState(f.State), Text: f.Text}, nil
	case TypeActivation:
		return decodeActivation(&f), nil
	case "":
		// Activation challenges may arrive without a type field.
		if f.Code != "" || f.Challenge != "" {
			return decodeActivation(&f), nil
		}
		return nil, fmt.Errorf("%w: missing type", ErrUnknownFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

func decodeActivation(f *frame) Event {
	return Activation{
		Message:   f.Message,
		Code:      f.Code,
		Challenge: f.Challenge,
		Timeout:   time.Duration(f.TimeoutMs) * time.Millisecond,
	}
}
