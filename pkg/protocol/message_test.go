package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeHello(t *testing.T) {
	data, err := EncodeHello(Hello{
		DeviceID:   "dev-1",
		DeviceName: "kitchen-panel",
		DeviceMAC:  "aa:bb:cc:dd:ee:ff",
		Token:      "secret",
		Features:   &Features{MCP: true},
		Audio: &AudioParams{
			Format:        "opus",
			SampleRate:    16000,
			Channels:      1,
			FrameDuration: 60,
		},
	})
	if err != nil {
		t.Fatalf("EncodeHello() error = %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if got["type"] != "hello" {
		t.Errorf("type = %v, want hello", got["type"])
	}
	if got["device_id"] != "dev-1" {
		t.Errorf("device_id = %v, want dev-1", got["device_id"])
	}
	if got["device_mac"] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("device_mac = %v", got["device_mac"])
	}
	if got["token"] != "secret" {
		t.Errorf("token = %v, want secret", got["token"])
	}
	if got["transport"] != "websocket" {
		t.Errorf("transport = %v, want websocket", got["transport"])
	}
	features, ok := got["features"].(map[string]interface{})
	if !ok || features["mcp"] != true {
		t.Errorf("features = %v, want mcp=true", got["features"])
	}
}

func TestEncodeListen(t *testing.T) {
	tests := []struct {
		name  string
		mode  ListenMode
		state ListenState
		text  string
	}{
		{name: "manual start", mode: ModeManual, state: StateStart},
		{name: "manual stop", mode: ModeManual, state: StateStop},
		{name: "detect with text", mode: ModeManual, state: StateDetect, text: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeListen("sess-1", tt.mode, tt.state, tt.text)
			if err != nil {
				t.Fatalf("EncodeListen() error = %v", err)
			}

			var got map[string]interface{}
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if got["type"] != "listen" {
				t.Errorf("type = %v, want listen", got["type"])
			}
			if got["session_id"] != "sess-1" {
				t.Errorf("session_id = %v, want sess-1", got["session_id"])
			}
			if got["mode"] != string(tt.mode) {
				t.Errorf("mode = %v, want %v", got["mode"], tt.mode)
			}
			if got["state"] != string(tt.state) {
				t.Errorf("state = %v, want %v", got["state"], tt.state)
			}
			if tt.text == "" {
				if _, present := got["text"]; present {
					t.Error("text should be omitted when empty")
				}
			} else if got["text"] != tt.text {
				t.Errorf("text = %v, want %v", got["text"], tt.text)
			}
		})
	}
}

func TestEncodeAbort(t *testing.T) {
	data, err := EncodeAbort("sess-1", "wake_word_detected")
	if err != nil {
		t.Fatalf("EncodeAbort() error = %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["type"] != "abort" {
		t.Errorf("type = %v, want abort", got["type"])
	}
	if got["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", got["session_id"])
	}
	if got["reason"] != "wake_word_detected" {
		t.Errorf("reason = %v", got["reason"])
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Event
	}{
		{
			name:  "hello ack",
			input: `{"type":"hello","transport":"websocket","session_id":"sess-9"}`,
			want:  HelloAck{SessionID: "sess-9", Transport: "websocket"},
		},
		{
			name:  "llm delta",
			input: `{"type":"llm","text":"hello there"}`,
			want:  LLMDelta{Text: "hello there"},
		},
		{
			name:  "stt transcript",
			input: `{"type":"stt","text":"turn on the lights"}`,
			want:  STTResult{Text: "turn on the lights"},
		},
		{
			name:  "tts sentence start",
			input: `{"type":"tts","state":"sentence_start","text":"Sure."}`,
			want:  TTSEvent{State: TTSSentenceStart, Text: "Sure."},
		},
		{
			name:  "tts stop",
			input: `{"type":"tts","state":"stop"}`,
			want:  TTSEvent{State: TTSStop},
		},
		{
			name:  "listen echo",
			input: `{"type":"listen","mode":"manual","state":"start"}`,
			want:  ControlEcho{Frame: TypeListen, Mode: ModeManual, State: StateStart},
		},
		{
			name:  "speak echo",
			input: `{"type":"speak","mode":"auto","state":"stop","text":"done"}`,
			want:  ControlEcho{Frame: TypeSpeak, Mode: ModeAuto, State: StateStop, Text: "done"},
		},
		{
			name:  "activation with type",
			input: `{"type":"activation","message":"enter code","code":"123456","challenge":"abc","timeout_ms":5000}`,
			want: Activation{
				Message:   "enter code",
				Code:      "123456",
				Challenge: "abc",
				Timeout:   5 * time.Second,
			},
		},
		{
			name:  "activation without type",
			input: `{"message":"enter code","code":"654321","challenge":"xyz","timeout_ms":30000}`,
			want: Activation{
				Message:   "enter code",
				Code:      "654321",
				Challenge: "xyz",
				Timeout:   30 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeUnknownFrame(t *testing.T) {
	_, err := Decode([]byte(`{"type":"mcp","payload":{}}`))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("Decode() error = %v, want ErrUnknownFrame", err)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeEmptyObject(t *testing.T) {
	_, err := Decode([]byte(`{}`))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("Decode() error = %v, want ErrUnknownFrame", err)
	}
}

func TestDecodeBinary(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	ev := DecodeBinary(payload)

	audio, ok := ev.(Audio)
	if !ok {
		t.Fatalf("DecodeBinary() = %T, want Audio", ev)
	}
	if len(audio.Data) != 3 {
		t.Errorf("Data length = %d, want 3", len(audio.Data))
	}
}
