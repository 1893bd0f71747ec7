package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocality/voicelink/pkg/audioio"
	"github.com/vocality/voicelink/pkg/capture"
	"github.com/vocality/voicelink/pkg/protocol"
)

// Config holds everything a session needs at construction time. The
// token and device identity come from the surrounding application;
// issuing them is not this package's concern.
type Config struct {
	// ServerURL is the backend WebSocket endpoint.
	ServerURL string

	// Device identity presented in the hello handshake.
	DeviceID   string
	DeviceName string
	DeviceMAC  string
	ClientID   string
	Token      string

	// HandshakeTimeout bounds the hello exchange. Zero means 10s.
	HandshakeTimeout time.Duration

	// Audio is the capture configuration. Zero value means defaults.
	Audio audioio.Config

	// MaxRecording bounds a single recording. Zero means the capture
	// package default.
	MaxRecording time.Duration

	// NewEncoder overrides the wire encoder. Nil means Opus.
	NewEncoder capture.EncoderFactory

	// NewSource overrides the capture source. Nil means platform auto.
	NewSource func(audioio.Config, *slog.Logger) (audioio.Source, error)

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Session is the façade the display layer drives. One Session manages
// exactly one logical chat session; construct a new one per lifecycle,
// and Disconnect when done.
type Session struct {
	cfg    Config
	logger *slog.Logger

	conn     *conn
	recorder *capture.Recorder
	analyzer *capture.Analyzer
	flow     *activationFlow

	// notifyMu serializes event dispatch so subscribers observe
	// transitions in the order they happened. Acquired before mu.
	notifyMu sync.Mutex

	mu          sync.Mutex
	messages    []Message
	recState    RecordingState
	lastErr     *ServiceError
	subscribers map[int]func(Event)
	nextSub     int
}

// NewSession creates a session. No I/O happens until Connect.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("device_id", cfg.DeviceID)

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	audioCfg := cfg.Audio
	if audioCfg.SampleRate == 0 {
		audioCfg = audioio.DefaultConfig()
	}
	cfg.Audio = audioCfg

	s := &Session{
		cfg:         cfg,
		logger:      logger,
		recState:    RecordingIdle,
		subscribers: make(map[int]func(Event)),
	}

	s.analyzer = capture.NewAnalyzer(logger)
	s.flow = newActivationFlow(logger, func(ch *ActivationChallenge) {
		s.emit(ActivationChanged{Challenge: ch})
	})

	s.recorder = capture.NewRecorder(capture.Config{
		Audio:       audioCfg,
		MaxDuration: cfg.MaxRecording,
		NewEncoder:  cfg.NewEncoder,
		NewSource:   cfg.NewSource,
	}, logger)
	s.recorder.OnFrame(s.transmitFrame)
	s.recorder.OnChunk(s.analyzer.Feed)
	s.recorder.OnLimit(func() {
		s.logger.Warn("recording duration ceiling reached")
		s.finishRecording(true)
	})

	s.conn = newConn(connConfig{
		URL:              cfg.ServerURL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Hello: protocol.Hello{
			DeviceID:   cfg.DeviceID,
			DeviceName: cfg.DeviceName,
			DeviceMAC:  cfg.DeviceMAC,
			Token:      bearer(cfg.Token),
			Features:   &protocol.Features{},
			Audio: &protocol.AudioParams{
				Format:        "opus",
				SampleRate:    audioCfg.SampleRate,
				Channels:      audioCfg.Channels,
				FrameDuration: int(audioCfg.BufferDuration.Milliseconds()),
			},
		},
	}, logger)
	s.conn.onEvent = s.handleEvent
	s.conn.onStateChange = func(state ConnectionState) {
		s.emit(ConnectionStateChanged{State: state})
	}
	s.conn.onClosed = s.handleConnectionLost

	return s
}

func bearer(token string) string {
	if token == "" || strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// Subscribe registers a listener for session events. Multiple
// independent listeners are supported; the returned function removes
// this one.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// emit delivers an event to all subscribers, serialized so listeners
// observe transitions in order.
func (s *Session) emit(ev Event) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// raise records err as the active error, notifies subscribers, and
// returns it for the caller.
func (s *Session) raise(err *ServiceError) *ServiceError {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Warn("service error",
		"code", err.Code,
		"recoverable", err.Recoverable,
		"err", err,
	)
	s.emit(ErrorRaised{Err: err})
	return err
}

// Connect opens the transport and performs the hello handshake. A no-op
// when already connecting or connected. A successful connect clears any
// residual error.
func (s *Session) Connect() error {
	if err := s.conn.Connect(); err != nil {
		if se, ok := AsServiceError(err); ok {
			return s.raise(se)
		}
		return s.raise(newServiceError(CodeConnectionFailed, "connect failed", true, err))
	}

	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

// Disconnect tears down everything deterministically: recording is
// force-stopped, the capture device and timers released, the transport
// closed, and any pending activation dismissed. Idempotent.
func (s *Session) Disconnect() {
	s.stopCapture()
	s.flow.Dismiss()
	s.conn.Disconnect()
}

// SendMessage appends a local user message and transmits it. The local
// echo is optimistic: a transmit failure raises an error but does not
// remove the appended message.
func (s *Session) SendMessage(text string) error {
	if s.conn.State() != StateConnected {
		return s.raise(notConnectedError("sendMessage"))
	}

	s.appendMessage(KindUser, text)

	data, err := protocol.EncodeListen(s.conn.SessionID(), protocol.ModeManual, protocol.StateDetect, text)
	if err != nil {
		return s.raise(newServiceError(CodeSendFailed, "failed to encode message", false, err))
	}
	if err := s.conn.WriteText(data); err != nil {
		if se, ok := AsServiceError(err); ok {
			return s.raise(se)
		}
		return s.raise(newServiceError(CodeSendFailed, "failed to transmit message", true, err))
	}
	return nil
}

// AbortSpeech asks the backend to cancel any in-flight assistant speech.
func (s *Session) AbortSpeech(reason string) error {
	if s.conn.State() != StateConnected {
		return s.raise(notConnectedError("abortSpeech"))
	}

	data, err := protocol.EncodeAbort(s.conn.SessionID(), reason)
	if err == nil {
		err = s.conn.WriteText(data)
	}
	if err != nil {
		if se, ok := AsServiceError(err); ok {
			return s.raise(se)
		}
		return s.raise(newServiceError(CodeSendFailed, "failed to abort speech", true, err))
	}
	return nil
}

// StartRecording acquires the microphone and begins streaming audio
// frames over the connection. Fails fast with NOT_CONNECTED unless the
// session is Connected and recording is Idle; a failed start performs
// no state transition.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	if s.conn.State() != StateConnected || s.recState != RecordingIdle {
		s.mu.Unlock()
		return s.raise(notConnectedError("startRecording"))
	}
	s.mu.Unlock()

	if err := s.recorder.Start(context.Background()); err != nil {
		return s.raise(captureError(err))
	}

	// Device acquired. Tell the backend before exposing the state flip so
	// a failed control frame can unwind completely.
	data, err := protocol.EncodeListen(s.conn.SessionID(), protocol.ModeManual, protocol.StateStart, "")
	if err == nil {
		err = s.conn.WriteText(data)
	}
	if err != nil {
		s.recorder.Stop()
		if se, ok := AsServiceError(err); ok {
			return s.raise(se)
		}
		return s.raise(newServiceError(CodeSendFailed, "failed to announce recording", true, err))
	}

	s.analyzer.Start()
	s.setRecordingState(RecordingActive)
	return nil
}

// StopRecording finalizes capture: flushes the encoder tail, releases
// the device, halts sampling, and notifies the backend. Safe to call at
// any time.
func (s *Session) StopRecording() {
	s.mu.Lock()
	if s.recState != RecordingActive {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.setRecordingState(RecordingStopping)

	// Best-effort: the stop frame is advisory, teardown proceeds
	// regardless.
	if data, err := protocol.EncodeListen(s.conn.SessionID(), protocol.ModeManual, protocol.StateStop, ""); err == nil {
		s.conn.WriteText(data)
	}

	s.finishRecording(false)
}

// finishRecording releases capture resources and transitions to Idle.
// announced is true when the watchdog already stopped the recorder.
func (s *Session) finishRecording(announced bool) {
	if announced {
		if data, err := protocol.EncodeListen(s.conn.SessionID(), protocol.ModeManual, protocol.StateStop, ""); err == nil {
			s.conn.WriteText(data)
		}
	}
	s.stopCapture()
}

// stopCapture releases the device and sampling timer unconditionally and
// forces the recording state to Idle.
func (s *Session) stopCapture() {
	s.recorder.Stop()
	s.analyzer.Stop()
	s.setRecordingState(RecordingIdle)
}

func (s *Session) setRecordingState(state RecordingState) {
	s.mu.Lock()
	if s.recState == state {
		s.mu.Unlock()
		return
	}
	s.recState = state
	s.mu.Unlock()

	s.emit(RecordingStateChanged{State: state})
}

// transmitFrame ships one encoded capture frame over the socket.
func (s *Session) transmitFrame(f capture.Frame) {
	if err := s.conn.WriteBinary(f.Data); err != nil {
		// Frame loss mid-recording is not fatal; the connection loss
		// path handles teardown if the socket is gone.
		s.logger.Debug("audio frame dropped", "err", err)
	}
}

// handleConnectionLost runs when the read loop exits unexpectedly.
// Recording cannot outlive the connection.
func (s *Session) handleConnectionLost(err error) {
	s.stopCapture()
	s.raise(newServiceError(CodeConnectionFailed, "connection lost", true, err))
}

// handleEvent dispatches decoded inbound frames. Called from the read
// goroutine; transcript order is arrival order.
func (s *Session) handleEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.LLMDelta:
		s.appendMessage(KindLLMText, e.Text)
	case protocol.STTResult:
		s.appendMessage(KindSTTResult, e.Text)
	case protocol.TTSEvent:
		// Sentence boundaries carry the spoken text; lifecycle-only
		// frames have nothing to transcribe.
		if e.Text != "" {
			s.appendMessage(KindTTSEvent, e.Text)
		}
	case protocol.ControlEcho:
		if e.Text != "" {
			s.appendMessage(KindServer, e.Text)
		}
	case protocol.Activation:
		s.flow.Set(ActivationChallenge{
			Message:   e.Message,
			Code:      e.Code,
			Challenge: e.Challenge,
			Timeout:   e.Timeout,
		})
	case protocol.Audio:
		// Playback rendering is owned by the display layer; nothing to
		// do here.
	case protocol.HelloAck:
		// Consumed during the handshake.
	}
}

// appendMessage adds one transcript entry and notifies subscribers.
// notifyMu is held across append and emit so listeners see messages in
// transcript order.
func (s *Session) appendMessage(kind MessageKind, text string) {
	msg := Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now(),
	}

	s.notifyMu.Lock()
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(MessageAppended{Message: msg})
	}
	s.notifyMu.Unlock()
}

// Messages returns a copy of the transcript in arrival order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ConnectionState returns the current connection state.
func (s *Session) ConnectionState() ConnectionState {
	return s.conn.State()
}

// RecordingState returns the current recording state.
func (s *Session) RecordingState() RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recState
}

// Err returns the active ServiceError, or nil. The display layer owns
// its dismissal via ClearError.
func (s *Session) Err() *ServiceError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearError dismisses the active error.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// Activation returns the active challenge, or nil.
func (s *Session) Activation() *ActivationChallenge {
	return s.flow.Current()
}

// DismissActivation clears the active challenge on user action.
func (s *Session) DismissActivation() {
	s.flow.Dismiss()
}

// FrequencySample returns the latest visualization sample. The sequence
// number resets to zero on each recording start.
func (s *Session) FrequencySample() capture.Sample {
	return s.analyzer.Sample()
}

// SessionID returns the backend-assigned session id, if connected.
func (s *Session) SessionID() string {
	return s.conn.SessionID()
}
