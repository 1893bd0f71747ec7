package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vocality/voicelink/pkg/protocol"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	keepAliveInterval       = 30 * time.Second
	writeTimeout            = 10 * time.Second
)

// connConfig is the transport configuration for one connection attempt.
type connConfig struct {
	URL              string
	Hello            protocol.Hello
	HandshakeTimeout time.Duration
}

// conn owns the WebSocket, the hello handshake, and the connection state
// machine. There is no automatic reconnect: a dropped connection
// surfaces through onClosed and requires an explicit Connect call.
type conn struct {
	cfg    connConfig
	logger *slog.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	state     ConnectionState
	sessionID string
	closing   bool

	writeMu sync.Mutex

	// Callbacks, set once before first Connect.
	onEvent       func(protocol.Event)
	onStateChange func(ConnectionState)
	onClosed      func(err error)
}

func newConn(cfg connConfig, logger *slog.Logger) *conn {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &conn{
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current connection state.
func (c *conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id assigned by the handshake ack, if any.
func (c *conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *conn) setState(s ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

// Connect dials the backend, performs the hello handshake, and starts
// the read loop. A no-op when already Connecting or Connected.
func (c *conn) Connect() error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	c.mu.Unlock()

	c.setState(StateConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.setState(StateError)
		return newServiceError(CodeConnectionFailed, "failed to reach backend", true, err)
	}

	hello, err := protocol.EncodeHello(c.cfg.Hello)
	if err != nil {
		ws.Close()
		c.setState(StateError)
		return newServiceError(CodeConnectionFailed, "failed to encode hello", false, err)
	}

	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, hello); err != nil {
		ws.Close()
		c.setState(StateError)
		return newServiceError(CodeConnectionFailed, "failed to send hello", true, err)
	}

	ack, err := c.awaitAck(ws)
	if err != nil {
		ws.Close()
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.sessionID = ack.SessionID
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("connected", "session_id", ack.SessionID)

	go c.readLoop(ws)
	go c.keepAlive(ws)

	return nil
}

// awaitAck reads frames until the hello acknowledgement arrives, within
// the handshake deadline. Non-hello frames before the ack are dropped;
// the backend accepts no chat traffic before the handshake completes.
func (c *conn) awaitAck(ws *websocket.Conn) (protocol.HelloAck, error) {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return protocol.HelloAck{}, newServiceError(
				CodeHandshakeTimeout, "backend did not acknowledge hello", true, err)
		}
		if mt != websocket.TextMessage {
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping frame during handshake", "err", err)
			continue
		}
		if ack, ok := ev.(protocol.HelloAck); ok {
			return ack, nil
		}
		c.logger.Debug("non-ack frame before handshake completion, dropping")
	}
}

// readLoop decodes inbound frames and dispatches events until the
// connection closes.
func (c *conn) readLoop(ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()

			if !closing {
				ws.Close()
				c.logger.Warn("connection lost", "err", err)
				c.setState(StateDisconnected)
				if c.onClosed != nil {
					c.onClosed(err)
				}
			}
			return
		}

		var ev protocol.Event
		switch mt {
		case websocket.TextMessage:
			ev, err = protocol.Decode(data)
			if err != nil {
				// Unknown or malformed frames are logged and dropped,
				// never surfaced as session errors.
				if errors.Is(err, protocol.ErrUnknownFrame) {
					c.logger.Warn("unknown frame type, dropping", "err", err)
				} else {
					c.logger.Warn("malformed frame, dropping", "err", err)
				}
				continue
			}
		case websocket.BinaryMessage:
			ev = protocol.DecodeBinary(data)
		default:
			continue
		}

		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

// keepAlive sends periodic pings so intermediaries keep the connection
// open during long idle stretches.
func (c *conn) keepAlive(ws *websocket.Conn) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.ws
		closing := c.closing
		c.mu.Unlock()

		if closing || current != ws {
			return
		}

		c.writeMu.Lock()
		err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// WriteText transmits a JSON control frame.
func (c *conn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// WriteBinary transmits a raw audio frame.
func (c *conn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	ws := c.ws
	state := c.state
	c.mu.Unlock()

	if ws == nil || state != StateConnected {
		return notConnectedError("send")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(messageType, data); err != nil {
		return newServiceError(CodeSendFailed, "failed to transmit frame", true, err)
	}
	return nil
}

// Disconnect closes the transport. Idempotent; always leaves the state
// machine in Disconnected.
func (c *conn) Disconnect() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.closing = true
	c.sessionID = ""
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}

	c.setState(StateDisconnected)
}
