package connection

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftstream/driftstream-go/message"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("connection is closed")

// WSConnection is the websocket transport. It reconnects with capped
// exponential backoff after read failures and buffers outbound frames while
// not OPEN; buffered frames flush in order when the connection (re)opens.
type WSConnection struct {
	url    string
	logger *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration

	// writeMu serializes websocket writes (the websocket package allows a
	// single writer).
	writeMu sync.Mutex

	mu        sync.Mutex
	ws        *websocket.Conn
	state     State
	stateSubs map[int]func(State)
	nextSubID int
	onMessage func(*message.Message)
	buffer    []string
	closed    bool
}

// DialWS connects to a websocket endpoint and starts the read loop. The
// returned connection is OPEN. A nil logger falls back to slog.Default.
func DialWS(url string, logger *slog.Logger) (*WSConnection, error) {
	return dialWS(url, logger, defaultInitialBackoff, defaultMaxBackoff)
}

func dialWS(url string, logger *slog.Logger, initialBackoff, maxBackoff time.Duration) (*WSConnection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &WSConnection{
		url:            url,
		logger:         logger,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		state:          StateAwaitingConnection,
		stateSubs:      make(map[int]func(State)),
	}

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.setState(StateOpen)

	go c.run(ws)
	return c, nil
}

// Send encodes and transmits one frame, or buffers it while the connection
// is not OPEN. A frame that fails mid-write is re-buffered so it is resent
// after reconnection.
func (c *WSConnection) Send(topic message.Topic, action message.Action, data ...string) error {
	frame := message.Build(topic, action, data...)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateOpen || c.ws == nil {
		c.buffer = append(c.buffer, frame)
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	c.mu.Unlock()

	if err := c.writeFrame(ws, frame); err != nil {
		c.logger.Warn("write failed, frame buffered for resend",
			"frame", message.Humanize(frame), "err", err)
		c.mu.Lock()
		c.buffer = append(c.buffer, frame)
		c.mu.Unlock()
	}
	return nil
}

func (c *WSConnection) writeFrame(ws *websocket.Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// State returns the current connection state.
func (c *WSConnection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a state-change callback and returns its remover.
func (c *WSConnection) OnStateChange(cb func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.stateSubs[id] = cb
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

// OnMessage sets the inbound message callback.
func (c *WSConnection) OnMessage(cb func(*message.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = cb
}

// Close tears the connection down. Idempotent.
func (c *WSConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	var err error
	if ws != nil {
		err = ws.Close()
	}
	c.setState(StateClosed)
	return err
}

// run reads frames until the socket fails, then reconnects, resuming reads
// on each new socket. Exits on Close.
func (c *WSConnection) run(ws *websocket.Conn) {
	for {
		c.readUntilError(ws)

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		ws = c.reconnect()
		if ws == nil {
			return
		}
	}
}

func (c *WSConnection) readUntilError(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		msgs, perr := message.ParseAll(string(data))
		if perr != nil {
			c.logger.Warn("skipping malformed frame", "err", perr)
		}
		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb == nil {
			continue
		}
		for _, msg := range msgs {
			cb(msg)
		}
	}
}

func (c *WSConnection) reconnect() *websocket.Conn {
	c.setState(StateReconnecting)

	backoff := c.initialBackoff
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}

		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.logger.Debug("reconnect failed", "url", c.url, "backoff", backoff, "err", err)
			time.Sleep(backoff)
			if backoff *= 2; backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			return nil
		}
		c.ws = ws
		pending := c.buffer
		c.buffer = nil
		c.mu.Unlock()

		// OPEN is announced before the flush so sends issued by state-change
		// callbacks go straight to the socket instead of re-buffering.
		c.setState(StateOpen)
		for _, frame := range pending {
			if err := c.writeFrame(ws, frame); err != nil {
				c.logger.Warn("flush failed, frame re-buffered", "err", err)
				c.mu.Lock()
				c.buffer = append(c.buffer, frame)
				c.mu.Unlock()
			}
		}
		return ws
	}
}

func (c *WSConnection) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(State), 0, len(c.stateSubs))
	for _, cb := range c.stateSubs {
		subs = append(subs, cb)
	}
	c.mu.Unlock()

	for _, cb := range subs {
		cb(s)
	}
}
