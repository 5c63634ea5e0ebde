// Package driftstream is a client for driftstream servers. It synchronizes
// named, versioned JSON documents (records) and ordered collections of
// record names (lists) over a message-framed connection, with optimistic
// writes, path-level change subscriptions and pluggable conflict
// resolution.
//
// A minimal session:
//
//	client, err := driftstream.Dial("ws://localhost:6020/driftstream", driftstream.DefaultOptions())
//	if err != nil { ... }
//	defer client.Close()
//
//	rec, err := client.Records().GetRecord(ctx, "user/"+client.GetUID())
//	if err != nil { ... }
//	rec.Subscribe("status", func(v any) { ... }, true)
//	rec.SetPath("status", "online")
package driftstream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/internal/emitter"
	"github.com/driftstream/driftstream-go/message"
	"github.com/driftstream/driftstream-go/record"
	"github.com/driftstream/driftstream-go/storage"
)

// Error is the structured error produced across the client.
type Error = record.Error

// Client ties a connection to the record subsystem and fans out errors
// that have no caller to return to.
type Client struct {
	conn     connection.Connection
	ownsConn *connection.WSConnection
	records  *record.Handler
	store    storage.Store
	logger   *slog.Logger

	mu      sync.Mutex
	errSubs *emitter.Emitter
	closed  bool
}

// Dial connects to a driftstream server over websocket and returns a ready
// client. The connection retries in the background until Close.
func Dial(url string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := connection.DialWS(url, logger)
	if err != nil {
		return nil, err
	}
	c, err := New(conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.ownsConn = conn
	return c, nil
}

// New builds a client on an existing connection. The caller keeps
// ownership of the connection's lifecycle.
func New(conn connection.Connection, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Storage
	if store == nil && opts.StoragePath != "" {
		var err error
		store, err = storage.Open(opts.StoragePath)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		conn:    conn,
		store:   store,
		logger:  logger,
		errSubs: emitter.New(),
	}
	c.records = record.NewHandler(conn, connection.NewScheduler(), record.Options{
		ReadAckTimeout:      opts.RecordReadAckTimeout,
		ReadTimeout:         opts.RecordReadTimeout,
		DeleteTimeout:       opts.RecordDeleteTimeout,
		SubscriptionTimeout: opts.SubscriptionTimeout,
		CopyOnRead:          opts.RecordDeepCopyRead,
		CopyOnWrite:         opts.RecordDeepCopyWrite,
		Merge:               opts.MergeStrategy,
		Store:               store,
		Logger:              logger,
		OnError:             c.dispatchError,
	})
	conn.OnMessage(c.route)
	return c, nil
}

// Records returns the record subsystem.
func (c *Client) Records() *record.Handler {
	return c.records
}

// GetUID returns a unique, time-ordered id suitable for record names.
func (c *Client) GetUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// OnError registers cb for errors that have no caller to return to. The
// returned function removes the registration.
func (c *Client) OnError(cb func(err *Error)) (off func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.errSubs.On("error", func(args ...any) {
		cb(args[0].(*Error))
	})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.errSubs.Off("error", id)
	}
}

// Close tears down the record subsystem, the owned connection and the
// cache store. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.records.Close()
	if c.ownsConn != nil {
		c.ownsConn.Close()
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

func (c *Client) route(msg *message.Message) {
	switch msg.Topic {
	case message.TopicRecord:
		c.records.Handle(msg)
	case message.TopicError:
		event := "UNKNOWN_ERROR"
		detail := msg.Raw
		if len(msg.Data) > 0 {
			event = msg.Data[0]
		}
		if len(msg.Data) > 1 {
			detail = msg.Data[1]
		}
		c.dispatchError(message.TopicError, event, detail)
	default:
		c.logger.Debug("ignoring message for unhandled topic", "topic", msg.Topic, "action", msg.Action)
	}
}

func (c *Client) dispatchError(topic message.Topic, event, msg string) {
	err := &Error{Topic: topic, Code: event, Message: msg}
	c.mu.Lock()
	fns := c.errSubs.Emit("error", err)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
