package record

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/message"
)

// Handler owns every record-scope entity of one client: open records and
// lists, listen registrations, and the deduplicated has/snapshot queries.
// It routes inbound record messages to the right entity and reports the
// rest as unsolicited.
type Handler struct {
	c *core

	records   map[string]*Record
	lists     map[string]*List
	listeners map[string]*listener

	// destroyHooks keeps a record reachable for its final delete or
	// unsubscribe ack after it left the open registry.
	destroyHooks map[string]*Record

	has       *singleNotifier
	snapshots *singleNotifier
}

// NewHandler wires a record handler onto a connection. The caller routes
// inbound record-topic messages to Handle.
func NewHandler(conn connection.Connection, sched connection.Scheduler, opts Options) *Handler {
	opts.normalize()
	c := &core{
		mu:     new(sync.Mutex),
		conn:   conn,
		sched:  sched,
		opts:   opts,
		logger: opts.Logger,
	}
	h := &Handler{
		c:            c,
		records:      make(map[string]*Record),
		lists:        make(map[string]*List),
		listeners:    make(map[string]*listener),
		destroyHooks: make(map[string]*Record),
	}
	c.mu.Lock()
	h.has = newSingleNotifier(c, message.TopicRecord, message.ActionHas)
	h.snapshots = newSingleNotifier(c, message.TopicRecord, message.ActionSnapshot)
	c.mu.Unlock()
	return h
}

// Open returns the named record immediately, creating the subscription on
// first use. The record may not be readable yet; writes made before
// readiness are queued. Repeated opens share one instance; each adds an
// interest that Discard releases.
func (h *Handler) Open(name string) (*Record, error) {
	if name == "" {
		return nil, newError(CodeInvalidArgument, "record name must not be empty")
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	rec, ok := h.records[name]
	if !ok {
		rec = newRecord(h.c, name)
		h.records[name] = rec
		h.attach(rec)
	}
	rec.usages++
	return rec, nil
}

// GetRecord is Open followed by a wait for readability.
func (h *Handler) GetRecord(ctx context.Context, name string) (*Record, error) {
	rec, err := h.Open(name)
	if err != nil {
		return nil, err
	}
	if err := rec.WaitReady(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// OpenList returns the named list immediately, creating it on first use. A
// name opened as a plain record cannot be reopened as a list while that
// record is live.
func (h *Handler) OpenList(name string) (*List, error) {
	if name == "" {
		return nil, newError(CodeInvalidArgument, "list name must not be empty")
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	lst, ok := h.lists[name]
	if !ok {
		if _, taken := h.records[name]; taken {
			return nil, newError(CodeInvalidArgument, "%q is already open as a record", name)
		}
		lst = newList(h.c, name)
		h.lists[name] = lst
		h.records[name] = lst.Record
		h.attach(lst.Record)
	}
	lst.usages++
	return lst, nil
}

// GetList is OpenList followed by a wait for readability.
func (h *Handler) GetList(ctx context.Context, name string) (*List, error) {
	lst, err := h.OpenList(name)
	if err != nil {
		return nil, err
	}
	if err := lst.WaitReady(ctx); err != nil {
		return nil, err
	}
	return lst, nil
}

// GetAnonymousRecord returns a record proxy with no target yet.
func (h *Handler) GetAnonymousRecord() *AnonymousRecord {
	return newAnonymousRecord(h)
}

// attach hooks a record's lifecycle into the registries. Callers hold the
// core mutex; the hooks themselves run outside it and re-lock.
func (h *Handler) attach(rec *Record) {
	name := rec.name
	rec.emitter.On(EventDestroyPending, func(args ...any) {
		h.c.mu.Lock()
		h.destroyHooks[name] = rec
		if h.records[name] == rec {
			delete(h.records, name)
			delete(h.lists, name)
		}
		h.c.mu.Unlock()
	})
	drop := func(args ...any) {
		h.c.mu.Lock()
		if h.records[name] == rec {
			delete(h.records, name)
			delete(h.lists, name)
		}
		if h.destroyHooks[name] == rec {
			delete(h.destroyHooks, name)
		}
		h.c.mu.Unlock()
	}
	rec.emitter.On(EventDelete, drop)
	rec.emitter.On(EventDiscard, drop)
}

// Listen registers cb for subscriptions matching pattern. One registration
// per pattern; a second returns CodeListenerExists.
func (h *Handler) Listen(pattern string, cb ListenCallback) error {
	if pattern == "" || cb == nil {
		return newError(CodeInvalidArgument, "listen requires a pattern and a callback")
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if _, ok := h.listeners[pattern]; ok {
		return newError(CodeListenerExists, "already listening for %q", pattern)
	}
	h.listeners[pattern] = newListener(h.c, pattern, cb)
	return nil
}

// Unlisten removes the registration for pattern. Without one it returns
// CodeNotListening.
func (h *Handler) Unlisten(pattern string) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	l, ok := h.listeners[pattern]
	if !ok {
		return newError(CodeNotListening, "not listening for %q", pattern)
	}
	if l.destroyPending {
		// the unlisten ack never arrived; finish the teardown locally so
		// the pattern frees up instead of re-requesting it
		l.destroy()
		delete(h.listeners, pattern)
		return nil
	}
	l.sendDestroy()
	return nil
}

// Snapshot delivers the server-side state of a record without subscribing.
// An open, ready record answers locally; while offline a cached copy
// answers if one exists; otherwise the query goes to the server, shared
// with concurrent snapshots of the same name.
func (h *Handler) Snapshot(name string, cb ResponseCallback) error {
	if name == "" || cb == nil {
		return newError(CodeInvalidArgument, "snapshot requires a name and a callback")
	}
	var p deferred
	h.c.mu.Lock()
	switch {
	case h.records[name] != nil && h.records[name].ready:
		value := h.records[name].valueAt("", true)
		p.add(func() {
			cb(nil, value)
		})
	case h.c.offline():
		value, ok := h.cachedSnapshot(name)
		if ok {
			p.add(func() {
				cb(nil, value)
			})
		} else {
			err := newError(CodeConnectionError, "connection is down and %q is not cached", name)
			p.add(func() {
				cb(err, nil)
			})
		}
	default:
		h.snapshots.request(name, cb)
	}
	h.c.mu.Unlock()
	p.run()
	return nil
}

func (h *Handler) cachedSnapshot(name string) (any, bool) {
	store := h.c.opts.Store
	if store == nil {
		return nil, false
	}
	_, payload, ok, err := store.Get(name)
	if err != nil || !ok {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Has reports whether a record exists server-side. Open records answer
// locally; concurrent queries for the same name share one request.
func (h *Handler) Has(name string, cb func(err error, exists bool)) error {
	if name == "" || cb == nil {
		return newError(CodeInvalidArgument, "has requires a name and a callback")
	}
	var p deferred
	h.c.mu.Lock()
	if _, ok := h.records[name]; ok {
		p.add(func() {
			cb(nil, true)
		})
	} else {
		h.has.request(name, func(err error, data any) {
			exists, _ := data.(bool)
			cb(err, exists)
		})
	}
	h.c.mu.Unlock()
	p.run()
	return nil
}

// Handle routes one inbound record-topic message.
func (h *Handler) Handle(msg *message.Message) {
	var p deferred
	h.c.mu.Lock()
	h.route(&p, msg)
	h.c.mu.Unlock()
	p.run()
}

func (h *Handler) route(p *deferred, msg *message.Message) {
	// acks and errors carry the name second, behind the acked action or
	// the error code
	var name string
	switch msg.Action {
	case message.ActionAck, message.ActionError:
		if len(msg.Data) < 2 {
			h.c.reportf(p, message.EventUnsolicitedMessage, "malformed message %q", msg.Raw)
			return
		}
		name = msg.Data[1]
	default:
		if len(msg.Data) < 1 {
			h.c.reportf(p, message.EventUnsolicitedMessage, "malformed message %q", msg.Raw)
			return
		}
		name = msg.Data[0]
	}

	switch msg.Action {
	case message.ActionAck:
		h.routeAck(p, msg, name)

	case message.ActionSubscriptionForPatternFound, message.ActionSubscriptionForPatternRemoved:
		if l := h.listeners[msg.Data[0]]; l != nil {
			l.onMessage(p, msg)
			return
		}
		h.c.reportf(p, message.EventUnsolicitedMessage, "no listener for pattern %s", msg.Data[0])

	case message.ActionSubscriptionHasProvider:
		// provider updates may race a local discard, so a miss is not an
		// error
		if rec := h.records[name]; rec != nil {
			rec.onMessage(p, msg)
		}

	case message.ActionRead:
		if h.snapshots.hasRequest(name) {
			h.resolveSnapshot(p, msg, name)
			if h.records[name] == nil {
				return
			}
		}
		if rec := h.records[name]; rec != nil {
			rec.onMessage(p, msg)
			return
		}
		h.c.reportf(p, message.EventUnsolicitedMessage, "read response for unknown record %s", name)

	case message.ActionHas:
		if !h.has.hasRequest(name) {
			h.c.reportf(p, message.EventUnsolicitedMessage, "existence response for unknown query %s", name)
			return
		}
		if len(msg.Data) < 2 {
			h.has.receive(p, name, newError(message.EventMessageParseError, "malformed existence response for %s", name), nil)
			return
		}
		v, err := message.ConvertTyped(msg.Data[1])
		if err != nil {
			h.has.receive(p, name, newError(message.EventMessageParseError, "invalid existence response for %s", name), nil)
			return
		}
		exists, _ := v.(bool)
		h.has.receive(p, name, nil, exists)

	case message.ActionUpdate, message.ActionPatch, message.ActionWriteAck:
		if rec := h.records[name]; rec != nil {
			rec.onMessage(p, msg)
			return
		}
		h.c.reportf(p, message.EventUnsolicitedMessage, "%s for unknown record %s", msg.Action, name)

	case message.ActionError:
		h.routeError(p, msg, name)

	default:
		h.c.reportf(p, message.EventUnsolicitedMessage, "unknown record action %s", msg.Action)
	}
}

func (h *Handler) routeAck(p *deferred, msg *message.Message, name string) {
	switch message.Action(msg.Data[0]) {
	case message.ActionListen:
		if l := h.listeners[name]; l != nil {
			l.onMessage(p, msg)
			return
		}
	case message.ActionUnlisten:
		if l := h.listeners[name]; l != nil {
			l.acks.clear(p, msg)
			l.destroy()
			delete(h.listeners, name)
			return
		}
	case message.ActionDelete, message.ActionUnsubscribe:
		handled := false
		if rec := h.destroyHooks[name]; rec != nil {
			delete(h.destroyHooks, name)
			rec.onMessage(p, msg)
			handled = true
		}
		// a delete can be confirmed while the record is still open
		if message.Action(msg.Data[0]) == message.ActionDelete {
			if rec := h.records[name]; rec != nil {
				rec.onMessage(p, msg)
				handled = true
			}
		}
		if handled {
			return
		}
	default:
		if rec := h.records[name]; rec != nil {
			rec.onMessage(p, msg)
			return
		}
	}
	h.c.reportf(p, message.EventUnsolicitedMessage, "unexpected ack for %s %s", msg.Data[0], name)
}

func (h *Handler) routeError(p *deferred, msg *message.Message, name string) {
	code := msg.Data[0]
	switch code {
	case message.EventVersionExists:
		if rec := h.records[name]; rec != nil {
			rec.onMessage(p, msg)
			return
		}
		h.c.reportf(p, message.EventUnsolicitedMessage, "version conflict for unknown record %s", name)
		return
	case message.EventMessageDenied:
		// a denied query resolves its waiters with the error
		if len(msg.Data) >= 3 {
			deniedErr := newError(message.EventMessageDenied, "%s denied for %s", msg.Data[2], name)
			switch message.Action(msg.Data[2]) {
			case message.ActionSnapshot:
				if h.snapshots.hasRequest(name) {
					h.snapshots.receive(p, name, deniedErr, nil)
					return
				}
			case message.ActionHas:
				if h.has.hasRequest(name) {
					h.has.receive(p, name, deniedErr, nil)
					return
				}
			}
		}
	}
	if rec := h.records[name]; rec != nil {
		rec.onMessage(p, msg)
		return
	}
	h.c.report(p, code, name)
}

func (h *Handler) resolveSnapshot(p *deferred, msg *message.Message, name string) {
	if len(msg.Data) < 3 {
		h.snapshots.receive(p, name, newError(message.EventMessageParseError, "malformed snapshot for %s", name), nil)
		return
	}
	var value any
	if err := json.Unmarshal([]byte(msg.Data[2]), &value); err != nil {
		h.snapshots.receive(p, name, newError(message.EventMessageParseError, "invalid snapshot document for %s", name), nil)
		return
	}
	h.snapshots.receive(p, name, nil, value)
}

// Close tears down every open entity without waiting for server
// confirmations. Pending readiness waiters fail with CodeRecordDestroyed.
func (h *Handler) Close() {
	var p deferred
	h.c.mu.Lock()
	for name, rec := range h.records {
		rec.destroy(&p)
		delete(h.records, name)
	}
	for name := range h.lists {
		delete(h.lists, name)
	}
	for name, rec := range h.destroyHooks {
		rec.destroy(&p)
		delete(h.destroyHooks, name)
	}
	for pattern, l := range h.listeners {
		l.destroy()
		delete(h.listeners, pattern)
	}
	h.has.destroy()
	h.snapshots.destroy()
	h.c.mu.Unlock()
	p.run()
}
