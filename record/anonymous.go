package record

import (
	"context"

	"github.com/driftstream/driftstream-go/internal/emitter"
)

// EventNameChanged fires on an AnonymousRecord after SetName switched the
// underlying record. It carries the new name.
const EventNameChanged = "nameChanged"

type anonSubscription struct {
	key  int
	path string
	cb   PathCallback
	// id is the registration on the current target record, 0 when the
	// proxy has no target
	id int
}

// AnonymousRecord is a record proxy whose target can be swapped at
// runtime. Path subscriptions registered on the proxy survive a SetName:
// they are moved to the new record and re-triggered with its state once it
// is ready. Useful for master-detail views where the selection changes but
// the wiring stays.
type AnonymousRecord struct {
	h       *Handler
	name    string
	record  *Record
	subs    []*anonSubscription
	nextKey int
	events  *emitter.Emitter
}

func newAnonymousRecord(h *Handler) *AnonymousRecord {
	return &AnonymousRecord{h: h, events: emitter.New()}
}

// Name returns the current target name, or "" before the first SetName.
func (a *AnonymousRecord) Name() string {
	a.h.c.mu.Lock()
	defer a.h.c.mu.Unlock()
	return a.name
}

// SetName points the proxy at a different record. The previous target is
// discarded, the new one is fetched and waited on, and every proxy
// subscription is re-registered against it with an immediate trigger.
func (a *AnonymousRecord) SetName(ctx context.Context, name string) error {
	a.h.c.mu.Lock()
	old := a.record
	subs := append([]*anonSubscription(nil), a.subs...)
	a.h.c.mu.Unlock()

	if old != nil && !old.IsDestroyed() {
		for _, sub := range subs {
			old.Unsubscribe(sub.path, sub.id)
		}
		old.Discard()
	}

	rec, err := a.h.GetRecord(ctx, name)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		id, err := rec.Subscribe(sub.path, sub.cb, true)
		if err != nil {
			return err
		}
		sub.id = id
	}

	var p deferred
	a.h.c.mu.Lock()
	a.record = rec
	a.name = name
	p.extend(a.events.Emit(EventReady))
	p.extend(a.events.Emit(EventNameChanged, name))
	a.h.c.mu.Unlock()
	p.run()
	return nil
}

// Get reads from the current target. It returns nil before the first
// SetName.
func (a *AnonymousRecord) Get(path string) any {
	rec := a.target()
	if rec == nil {
		return nil
	}
	return rec.Get(path)
}

// Set replaces the whole document of the current target.
func (a *AnonymousRecord) Set(data any) error {
	rec := a.target()
	if rec == nil {
		return errNoTarget()
	}
	return rec.Set(data)
}

// SetPath writes value at path on the current target.
func (a *AnonymousRecord) SetPath(path string, value any) error {
	rec := a.target()
	if rec == nil {
		return errNoTarget()
	}
	return rec.SetPath(path, value)
}

// Subscribe registers cb against the current and every future target. The
// returned id cancels it through Unsubscribe.
func (a *AnonymousRecord) Subscribe(path string, cb PathCallback, triggerNow bool) (int, error) {
	if cb == nil {
		return 0, newError(CodeInvalidArgument, "subscribe callback must not be nil")
	}
	a.h.c.mu.Lock()
	a.nextKey++
	sub := &anonSubscription{key: a.nextKey, path: path, cb: cb}
	a.subs = append(a.subs, sub)
	rec := a.record
	a.h.c.mu.Unlock()

	if rec != nil && !rec.IsDestroyed() {
		id, err := rec.Subscribe(path, cb, triggerNow)
		if err != nil {
			return 0, err
		}
		a.h.c.mu.Lock()
		sub.id = id
		a.h.c.mu.Unlock()
	}
	return sub.key, nil
}

// Unsubscribe removes the proxy subscription identified by path and the id
// returned from Subscribe.
func (a *AnonymousRecord) Unsubscribe(path string, id int) error {
	a.h.c.mu.Lock()
	var sub *anonSubscription
	for i, s := range a.subs {
		if s.key == id && s.path == path {
			sub = s
			a.subs = append(a.subs[:i], a.subs[i+1:]...)
			break
		}
	}
	rec := a.record
	a.h.c.mu.Unlock()

	if sub == nil {
		return newError(CodeInvalidArgument, "no subscription %d for path %q", id, path)
	}
	if rec != nil && !rec.IsDestroyed() && sub.id != 0 {
		return rec.Unsubscribe(path, sub.id)
	}
	return nil
}

// On registers cb for proxy lifecycle events (EventReady,
// EventNameChanged) and returns an id for Off.
func (a *AnonymousRecord) On(event string, cb EventCallback) int {
	a.h.c.mu.Lock()
	defer a.h.c.mu.Unlock()
	return a.events.On(event, cb)
}

// Off removes a proxy lifecycle registration.
func (a *AnonymousRecord) Off(event string, id int) {
	a.h.c.mu.Lock()
	defer a.h.c.mu.Unlock()
	a.events.Off(event, id)
}

// Discard releases the current target.
func (a *AnonymousRecord) Discard() error {
	rec := a.target()
	if rec == nil {
		return errNoTarget()
	}
	return rec.Discard()
}

// Delete deletes the current target.
func (a *AnonymousRecord) Delete() error {
	rec := a.target()
	if rec == nil {
		return errNoTarget()
	}
	return rec.Delete()
}

func (a *AnonymousRecord) target() *Record {
	a.h.c.mu.Lock()
	defer a.h.c.mu.Unlock()
	return a.record
}

func errNoTarget() *Error {
	return newError(CodeNotInitialized, "anonymous record has no name yet, call SetName first")
}
