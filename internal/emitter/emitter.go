// Package emitter provides an ordered callback registry keyed by event name.
//
// It is deliberately not goroutine-safe: callers hold the client mutex while
// registering and emitting. Emit does not invoke callbacks; it returns the
// invocations so the caller can run them after releasing the lock, which
// keeps user callbacks free to reenter the API.
package emitter

// Callback receives the arguments passed to Emit.
type Callback func(args ...any)

type entry struct {
	id   int
	once bool
	cb   Callback
}

// Emitter maps event names to ordered callback lists. Duplicate
// registrations of the same function are kept; each registration has its own
// id for removal (Go functions are not comparable).
type Emitter struct {
	handlers map[string][]entry
	nextID   int
}

func New() *Emitter {
	return &Emitter{handlers: make(map[string][]entry)}
}

// On registers a callback and returns its registration id.
func (e *Emitter) On(event string, cb Callback) int {
	return e.add(event, cb, false)
}

// Once registers a callback that is dropped after its first emission.
func (e *Emitter) Once(event string, cb Callback) int {
	return e.add(event, cb, true)
}

func (e *Emitter) add(event string, cb Callback, once bool) int {
	e.nextID++
	e.handlers[event] = append(e.handlers[event], entry{id: e.nextID, once: once, cb: cb})
	return e.nextID
}

// Off removes the registration with the given id. Unknown ids are ignored.
func (e *Emitter) Off(event string, id int) {
	entries := e.handlers[event]
	for i, en := range entries {
		if en.id == id {
			e.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(e.handlers[event]) == 0 {
		delete(e.handlers, event)
	}
}

// Listeners returns the number of callbacks registered for an event.
func (e *Emitter) Listeners(event string) int {
	return len(e.handlers[event])
}

// Events returns the event names that currently have callbacks.
func (e *Emitter) Events() []string {
	events := make([]string, 0, len(e.handlers))
	for event := range e.handlers {
		events = append(events, event)
	}
	return events
}

// Emit returns the pending invocations for an event, in registration order.
// Once-registrations are consumed.
func (e *Emitter) Emit(event string, args ...any) []func() {
	entries := e.handlers[event]
	if len(entries) == 0 {
		return nil
	}

	fns := make([]func(), 0, len(entries))
	kept := entries[:0:0]
	for _, en := range entries {
		cb := en.cb
		fns = append(fns, func() { cb(args...) })
		if !en.once {
			kept = append(kept, en)
		}
	}
	if len(kept) == 0 {
		delete(e.handlers, event)
	} else {
		e.handlers[event] = kept
	}
	return fns
}

// RemoveAll drops every registration.
func (e *Emitter) RemoveAll() {
	e.handlers = make(map[string][]entry)
}
