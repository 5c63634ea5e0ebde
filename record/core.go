// Package record implements the client-side record synchronization core:
// versioned records and lists with optimistic concurrency, path-level
// change subscriptions, conflict recovery through pluggable merge
// strategies, and listening for subscription patterns.
//
// Every component created by one Handler shares a single mutex. Public
// methods, inbound message dispatch, and timer callbacks all serialize on
// it; user callbacks are never invoked while it is held. Code running
// under the lock collects callbacks into a deferred queue, which the
// outermost caller drains after unlocking.
package record

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/message"
)

// core bundles the collaborators shared by every record-scope component of
// one client: the serializing mutex, the transport, the timer source and
// the resolved options.
type core struct {
	mu     *sync.Mutex
	conn   connection.Connection
	sched  connection.Scheduler
	opts   Options
	logger *slog.Logger
}

// report queues a client-channel error notification.
func (c *core) report(p *deferred, event, msg string) {
	c.logger.Warn("record error", "event", event, "message", msg)
	onError := c.opts.OnError
	if onError == nil {
		return
	}
	p.add(func() {
		onError(message.TopicRecord, event, msg)
	})
}

func (c *core) reportf(p *deferred, event, format string, args ...any) {
	c.report(p, event, fmt.Sprintf(format, args...))
}

// offline reports whether sends would currently be buffered instead of
// reaching the server.
func (c *core) offline() bool {
	switch c.conn.State() {
	case connection.StateClosed, connection.StateReconnecting:
		return true
	}
	return false
}

// deferred accumulates callbacks while the core mutex is held. The caller
// that took the lock runs the queue after releasing it, preserving
// registration and emission order.
type deferred struct {
	fns []func()
}

func (d *deferred) add(fn func()) {
	d.fns = append(d.fns, fn)
}

func (d *deferred) extend(fns []func()) {
	d.fns = append(d.fns, fns...)
}

func (d *deferred) run() {
	for _, fn := range d.fns {
		fn()
	}
	d.fns = nil
}
