package record

import (
	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/message"
)

// ResponseCallback receives the outcome of a one-shot query such as a
// snapshot or an existence check.
type ResponseCallback func(err error, data any)

type notifyEntry struct {
	timer connection.Timer
	cb    ResponseCallback
}

// singleNotifier deduplicates one-shot request/response queries. The first
// caller for a name sends the request; later callers for the same name
// attach to the pending one. Every waiter has its own response deadline,
// and a deadline firing is terminal for that waiter. Outstanding requests
// are re-sent after a reconnect. All methods expect the core mutex held.
type singleNotifier struct {
	c        *core
	topic    message.Topic
	action   message.Action
	requests map[string][]*notifyEntry
	resub    *resubscribeNotifier
}

func newSingleNotifier(c *core, topic message.Topic, action message.Action) *singleNotifier {
	n := &singleNotifier{
		c:        c,
		topic:    topic,
		action:   action,
		requests: make(map[string][]*notifyEntry),
	}
	n.resub = newResubscribeNotifier(c, n.resend)
	return n
}

func (n *singleNotifier) hasRequest(name string) bool {
	_, ok := n.requests[name]
	return ok
}

// request attaches cb to the pending query for name, sending the query if
// it is the first.
func (n *singleNotifier) request(name string, cb ResponseCallback) {
	if _, ok := n.requests[name]; !ok {
		n.requests[name] = nil
		n.c.conn.Send(n.topic, n.action, name)
	}
	entry := &notifyEntry{cb: cb}
	entry.timer = n.c.sched.Schedule(n.c.opts.SubscriptionTimeout, func() {
		var p deferred
		n.c.mu.Lock()
		n.expire(&p, name, entry)
		n.c.mu.Unlock()
		p.run()
	})
	n.requests[name] = append(n.requests[name], entry)
}

// receive resolves every waiter attached to name.
func (n *singleNotifier) receive(p *deferred, name string, err error, data any) {
	entries, ok := n.requests[name]
	if !ok {
		return
	}
	delete(n.requests, name)
	for _, entry := range entries {
		entry.timer.Stop()
		cb := entry.cb
		p.add(func() {
			cb(err, data)
		})
	}
}

// expire fails a single waiter whose deadline passed. The request itself is
// dropped once its last waiter is gone so a reconnect does not revive it.
func (n *singleNotifier) expire(p *deferred, name string, expired *notifyEntry) {
	entries, ok := n.requests[name]
	if !ok {
		return
	}
	kept := entries[:0]
	found := false
	for _, entry := range entries {
		if entry == expired {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return
	}
	if len(kept) == 0 {
		delete(n.requests, name)
	} else {
		n.requests[name] = kept
	}
	n.c.reportf(p, message.EventResponseTimeout, "no response received in time for %s %s", n.action, name)
	cb := expired.cb
	err := newError(CodeResponseTimeout, "no response received in time for %s", name)
	p.add(func() {
		cb(err, nil)
	})
}

// resend replays outstanding queries after a reconnect. Runs under the core
// mutex via the resubscribe notifier.
func (n *singleNotifier) resend() {
	for name := range n.requests {
		n.c.conn.Send(n.topic, n.action, name)
	}
}

func (n *singleNotifier) destroy() {
	n.resub.destroy()
	for name, entries := range n.requests {
		for _, entry := range entries {
			entry.timer.Stop()
		}
		delete(n.requests, name)
	}
}
