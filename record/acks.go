package record

import (
	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/message"
)

// ackTimeoutRegistry tracks outstanding server acknowledgements. Each
// registered (action, name) pair arms a deadline; clearing with an inbound
// ack disarms it, and an ack that matches nothing is reported as
// unsolicited. All methods expect the core mutex held.
type ackTimeoutRegistry struct {
	c      *core
	timers map[string]connection.Timer
}

func newAckTimeoutRegistry(c *core) *ackTimeoutRegistry {
	return &ackTimeoutRegistry{
		c:      c,
		timers: make(map[string]connection.Timer),
	}
}

func ackKey(action message.Action, name string) string {
	return string(action) + " " + name
}

// add arms an ack deadline, replacing any previous deadline for the same
// pair.
func (r *ackTimeoutRegistry) add(action message.Action, name string) {
	r.remove(action, name)
	key := ackKey(action, name)
	r.timers[key] = r.c.sched.Schedule(r.c.opts.SubscriptionTimeout, func() {
		var p deferred
		r.c.mu.Lock()
		r.expire(&p, key, name)
		r.c.mu.Unlock()
		p.run()
	})
}

func (r *ackTimeoutRegistry) remove(action message.Action, name string) {
	key := ackKey(action, name)
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// clear disarms the deadline matching an inbound ack message. The ack data
// carries the acknowledged action followed by the subscription name.
func (r *ackTimeoutRegistry) clear(p *deferred, msg *message.Message) {
	if len(msg.Data) < 2 {
		r.c.reportf(p, message.EventUnsolicitedMessage, "invalid ack message %q", msg.Raw)
		return
	}
	key := ackKey(message.Action(msg.Data[0]), msg.Data[1])
	t, ok := r.timers[key]
	if !ok {
		r.c.reportf(p, message.EventUnsolicitedMessage, "unexpected ack for %s %s", msg.Data[0], msg.Data[1])
		return
	}
	t.Stop()
	delete(r.timers, key)
}

func (r *ackTimeoutRegistry) expire(p *deferred, key, name string) {
	if _, ok := r.timers[key]; !ok {
		return
	}
	delete(r.timers, key)
	r.c.reportf(p, message.EventAckTimeout, "no ack received in time for %s", name)
}

// destroy disarms every outstanding deadline.
func (r *ackTimeoutRegistry) destroy() {
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
}
