package record

import (
	"github.com/driftstream/driftstream-go/message"
)

// ListenCallback is invoked when a subscription matching the listened
// pattern appears (isFound true, response non-nil) or disappears (isFound
// false, response nil). The callback runs outside the core mutex.
type ListenCallback func(name string, isFound bool, response *ListenResponse)

// ListenResponse lets a listen callback accept or decline providership for
// one matched subscription.
type ListenResponse struct {
	c       *core
	pattern string
	name    string
}

// Accept tells the server this client will provide data for the
// subscription.
func (r *ListenResponse) Accept() {
	r.c.conn.Send(message.TopicRecord, message.ActionListenAccept, r.pattern, r.name)
}

// Reject declines providership so the server can ask another listener.
func (r *ListenResponse) Reject() {
	r.c.conn.Send(message.TopicRecord, message.ActionListenReject, r.pattern, r.name)
}

// listener is one active listen registration. It re-issues the listen after
// reconnects and tracks the ack deadline for the initial registration.
type listener struct {
	c       *core
	pattern string
	cb      ListenCallback

	acks           *ackTimeoutRegistry
	resub          *resubscribeNotifier
	destroyPending bool
}

// newListener registers the pattern with the server. Callers hold the core
// mutex.
func newListener(c *core, pattern string, cb ListenCallback) *listener {
	l := &listener{
		c:       c,
		pattern: pattern,
		cb:      cb,
		acks:    newAckTimeoutRegistry(c),
	}
	l.resub = newResubscribeNotifier(c, l.sendListen)
	l.sendListen()
	return l
}

func (l *listener) sendListen() {
	l.acks.add(message.ActionListen, l.pattern)
	l.c.conn.Send(message.TopicRecord, message.ActionListen, l.pattern)
}

func (l *listener) onMessage(p *deferred, msg *message.Message) {
	switch msg.Action {
	case message.ActionAck:
		l.acks.clear(p, msg)
	case message.ActionSubscriptionForPatternFound:
		if len(msg.Data) < 2 || l.cb == nil {
			return
		}
		cb := l.cb
		resp := &ListenResponse{c: l.c, pattern: l.pattern, name: msg.Data[1]}
		name := msg.Data[1]
		p.add(func() {
			cb(name, true, resp)
		})
	case message.ActionSubscriptionForPatternRemoved:
		if len(msg.Data) < 2 || l.cb == nil {
			return
		}
		cb := l.cb
		name := msg.Data[1]
		p.add(func() {
			cb(name, false, nil)
		})
	}
}

// sendDestroy asks the server to drop the registration. The listener stays
// routable until the unlisten ack arrives.
func (l *listener) sendDestroy() {
	l.destroyPending = true
	l.acks.add(message.ActionUnlisten, l.pattern)
	l.c.conn.Send(message.TopicRecord, message.ActionUnlisten, l.pattern)
	l.resub.destroy()
}

func (l *listener) destroy() {
	l.acks.destroy()
	l.resub.destroy()
	l.cb = nil
}
