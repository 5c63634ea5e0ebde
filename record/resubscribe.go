package record

import (
	"github.com/driftstream/driftstream-go/connection"
)

// resubscribeNotifier watches the connection and replays a subscription
// after a dropped connection is reestablished. The resubscribe function is
// invoked with the core mutex held, once per RECONNECTING to OPEN
// transition.
type resubscribeNotifier struct {
	c           *core
	resubscribe func()

	reconnecting bool
	destroyed    bool
	off          func()
}

func newResubscribeNotifier(c *core, resubscribe func()) *resubscribeNotifier {
	n := &resubscribeNotifier{c: c, resubscribe: resubscribe}
	n.off = c.conn.OnStateChange(n.handleState)
	return n
}

// handleState runs on the connection's callback goroutine, outside the core
// mutex.
func (n *resubscribeNotifier) handleState(s connection.State) {
	n.c.mu.Lock()
	defer n.c.mu.Unlock()
	if n.destroyed {
		return
	}
	switch {
	case s == connection.StateReconnecting && !n.reconnecting:
		n.reconnecting = true
	case s == connection.StateOpen && n.reconnecting:
		n.reconnecting = false
		n.resubscribe()
	}
}

// destroy detaches from the connection. Callers hold the core mutex.
func (n *resubscribeNotifier) destroy() {
	if n.destroyed {
		return
	}
	n.destroyed = true
	off := n.off
	n.off = nil
	// Unsubscribing takes the connection's own lock, never the core mutex,
	// so calling it here cannot deadlock.
	off()
}
