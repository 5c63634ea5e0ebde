package testutil

import (
	"sync"

	"github.com/driftstream/driftstream-go/connection"
	"github.com/driftstream/driftstream-go/message"
)

// Frame is one outbound message recorded by Conn.
type Frame struct {
	Topic  message.Topic
	Action message.Action
	Data   []string
}

// Conn is a scripted connection. Tests inspect what was sent through Frames
// and inject server traffic through Deliver. It starts in StateOpen.
type Conn struct {
	mu        sync.Mutex
	state     connection.State
	frames    []Frame
	sendErr   error
	nextID    int
	stateSubs map[int]func(connection.State)
	onMessage func(*message.Message)
}

func NewConn() *Conn {
	return &Conn{
		state:     connection.StateOpen,
		stateSubs: make(map[int]func(connection.State)),
	}
}

func (c *Conn) Send(topic message.Topic, action message.Action, data ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, Frame{Topic: topic, Action: action, Data: append([]string(nil), data...)})
	return nil
}

func (c *Conn) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) OnStateChange(cb func(connection.State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.stateSubs[id] = cb
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

func (c *Conn) OnMessage(cb func(*message.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = cb
}

// SetState changes the reported state and notifies subscribers.
func (c *Conn) SetState(s connection.State) {
	c.mu.Lock()
	c.state = s
	subs := make([]func(connection.State), 0, len(c.stateSubs))
	for _, cb := range c.stateSubs {
		subs = append(subs, cb)
	}
	c.mu.Unlock()
	for _, cb := range subs {
		cb(s)
	}
}

// Deliver synthesizes an inbound message and hands it to the registered
// message callback, the way a parsed server frame would arrive.
func (c *Conn) Deliver(topic message.Topic, action message.Action, data ...string) {
	c.mu.Lock()
	cb := c.onMessage
	c.mu.Unlock()
	if cb != nil {
		cb(&message.Message{Topic: topic, Action: action, Data: data})
	}
}

// FailSends makes every subsequent Send return err. Pass nil to restore.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Frames returns a copy of everything sent so far.
func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// LastFrame returns the most recent outbound frame, or nil.
func (c *Conn) LastFrame() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	f := c.frames[len(c.frames)-1]
	return &f
}

// Reset forgets all recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
