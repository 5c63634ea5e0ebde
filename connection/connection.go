// Package connection defines the transport abstraction the record core
// depends on: a message-framed, stateful connection plus a delayed-callback
// scheduler. WSConnection is the shipped websocket implementation; tests use
// scripted fakes.
package connection

import (
	"time"

	"github.com/driftstream/driftstream-go/message"
)

// State is the lifecycle state of a connection.
type State int

const (
	StateClosed State = iota
	StateAwaitingConnection
	StateAuthenticating
	StateAwaitingAuthentication
	StateOpen
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateAwaitingConnection:
		return "AWAITING_CONNECTION"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAwaitingAuthentication:
		return "AWAITING_AUTHENTICATION"
	case StateOpen:
		return "OPEN"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Connection is the transport consumed by the record core.
//
// Send must not block on the network: frames sent while the connection is
// not OPEN are buffered and flushed once it is. State is readable
// synchronously. State-change and message callbacks are invoked without any
// connection-internal lock held, so they may call back into Send.
type Connection interface {
	Send(topic message.Topic, action message.Action, data ...string) error
	State() State
	OnStateChange(cb func(State)) (off func())
	OnMessage(cb func(*message.Message))
}

// Timer is a cancelable scheduled callback. Stop reports whether the call
// was prevented from running.
type Timer interface {
	Stop() bool
}

// Scheduler arms delayed callbacks. The record core uses it for every ack
// and response deadline, which keeps timeout behavior testable with a fake.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Timer
}

type systemScheduler struct{}

// NewScheduler returns the wall-clock Scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return systemScheduler{}
}

func (systemScheduler) Schedule(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
