package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateAwaitingConnection, "AWAITING_CONNECTION"},
		{StateAuthenticating, "AUTHENTICATING"},
		{StateAwaitingAuthentication, "AWAITING_AUTHENTICATION"},
		{StateOpen, "OPEN"},
		{StateReconnecting, "RECONNECTING"},
		{StateError, "ERROR"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestScheduler_FiresAfterDelay(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{})
	s.Schedule(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback never fired")
	}
}

func TestScheduler_StopPreventsFiring(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{})
	timer := s.Schedule(50*time.Millisecond, func() { close(fired) })

	assert.True(t, timer.Stop())

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
