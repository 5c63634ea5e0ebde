package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftstream/driftstream-go/message"
)

// setName drives the blocking SetName by feeding the subscribe ack and the
// read response once the subscription goes out.
func (f *fixture) setName(t *testing.T, a *AnonymousRecord, name, version, doc string) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- a.SetName(context.Background(), name)
	}()
	require.Eventually(t, func() bool {
		return len(f.framesFor(message.ActionCreateOrRead, name)) > 0
	}, 2*time.Second, time.Millisecond)
	f.conn.Deliver(message.TopicRecord, message.ActionAck, string(message.ActionSubscribe), name)
	f.conn.Deliver(message.TopicRecord, message.ActionRead, name, version, doc)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SetName did not return")
	}
}

func TestAnonymousRecord_RequiresNameFirst(t *testing.T) {
	f := newFixture(t)
	a := f.h.GetAnonymousRecord()

	assert.Equal(t, "", a.Name())
	assert.Nil(t, a.Get(""))
	assert.True(t, IsCode(a.Set(map[string]any{}), CodeNotInitialized))
	assert.True(t, IsCode(a.Discard(), CodeNotInitialized))
	assert.True(t, IsCode(a.Delete(), CodeNotInitialized))
}

func TestAnonymousRecord_SetName_ProxiesRecord(t *testing.T) {
	f := newFixture(t)
	a := f.h.GetAnonymousRecord()

	var names []any
	a.On(EventNameChanged, func(args ...any) { names = append(names, args[0]) })

	f.setName(t, a, "user/alice", "1", `{"name":"alice"}`)

	assert.Equal(t, "user/alice", a.Name())
	assert.Equal(t, "alice", a.Get("name"))
	assert.Equal(t, []any{"user/alice"}, names)

	require.NoError(t, a.SetPath("name", "alicia"))
	assert.Len(t, f.framesFor(message.ActionPatch, "user/alice"), 1)
}

func TestAnonymousRecord_SubscriptionsSurviveRetargeting(t *testing.T) {
	f := newFixture(t)
	a := f.h.GetAnonymousRecord()

	var seen []any
	_, err := a.Subscribe("name", func(v any) { seen = append(seen, v) }, true)
	require.NoError(t, err)

	f.setName(t, a, "user/alice", "1", `{"name":"alice"}`)
	assert.Equal(t, []any{"alice"}, seen)

	f.setName(t, a, "user/bob", "1", `{"name":"bob"}`)
	assert.Equal(t, []any{"alice", "bob"}, seen)

	// the first target was released
	assert.Len(t, f.framesFor(message.ActionUnsubscribe, "user/alice"), 1)

	// updates to the old record no longer reach the subscriber
	f.conn.Deliver(message.TopicRecord, message.ActionUpdate, "user/bob", "2", `{"name":"robert"}`)
	assert.Equal(t, []any{"alice", "bob", "robert"}, seen)
}

func TestAnonymousRecord_Unsubscribe(t *testing.T) {
	f := newFixture(t)
	a := f.h.GetAnonymousRecord()

	var calls int
	id, err := a.Subscribe("name", func(v any) { calls++ }, false)
	require.NoError(t, err)

	// retargeting re-triggers every proxy subscription once
	f.setName(t, a, "user/alice", "1", `{"name":"alice"}`)
	assert.Equal(t, 1, calls)

	require.NoError(t, a.Unsubscribe("name", id))
	f.conn.Deliver(message.TopicRecord, message.ActionUpdate, "user/alice", "2", `{"name":"b"}`)
	assert.Equal(t, 1, calls)

	assert.True(t, IsCode(a.Unsubscribe("name", id), CodeInvalidArgument))
}
