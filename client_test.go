package driftstream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftstream/driftstream-go/internal/testutil"
	"github.com/driftstream/driftstream-go/message"
)

func newTestClient(t *testing.T) (*Client, *testutil.Conn) {
	t.Helper()
	conn := testutil.NewConn()
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := New(conn, opts)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, conn
}

func TestClient_RecordRoundTrip(t *testing.T) {
	client, conn := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		rec, err := client.Records().GetRecord(context.Background(), "user/alice")
		if err == nil {
			err = rec.SetPath("status", "online")
		}
		done <- err
	}()

	require.Eventually(t, func() bool {
		last := conn.LastFrame()
		return last != nil && last.Action == message.ActionCreateOrRead
	}, 2*time.Second, time.Millisecond)

	conn.Deliver(message.TopicRecord, message.ActionAck, string(message.ActionSubscribe), "user/alice")
	conn.Deliver(message.TopicRecord, message.ActionRead, "user/alice", "1", `{"status":"offline"}`)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("record round trip did not finish")
	}

	last := conn.LastFrame()
	require.NotNil(t, last)
	assert.Equal(t, message.ActionPatch, last.Action)
	assert.Equal(t, []string{"user/alice", "2", "status", "Sonline"}, last.Data)
}

func TestClient_GetUID_UniqueAndOrdered(t *testing.T) {
	client, _ := newTestClient(t)

	a := client.GetUID()
	b := client.GetUID()
	assert.NotEqual(t, a, b)
	for _, id := range []string{a, b} {
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
	}
}

func TestClient_OnError_FansOut(t *testing.T) {
	client, conn := newTestClient(t)

	var mu sync.Mutex
	var got []*Error
	off := client.OnError(func(err *Error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, err)
	})

	// an update for a record nobody has open is unsolicited
	conn.Deliver(message.TopicRecord, message.ActionUpdate, "user/ghost", "1", `{}`)

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, message.EventUnsolicitedMessage, got[0].Code)
	assert.Equal(t, message.TopicRecord, got[0].Topic)
	mu.Unlock()

	off()
	conn.Deliver(message.TopicRecord, message.ActionUpdate, "user/ghost", "1", `{}`)
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestClient_RoutesErrorTopic(t *testing.T) {
	client, conn := newTestClient(t)

	var got []*Error
	client.OnError(func(err *Error) { got = append(got, err) })

	conn.Deliver(message.TopicError, message.ActionError, "CONNECTION_ERROR", "socket closed")

	require.Len(t, got, 1)
	assert.Equal(t, message.TopicError, got[0].Topic)
	assert.Equal(t, "CONNECTION_ERROR", got[0].Code)
	assert.Equal(t, "socket closed", got[0].Message)
}

func TestClient_Close_Idempotent(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
