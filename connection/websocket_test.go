package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftstream/driftstream-go/message"
)

// wsServer is a minimal websocket endpoint that records inbound frames and
// exposes the live server-side connections.
type wsServer struct {
	*httptest.Server
	frames chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{frames: make(chan string, 64)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.mu.Unlock()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			s.frames <- string(data)
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *wsServer) lastConn(t *testing.T) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.conns)
		var ws *websocket.Conn
		if n > 0 {
			ws = s.conns[n-1]
		}
		s.mu.Unlock()
		if ws != nil {
			return ws
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no server-side connection")
	return nil
}

func (s *wsServer) waitFrame(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received in time")
		return ""
	}
}

func dialTest(t *testing.T, s *wsServer) *WSConnection {
	t.Helper()
	c, err := dialWS(s.url(), nil, 5*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWSConnection_SendAndReceive(t *testing.T) {
	s := newWSServer(t)
	c := dialTest(t, s)
	assert.Equal(t, StateOpen, c.State())

	inbound := make(chan *message.Message, 1)
	c.OnMessage(func(m *message.Message) { inbound <- m })

	require.NoError(t, c.Send(message.TopicRecord, message.ActionCreateOrRead, "r1"))
	assert.Equal(t, "R\x1fCR\x1fr1\x1e", s.waitFrame(t))

	ws := s.lastConn(t)
	frame := message.Build(message.TopicRecord, message.ActionRead, "r1", "1", `{"a":1}`)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case m := <-inbound:
		assert.Equal(t, message.TopicRecord, m.Topic)
		assert.Equal(t, message.ActionRead, m.Action)
		assert.Equal(t, []string{"r1", "1", `{"a":1}`}, m.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message never delivered")
	}
}

func TestWSConnection_ReconnectsAndFlushesBufferedFrames(t *testing.T) {
	s := newWSServer(t)
	c := dialTest(t, s)

	states := make(chan State, 16)
	c.OnStateChange(func(st State) { states <- st })

	// Drop the server side of the socket; the client must cycle through
	// RECONNECTING back to OPEN.
	require.NoError(t, s.lastConn(t).Close())

	waitState := func(want State) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case st := <-states:
				if st == want {
					return
				}
			case <-deadline:
				t.Fatalf("never reached state %v", want)
			}
		}
	}
	waitState(StateReconnecting)

	// A send while reconnecting is buffered, not dropped.
	require.NoError(t, c.Send(message.TopicRecord, message.ActionCreateOrRead, "r2"))

	waitState(StateOpen)
	assert.Equal(t, "R\x1fCR\x1fr2\x1e", s.waitFrame(t))
}

func TestWSConnection_CloseIsIdempotent(t *testing.T) {
	s := newWSServer(t)
	c := dialTest(t, s)

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send(message.TopicRecord, message.ActionHas, "r1"), ErrClosed)
}

func TestWSConnection_OnStateChangeRemover(t *testing.T) {
	s := newWSServer(t)
	c := dialTest(t, s)

	var mu sync.Mutex
	calls := 0
	off := c.OnStateChange(func(State) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	off()

	require.NoError(t, c.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}
