package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmc-robo/teleop_bridge/internal/motor"
	"github.com/dmc-robo/teleop_bridge/internal/teleop"
)

// cmdRecorder collects every command the session's publisher emits.
type cmdRecorder struct {
	mu   sync.Mutex
	cmds []motor.Command
}

func (r *cmdRecorder) Publish(c motor.Command) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, c)
	r.mu.Unlock()
	return nil
}

func (r *cmdRecorder) lastCmd() (motor.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cmds) == 0 {
		return motor.Command{}, false
	}
	return r.cmds[len(r.cmds)-1], true
}

func (r *cmdRecorder) sawNonzero() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cmds {
		if !c.Zero() {
			return true
		}
	}
	return false
}

// newSessionServer runs a teleopSession per connection with test-sized
// liveness timing. done is closed when the first session ends.
func newSessionServer(t *testing.T, rec *cmdRecorder) (*httptest.Server, chan struct{}) {
	t.Helper()
	dog := motor.NewWatchdog(250 * time.Millisecond)
	pub := motor.NewPublisher(rec, dog, "m_s", 300, 0.5)
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sess := &teleopSession{
			conn: conn,
			pub:  pub,
			composer: teleop.NewComposer(600, 0.5, func() {
				pub.Stop()
			}),
			deadZone:   40,
			publishHz:  100,
			sendText:   func(string) error { return nil },
			gyro:       func() *[3]float64 { return nil },
			pongWait:   150 * time.Millisecond,
			pingPeriod: 50 * time.Millisecond,
		}
		sess.run(context.Background())
		close(done)
	}))
	t.Cleanup(srv.Close)
	return srv, done
}

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// A browser that holds a key and then goes silent (no reads, no pongs: the
// wifi-drop case) must not keep the robot driving; the session has to tear
// itself down and emit the stop.
func TestSessionStopsWhenClientGoesSilent(t *testing.T) {
	rec := &cmdRecorder{}
	srv, done := newSessionServer(t, rec)

	conn := dialSession(t, srv)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "key", Key: "w", Action: "down"}))

	// The held key drives nonzero commands first. The client never reads, so
	// the server's pings go unanswered from here on.
	require.Eventually(t, rec.sawNonzero, 2*time.Second, 5*time.Millisecond,
		"held key should publish motion before the connection is declared dead")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session survived a client that stopped answering pings")
	}

	last, ok := rec.lastCmd()
	require.True(t, ok)
	assert.True(t, last.Zero(), "teardown must end on a stop command, got %+v", last)
}

// A healthy browser (reading, so pings are answered) produces no key traffic
// after the keydown either; it must keep driving well past the pong deadline.
func TestSessionHoldsKeyWhileClientAlive(t *testing.T) {
	rec := &cmdRecorder{}
	srv, done := newSessionServer(t, rec)

	conn := dialSession(t, srv)

	// Reading is what lets the client library answer pings.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "key", Key: "w", Action: "down"}))

	// Four pong deadlines with no client key events.
	time.Sleep(600 * time.Millisecond)

	select {
	case <-done:
		t.Fatal("session died under a responsive client")
	default:
	}
	last, ok := rec.lastCmd()
	require.True(t, ok)
	assert.False(t, last.Zero(), "held key should still be driving")

	// Closing the connection releases the held key.
	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end on connection close")
	}
	last, ok = rec.lastCmd()
	require.True(t, ok)
	assert.True(t, last.Zero())
}
