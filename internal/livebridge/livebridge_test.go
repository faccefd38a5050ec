package livebridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/reconcile/internal/lane"
)

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?id=dash"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastDeliversCommitEvent(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	bridge := NewBridge(server)

	bridge.PublishCommit("root-1", []string{"create_instance(div)", "append_child(#root, div)"},
		lane.DefaultLane, lane.NoLanes, lane.NoLanes, time.Unix(0, 0))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "commit" || ev.Root != "root-1" || ev.Seq != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Trace) != 2 || ev.Trace[0] != "create_instance(div)" {
		t.Fatalf("expected trace to survive the round trip, got %+v", ev.Trace)
	}
}

func TestBroadcastSkipsFullSessionWithoutBlocking(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	_ = conn

	bridge := NewBridge(server)

	// Fill the just-registered session's buffer past capacity directly,
	// then confirm Broadcast still returns instead of blocking.
	server.mu.RLock()
	var session *Session
	for _, s := range server.sessions {
		session = s
	}
	server.mu.RUnlock()
	if session == nil {
		t.Fatal("expected a registered session")
	}

	for i := 0; i < cap(session.sendChan); i++ {
		session.sendChan <- []byte("filler")
	}

	done := make(chan struct{})
	go func() {
		bridge.PublishMessage("should not block", time.Unix(0, 0))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full session send buffer")
	}
}

func TestPublishMessageIncrementsSeqIndependently(t *testing.T) {
	server := NewServer()
	bridge := NewBridge(server)

	bridge.PublishMessage("one", time.Unix(0, 0))
	bridge.PublishMessage("two", time.Unix(0, 0))

	if bridge.seq != 2 {
		t.Fatalf("expected seq to reach 2, got %d", bridge.seq)
	}
}
