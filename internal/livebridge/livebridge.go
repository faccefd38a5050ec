// Package livebridge streams committed host-adapter traces and scheduler
// telemetry out over a websocket, for cmd/reconcile's dashboard subcommand.
//
// The package splits into a Server (owns the registered sessions and an
// idempotent getOrCreateSession) and a Session (one writer goroutine with a
// ping ticker per connected client). Framing is JSON-over-websocket rather
// than a binary encoding, since there's no pre-existing wire format for
// reconciler telemetry to stay compatible with and JSON keeps this
// package's one reader (the dashboard's own websocket client) trivial. Each
// session has a single outbound channel: there's never a need to
// distinguish a binary patch frame from a text control frame here.
package livebridge

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/reconcile/internal/lane"
)

// Event is one telemetry record pushed to every connected dashboard. Seq is
// assigned by the Bridge that publishes it, monotonically increasing across
// every session so a dashboard can detect a dropped frame.
type Event struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq"`
	Root      string    `json:"root,omitempty"`
	Trace     []string  `json:"trace,omitempty"`
	Pending   string    `json:"pending,omitempty"`
	Suspended string    `json:"suspended,omitempty"`
	Expired   string    `json:"expired,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Server accepts websocket connections from dashboard clients and keeps one
// Session per connected client, mirroring live.Server's sessions map.
type Server struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer builds an empty Server, ready to Broadcast to once clients
// connect via HandleWebSocket.
func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[string]*Session),
	}
}

// Session is one live websocket connection to a dashboard client.
type Session struct {
	ID        string
	conn      *websocket.Conn
	sendChan  chan []byte
	closeChan chan struct{}
	mu        sync.Mutex
}

// HandleWebSocket upgrades r into a websocket and registers (or reconnects)
// the session named by its "id" query parameter, then serves it until the
// client disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("id")
	if sessionID == "" {
		sessionID = "default"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[livebridge] upgrade failed: %v", err)
		return
	}

	session := s.getOrCreateSession(sessionID, conn)
	go session.handleConnection()
}

func (s *Server) getOrCreateSession(sessionID string, conn *websocket.Conn) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[sessionID]; exists {
		session.mu.Lock()
		if session.conn != nil {
			session.conn.Close()
		}
		session.conn = conn
		select {
		case <-session.closeChan:
			session.closeChan = make(chan struct{})
		default:
		}
		session.mu.Unlock()
		return session
	}

	session := &Session{
		ID:        sessionID,
		conn:      conn,
		sendChan:  make(chan []byte, 256),
		closeChan: make(chan struct{}),
	}
	s.sessions[sessionID] = session
	return session
}

// RemoveSession drops a session, e.g. once its connection is confirmed dead.
func (s *Server) RemoveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Broadcast sends ev, marshaled as JSON, to every currently connected
// session. A session whose send buffer is full is skipped rather than
// blocking the publisher — a slow dashboard client should never stall a
// scenario run.
func (s *Server) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[livebridge] marshal event: %v", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		select {
		case session.sendChan <- data:
		default:
			log.Printf("[livebridge] session %s send buffer full, dropping event", session.ID)
		}
	}
}

func (s *Session) handleConnection() {
	var closeOnce sync.Once
	cleanup := func() {
		closeOnce.Do(func() {
			s.conn.Close()
			select {
			case <-s.closeChan:
			default:
				close(s.closeChan)
			}
		})
	}
	defer cleanup()

	writerReady := make(chan struct{})
	go func() {
		close(writerReady)
		s.writer()
	}()
	<-writerReady

	s.conn.SetReadDeadline(time.Now().Add(300 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		return nil
	})

	// The dashboard never sends anything meaningful back; this loop exists
	// only to notice a closed connection and to keep pong handling alive.
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[livebridge] session %s unexpected close: %v", s.ID, err)
			}
			return
		}
	}
}

func (s *Session) writer() {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-s.sendChan:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[livebridge] session %s write failed: %v", s.ID, err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.closeChan:
			return
		}
	}
}

// Bridge couples a Server to one reconciler run, assigning each published
// event a monotonic sequence number. It is deliberately thin: one reconciler
// run fans its telemetry out to every connected dashboard alike, so there is
// no per-session state to create or own beyond the sequence counter.
type Bridge struct {
	server *Server
	mu     sync.Mutex
	seq    uint64
}

// NewBridge wires a Bridge to an already-running Server.
func NewBridge(server *Server) *Bridge {
	return &Bridge{server: server}
}

func (b *Bridge) next() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

// PublishCommit reports a finished commit for the root named rootName: the
// host adapter's trace since the previous publish, and the root's current
// pending/suspended/expired lane sets rendered as bit strings so the wire
// format never has to agree on internal/lane's bit layout with a client.
func (b *Bridge) PublishCommit(rootName string, trace []string, pending, suspended, expired lane.Set, now time.Time) {
	b.server.Broadcast(Event{
		Type:      "commit",
		Seq:       b.next(),
		Root:      rootName,
		Trace:     trace,
		Pending:   laneBits(pending),
		Suspended: laneBits(suspended),
		Expired:   laneBits(expired),
		At:        now,
	})
}

func laneBits(s lane.Set) string {
	return strconv.FormatUint(uint64(s), 2)
}

// PublishMessage reports a free-form status line, e.g. "scenario step 3 of
// 7 fired" from a running `reconcile run`/`bench` scenario.
func (b *Bridge) PublishMessage(message string, now time.Time) {
	b.server.Broadcast(Event{
		Type:    "message",
		Seq:     b.next(),
		Message: message,
		At:      now,
	})
}
