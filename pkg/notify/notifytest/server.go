// Package notifytest provides a fake websocket notification service.
package notifytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	To    string          `json:"to,omitempty"`
}

type peer struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	room string
}

func (p *peer) send(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.ws.WriteJSON(f)
}

// Server accepts websocket connections, records joinRoom requests and
// pushes events to rooms.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu       sync.Mutex
	peers    map[*peer]struct{}
	joins    map[string]int
	auth     []string
	rejects  int
}

// New starts a server. The websocket address is WebsocketURL(). It is closed when the
// test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		peers:    make(map[*peer]struct{}),
		joins:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		s.DropAll()
		s.Close()
	})
	return s
}

// WebsocketURL returns the ws:// address of the server.
func (s *Server) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// RejectNext makes the next n handshakes fail with 503.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects = n
}

// Publish sends an event to every connection that joined room. The
// recipient is stamped in the frame's "to" field unless to is empty. It
// returns how many connections were written to.
func (s *Server) Publish(room, to, kind string, data any) int {
	raw, _ := json.Marshal(data)
	f := frame{Event: kind, Data: raw, To: to}

	s.mu.Lock()
	var targets []*peer
	for p := range s.peers {
		if p.room == room {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, p := range targets {
		if p.send(f) == nil {
			n++
		}
	}
	return n
}

// DropAll closes every open connection from the server side.
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.ws.Close()
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Joined reports how many connections currently sit in room.
func (s *Server) Joined(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range s.peers {
		if p.room == room {
			n++
		}
	}
	return n
}

// Joins returns how many joinRoom requests were made for room.
func (s *Server) Joins(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins[room]
}

// Authorizations returns the Authorization headers of all handshakes.
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	if s.rejects > 0 {
		s.rejects--
		s.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{ws: ws}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		ws.Close()
	}()

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		if f.Event != "joinRoom" {
			continue
		}
		var join struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(f.Data, &join); err != nil || join.RoomID == "" {
			continue
		}
		s.mu.Lock()
		p.room = join.RoomID
		s.joins[join.RoomID]++
		s.mu.Unlock()
	}
}
