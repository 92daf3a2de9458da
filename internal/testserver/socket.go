package testserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grovetools/tether/pkg/models"
)

// Socket is the server side of one realtime connection.
type Socket struct {
	Role  models.Role
	Token string

	// Requested is closed when the client sends its data request.
	Requested chan struct{}

	conn      *websocket.Conn
	writeMu   sync.Mutex
	once      sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// Closed is closed once the connection is gone from either side.
func (s *Socket) Closed() <-chan struct{} {
	return s.closed
}

// Send pushes an event envelope to the client.
func (s *Socket) Send(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(map[string]interface{}{"event": event, "data": json.RawMessage(raw)})
}

// SendRaw writes a text frame as is.
func (s *Socket) SendRaw(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Close drops the connection without a close handshake, like a network loss.
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

func (s *Socket) readLoop() {
	defer close(s.closed)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(msg, &env) == nil && env.Event == "requestData" {
			s.once.Do(func() { close(s.Requested) })
		}
	}
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	role := models.Role(mux.Vars(r)["role"])
	token := bearer(r)
	if tokenRole, ok := s.roleFor(token); !ok || tokenRole != role {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sock := &Socket{
		Role:      role,
		Token:     token,
		Requested: make(chan struct{}),
		conn:      conn,
		closed:    make(chan struct{}),
	}
	s.mu.Lock()
	s.sockets = append(s.sockets, sock)
	s.mu.Unlock()

	go sock.readLoop()
	s.accepted <- sock
}
