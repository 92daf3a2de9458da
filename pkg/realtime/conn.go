package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grovetools/tether/errors"
)

// Envelope is the wire frame for every realtime message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is an established realtime transport carrying text frames.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens realtime transports. The dial must honour ctx's deadline.
type Dialer interface {
	Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// Dialer overrides websocket.DefaultDialer when set.
	Dialer *websocket.Dialer
}

// Dial implements Dialer. A handshake rejected with an HTTP status carries
// that status as a typed error in the chain.
func (d WebsocketDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	c, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil && err == websocket.ErrBadHandshake {
			path := rawURL
			if u, perr := url.Parse(rawURL); perr == nil {
				path = u.Path
			}
			return nil, errors.FromStatus(http.MethodGet, path, resp.StatusCode, "")
		}
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
