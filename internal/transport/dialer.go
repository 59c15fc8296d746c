package transport

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn is the minimal socket surface the client needs. Satisfied by a
// gorilla websocket connection in production and by scripted fakes in tests.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Conn to the realtime gateway. The header carries the bearer
// credential for the connection attempt.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Conn, error)
}

// NewWebSocketDialer returns the production dialer backed by
// gorilla/websocket.
func NewWebSocketDialer() Dialer {
	return &wsDialer{dialer: websocket.DefaultDialer}
}

type wsDialer struct {
	dialer *websocket.Dialer
}

func (d *wsDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
