// network/connection.go
package network

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is one observer's push channel.
type Connection interface {
	Send(e Event) error
	// Closed is closed once the peer has gone away.
	Closed() <-chan struct{}
	Close() error
	RemoteAddr() string
}

const writeWait = 10 * time.Second

// WSConnection pushes events as JSON text frames over a websocket.
type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWSConnection starts a reader that only watches for the peer going away;
// observers never send application messages.
func NewWSConnection(conn *websocket.Conn) *WSConnection {
	c := &WSConnection{conn: conn, closed: make(chan struct{})}
	go c.readPump()
	return c
}

func (c *WSConnection) readPump() {
	defer c.markClosed()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSConnection) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *WSConnection) Send(e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) Closed() <-chan struct{} {
	return c.closed
}

func (c *WSConnection) Close() error {
	c.sendMutex.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.sendMutex.Unlock()

	c.markClosed()
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SSEConnection pushes events as server-sent "data:" records.
type SSEConnection struct {
	w       http.ResponseWriter
	flusher http.Flusher
	r       *http.Request
	mu      sync.Mutex
}

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// NewSSEConnection writes the event-stream headers and flushes them.
func NewSSEConnection(w http.ResponseWriter, r *http.Request) (*SSEConnection, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEConnection{w: w, flusher: flusher, r: r}, nil
}

func (c *SSEConnection) Send(e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEConnection) Closed() <-chan struct{} {
	return c.r.Context().Done()
}

// Close is a no-op; the handler returning ends the response.
func (c *SSEConnection) Close() error {
	return nil
}

func (c *SSEConnection) RemoteAddr() string {
	return c.r.RemoteAddr
}
