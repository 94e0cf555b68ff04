// Package transport exposes non-TCP clients to the relay as plain net.Conn byte streams.
package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketListener - net.Listener which accepts WebSocket clients over HTTP.
type WebSocketListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
}

// ListenWebSocket - starts HTTP server on given address and upgrades requests to path into WebSocket connections.
func ListenWebSocket(address, path string) (*WebSocketListener, error) {
	if path == "" {
		return nil, errors.New("transport.ListenWebSocket: path is empty")
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	l := &WebSocketListener{
		ln:    ln,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	// relay has no browser session to protect
	l.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.upgrade)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *WebSocketListener) upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already replied with error status
		return
	}
	select {
	case l.conns <- &webSocketConn{ws: ws}:
	case <-l.done:
		ws.Close()
	}
}

// Accept - waits for next upgraded WebSocket connection.
func (l *WebSocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close - stops HTTP server. Already accepted connections stay open.
func (l *WebSocketListener) Close() error {
	err := net.ErrClosed
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// Addr - returns listener network address.
func (l *WebSocketListener) Addr() net.Addr {
	return l.ln.Addr()
}

// webSocketConn - represents WebSocket as a byte stream.
// Reads continue across message boundaries, every Write is sent as a single binary message.
type webSocketConn struct {
	ws *websocket.Conn
	r  io.Reader
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) Close() error {
	return c.ws.Close()
}

func (c *webSocketConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *webSocketConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	return c.SetWriteDeadline(t)
}

// SetReadDeadline - does nothing, since WebSocket read which is failed by timeout can not be repeated.
// Close connection to interrupt blocked Read.
func (c *webSocketConn) SetReadDeadline(time.Time) error {
	return nil
}

func (c *webSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
