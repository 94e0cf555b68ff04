package relay

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/wtask/relay/internal/relay/broker"
	"github.com/wtask/relay/internal/relay/frame"
	"github.com/wtask/relay/internal/relay/transport"
)

const testTick = 10 * time.Millisecond

func launch(test *testing.T, options ...Option) (*Server, net.Listener, *logtest.Hook) {
	test.Helper()
	logger, hook := logtest.NewNullLogger()
	s, err := NewServer(
		DefaultBroker(broker.WithTick(testTick), broker.WithPollInterval(testTick)),
		append([]Option{WithLogger(logger)}, options...)...,
	)
	if err != nil {
		test.Fatal("relay.NewServer, unexpected error:", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		test.Fatal("unable to listen TCP:", err)
	}
	go s.Serve(listener)
	return s, listener, hook
}

func dialTCP(test *testing.T, s *Server, listener net.Listener, clients int) net.Conn {
	test.Helper()
	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		test.Fatal("dial failed:", err)
	}
	waitClients(test, s, clients)
	return conn
}

func waitClients(test *testing.T, s *Server, n int) {
	test.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			test.Fatal("timed out waiting for clients:", n, "kept:", s.Clients())
		}
		time.Sleep(testTick)
	}
}

func send(test *testing.T, w io.Writer, text string) {
	test.Helper()
	f, err := frame.Encode(text)
	if err != nil {
		test.Fatal("frame.Encode, unexpected error:", err)
	}
	if _, err := w.Write(f); err != nil {
		test.Fatal("client write failed:", err)
	}
}

func receive(test *testing.T, conn net.Conn) string {
	test.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, frame.Size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		test.Fatal("client read failed:", err)
	}
	text, err := frame.Decode(buf)
	if err != nil {
		test.Fatal("frame.Decode, unexpected error:", err)
	}
	return text
}

func TestNewServer_ErrorCase(test *testing.T) {
	if _, err := NewServer(nil); err == nil {
		test.Error("expected error for nil broker builder")
	}
	if _, err := NewServer(DefaultBroker(), WithLogger(nil)); err == nil {
		test.Error("expected error for nil logger")
	}
	if _, err := NewServer(DefaultBroker(), WithFarewell(strings.Repeat("!", frame.Size+1))); !errors.Is(err, frame.ErrTooLarge) {
		test.Error("expected error:", frame.ErrTooLarge, "got:", err)
	}
	if _, err := NewServer(DefaultBroker(broker.WithTick(0))); err == nil {
		test.Error("expected error for invalid broker option")
	}
}

func TestServer_echo(test *testing.T) {
	s, listener, hook := launch(test)
	defer s.Shutdown(time.Second)

	a := dialTCP(test, s, listener, 1)
	defer a.Close()
	send(test, a, "hello")

	start := time.Now()
	if text := receive(test, a); text != "hello" {
		test.Errorf("expected %q, got %q", "hello", text)
	}
	test.Log("echo received in", time.Since(start))

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Message received" && e.Data["message"] == "hello" {
			found = true
		}
	}
	if !found {
		test.Error("there is no log entry for received message")
	}
}

func TestServer_fanout(test *testing.T) {
	s, listener, _ := launch(test)
	defer s.Shutdown(time.Second)

	clients := []net.Conn{}
	for i := 1; i <= 3; i++ {
		conn := dialTCP(test, s, listener, i)
		defer conn.Close()
		clients = append(clients, conn)
	}

	send(test, clients[2], "fanout")
	for i, c := range clients {
		if text := receive(test, c); text != "fanout" {
			test.Errorf("client #%d: expected %q, got %q", i+1, "fanout", text)
		}
	}

	// client disconnects and the rest keep receiving
	clients[0].Close()
	send(test, clients[1], "after")
	waitClients(test, s, 2)
	for i, c := range clients[1:] {
		if text := receive(test, c); text != "after" {
			test.Errorf("client #%d: expected %q, got %q", i+2, "after", text)
		}
	}
}

func TestServer_burst(test *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s, err := NewServer(
		DefaultBroker(broker.WithTick(testTick), broker.WithPollInterval(testTick), broker.WithBacklog(2)),
		WithLogger(logger),
	)
	if err != nil {
		test.Fatal("relay.NewServer, unexpected error:", err)
	}
	defer s.Shutdown(time.Second)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		test.Fatal("unable to listen TCP:", err)
	}
	go s.Serve(listener)

	// many more clients than backlog connect at once
	clients := make([]net.Conn, 40)
	for i := range clients {
		conn, err := net.Dial("tcp", listener.Addr().String())
		if err != nil {
			test.Fatal("dial failed:", err)
		}
		defer conn.Close()
		clients[i] = conn
	}
	waitClients(test, s, len(clients))
	for _, e := range hook.AllEntries() {
		if e.Message == "Connection is not kept" {
			test.Error("unexpected rejected connection:", e.Data["error"])
		}
	}

	send(test, clients[0], "all here")
	for i, c := range clients {
		if text := receive(test, c); text != "all here" {
			test.Errorf("client #%d: expected %q, got %q", i+1, "all here", text)
		}
	}
}

// flakyListener - returns accept error once, then the given connection, then waits for close.
type flakyListener struct {
	conns  chan net.Conn
	closed chan struct{}
	failed bool
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if !l.failed {
		l.failed = true
		return nil, errors.New("too many open files")
	}
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error {
	close(l.closed)
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServer_acceptError(test *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s, err := NewServer(
		DefaultBroker(broker.WithTick(testTick), broker.WithPollInterval(testTick)),
		WithLogger(logger),
		WithFarewell(""),
	)
	if err != nil {
		test.Fatal("relay.NewServer, unexpected error:", err)
	}
	listener := &flakyListener{conns: make(chan net.Conn, 1), closed: make(chan struct{})}
	client, conn := net.Pipe()
	defer client.Close()
	listener.conns <- conn

	served := make(chan struct{})
	go func() {
		defer close(served)
		s.Serve(listener)
	}()
	waitClients(test, s, 1)

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Accept failed" {
			found = true
		}
	}
	if !found {
		test.Error("there is no log entry for failed accept")
	}

	send(test, client, "still serving")
	if text := receive(test, client); text != "still serving" {
		test.Errorf("expected %q, got %q", "still serving", text)
	}

	s.Shutdown(time.Second)
	select {
	case <-served:
	case <-time.After(time.Second):
		test.Error("Serve is not returned after shutdown")
	}
}

func TestServer_webSocketClient(test *testing.T) {
	s, listener, _ := launch(test)
	defer s.Shutdown(time.Second)

	wsListener, err := transport.ListenWebSocket("127.0.0.1:0", "/relay")
	if err != nil {
		test.Fatal("unable to listen WebSocket:", err)
	}
	go s.Serve(wsListener)

	tcpClient := dialTCP(test, s, listener, 1)
	defer tcpClient.Close()
	wsClient, _, err := websocket.DefaultDialer.Dial("ws://"+wsListener.Addr().String()+"/relay", nil)
	if err != nil {
		test.Fatal("dial failed:", err)
	}
	defer wsClient.Close()
	waitClients(test, s, 2)

	f, _ := frame.Encode("from browser")
	if err := wsClient.WriteMessage(websocket.BinaryMessage, f); err != nil {
		test.Fatal("WebSocket write failed:", err)
	}
	if text := receive(test, tcpClient); text != "from browser" {
		test.Errorf("expected %q, got %q", "from browser", text)
	}
	wsClient.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := wsClient.ReadMessage()
	if err != nil {
		test.Fatal("WebSocket read failed:", err)
	}
	if !bytes.Equal(data, f) {
		test.Errorf("unexpected frame %q", data)
	}
}

func TestServer_Shutdown(test *testing.T) {
	s, listener, _ := launch(test, WithFarewell("bye"))
	client := dialTCP(test, s, listener, 1)
	defer client.Close()

	test.Log("server stopped in", s.Shutdown(time.Second))

	if text := receive(test, client); text != "bye" {
		test.Errorf("expected farewell %q, got %q", "bye", text)
	}
	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(make([]byte, 1)); err != io.EOF {
		test.Error("expected closed connection, got:", err)
	}
	if _, err := net.Dial("tcp", listener.Addr().String()); err == nil {
		test.Error("expected closed listener")
	}
	if s.Shutdown(time.Second) != 0 {
		test.Error("repeated shutdown should return immediately")
	}
}

func TestNewLogger(test *testing.T) {
	out := &bytes.Buffer{}
	logger, err := NewLogger(out, "warn", "json")
	if err != nil {
		test.Fatal("unexpected error:", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		test.Error("unexpected level", logger.GetLevel())
	}
	logger.Info("hidden")
	logger.WithField("conn", "id").Warn("shown")
	if s := out.String(); strings.Contains(s, "hidden") || !strings.Contains(s, `"conn":"id"`) {
		test.Error("unexpected log output:", s)
	}

	if _, err := NewLogger(out, "loud", "text"); err == nil {
		test.Error("expected error for unknown level")
	}
	if _, err := NewLogger(out, "info", "xml"); err == nil {
		test.Error("expected error for unknown format")
	}
}
