package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wtask/relay/pkg/background"
)

// Broker - relay core: keeps connections, collects frames from every connection
// and periodically broadcasts collected messages to all of them.
type Broker struct {
	tick         time.Duration
	pollInterval time.Duration
	writeTimeout time.Duration
	maxClients   int
	queueSize    int
	backlog      int
	history      MessageHistory
	greets       int
	logger       logrus.FieldLogger
	identify     func(net.Conn) string

	scope   *background.Scope
	gate    sync.RWMutex // guards pending against sends after release
	pending chan net.Conn
	queue   *queue
	clients *registry // owned by broadcast loop
	live    atomic.Int64
}

func setup(b *Broker, options ...Option) error {
	if b == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(b); err != nil {
			return err
		}
	}
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func randomIdentifier(net.Conn) string {
	return uuid.NewString()
}

// New - builds Broker with needed options and launches its broadcast loop.
func New(options ...Option) (*Broker, error) {
	b := &Broker{
		tick:         120 * time.Millisecond,
		pollInterval: 120 * time.Millisecond,
		writeTimeout: 5 * time.Second,
		maxClients:   256,
		queueSize:    1024,
		backlog:      16,
		logger:       discardLogger(),
		identify:     randomIdentifier,
		clients:      newRegistry(),
	}

	if err := setup(b, options...); err != nil {
		return nil, err
	}

	b.pending = make(chan net.Conn, b.backlog)
	b.queue = newQueue(b.queueSize)
	b.scope = background.NewScope()
	b.scope.Go(b.loop)

	return b, nil
}

// Quit - stops broadcast loop and waits all connection readers will stop.
// Messages queued before the call are flushed to connections, then all connections are closed.
// Returns duration of time spent for quit. This time always less or equal of given timeout.
func (b *Broker) Quit(timeout time.Duration) time.Duration {
	if b.scope.Context().Err() != nil {
		return 0
	}
	d, ok := b.scope.Shutdown(timeout)
	if !ok {
		b.logger.WithField("timeout", timeout).Warn("Broker is not stopped in time")
	}
	return d
}

// KeepConnection - passes new connection to the broadcast loop without waiting for it.
// The loop takes one pending connection per cycle, ErrBacklogFull is returned when too many are waiting.
func (b *Broker) KeepConnection(conn net.Conn) error {
	return b.enqueue(context.Background(), conn, false)
}

// AwaitConnection - passes new connection to the broadcast loop,
// waits for free space in backlog until ctx is done or broker stops.
func (b *Broker) AwaitConnection(ctx context.Context, conn net.Conn) error {
	if ctx == nil {
		return errors.New("broker.AwaitConnection: ctx is nil")
	}
	return b.enqueue(ctx, conn, true)
}

func (b *Broker) enqueue(ctx context.Context, conn net.Conn, wait bool) error {
	if conn == nil {
		return errors.New("broker.KeepConnection: conn is nil")
	}
	b.gate.RLock()
	defer b.gate.RUnlock()
	stop := b.scope.Context().Done()
	if b.scope.Context().Err() != nil {
		return ErrUnderStopCondition
	}
	if !wait {
		select {
		case b.pending <- conn:
			return nil
		default:
			return ErrBacklogFull
		}
	}
	select {
	case b.pending <- conn:
		return nil
	case <-stop:
		return ErrUnderStopCondition
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish - queues message from the server itself to broadcast it to all connections.
// Text which can not be encoded into single frame is rejected.
func (b *Broker) Publish(text string) error {
	if b.scope.Context().Err() != nil {
		return ErrUnderStopCondition
	}
	m, err := newMessage("", text)
	if err != nil {
		return fmt.Errorf("broker.Publish: %w", err)
	}
	if err := b.queue.push(b.scope.Context(), m); err != nil {
		return ErrUnderStopCondition
	}
	return nil
}

// Len - returns num of kept connections as it was at the end of the latest broadcast cycle.
func (b *Broker) Len() int {
	return int(b.live.Load())
}

func (b *Broker) loop(ctx context.Context) {
	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()
	for {
		b.sweep()
		b.admit()
		b.flush()
		b.live.Store(int64(b.clients.len()))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			b.flush()
			b.release()
			return
		}
	}
}

// sweep - drops peers whose reader task is already terminated.
func (b *Broker) sweep() {
	b.clients.filter(func(p *peer) bool {
		if p.terminated() {
			p.close()
			return false
		}
		return true
	})
}

// admit - takes one pending connection if there is any.
func (b *Broker) admit() {
	var conn net.Conn
	select {
	case conn = <-b.pending:
	default:
		return
	}

	p := newPeer(b.identify(conn), conn, b.logger)
	if b.maxClients > 0 && b.clients.len() >= b.maxClients {
		p.log.WithField("max", b.maxClients).Warn("Client rejected, too many connections")
		p.close()
		return
	}

	if greets := b.greetings(); len(greets) > 0 {
		if err := b.deliver(p, greets); err != nil {
			p.log.WithError(err).Info("Client dropped on history delivery")
			p.close()
			return
		}
	}

	if !b.scope.Go(func(ctx context.Context) { b.read(ctx, p) }) {
		p.close()
		return
	}
	b.clients.add(p)
	p.log.Info("Client connected")
}

func (b *Broker) greetings() []Message {
	if b.history == nil || b.greets == 0 {
		return nil
	}
	tail := b.history.Tail(b.greets)
	greets := make([]Message, 0, len(tail))
	for _, text := range tail {
		m, err := newMessage("", text)
		if err != nil {
			continue
		}
		greets = append(greets, m)
	}
	return greets
}

// flush - writes every queued message to every kept connection and drops connections failed to write.
func (b *Broker) flush() {
	messages := b.queue.drain()
	if len(messages) == 0 {
		return
	}
	if b.history != nil {
		for _, m := range messages {
			b.history.Push(m.Text)
		}
	}
	b.clients.filter(func(p *peer) bool {
		if err := b.deliver(p, messages); err != nil {
			p.log.WithError(err).Info("Client dropped on write failure")
			p.close()
			return false
		}
		return true
	})
	for _, m := range messages {
		b.logger.WithFields(logrus.Fields{
			"origin":  m.Origin,
			"latency": time.Since(m.OriginTime),
			"clients": b.clients.len(),
		}).Debug("Message relayed")
	}
}

func (b *Broker) deliver(p *peer, messages []Message) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		return err
	}
	for _, m := range messages {
		if _, err := p.conn.Write(m.frame); err != nil {
			return err
		}
	}
	return nil
}

// release - closes all kept and pending connections.
func (b *Broker) release() {
	b.clients.scan(func(p *peer) {
		p.close()
	})
	b.clients.reset()
	b.live.Store(0)
	// waiting senders are released by expired scope before the lock is taken
	b.gate.Lock()
	defer b.gate.Unlock()
	for {
		select {
		case conn := <-b.pending:
			conn.Close()
		default:
			return
		}
	}
}
