package broker

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/wtask/relay/internal/relay/frame"
)

// read - connection reader task. Publishes every received frame into queue
// until connection fails, frame is malformed or broker stops.
// Broadcast loop is not notified directly, it observes terminated peer on the next cycle.
func (b *Broker) read(ctx context.Context, p *peer) {
	defer func() {
		p.close()
		close(p.done)
	}()

	r := frame.NewReader(p.conn)
	for {
		p.conn.SetReadDeadline(time.Now().Add(b.pollInterval))
		text, err := r.Next()
		switch {
		case err == nil:
			p.log.WithField("message", text).Info("Message received")
			m, err := newMessage(p.id, text)
			if err != nil {
				p.log.WithError(err).Warn("Message dropped")
				continue
			}
			if err := b.queue.push(ctx, m); err != nil {
				return
			}
		case isTimeout(err):
			// no data yet
			if ctx.Err() != nil {
				return
			}
		default:
			p.log.WithError(err).Info("Client disconnected")
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
