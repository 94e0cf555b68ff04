package broker

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Option - customizes Broker on building.
type Option func(b *Broker) error

// MessageHistory - interface to access ordered history of relayed messages.
type MessageHistory interface {
	// Push - push new message into history
	Push(string)
	// Tail - get a number of latest messages from history in chronological order
	Tail(n int) []string
}

// WithTick - overwrites default duration of broadcast cycle.
// Broker takes one pending connection and flushes queued messages once per cycle.
func WithTick(tick time.Duration) Option {
	return func(b *Broker) error {
		if tick <= 0 {
			return fmt.Errorf("broker.WithTick: invalid tick value (%v)", tick)
		}
		b.tick = tick
		return nil
	}
}

// WithPollInterval - overwrites default read deadline for every frame read attempt.
// When deadline is expired, connection reader checks broker state and tries again.
func WithPollInterval(interval time.Duration) Option {
	return func(b *Broker) error {
		if interval <= 0 {
			return fmt.Errorf("broker.WithPollInterval: invalid interval (%v)", interval)
		}
		b.pollInterval = interval
		return nil
	}
}

// WithWriteTimeout - overwrites default timeout to deliver all queued frames to a single connection.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(b *Broker) error {
		if timeout <= 0 {
			return fmt.Errorf("broker.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		b.writeTimeout = timeout
		return nil
	}
}

// WithMaxClients - limits number of kept connections, 0 means no limit.
func WithMaxClients(n int) Option {
	return func(b *Broker) error {
		if n < 0 {
			return fmt.Errorf("broker.WithMaxClients: invalid value (%d)", n)
		}
		b.maxClients = n
		return nil
	}
}

// WithQueueSize - overwrites default capacity of inbound message queue.
// Connection readers wait when queue is full.
func WithQueueSize(size int) Option {
	return func(b *Broker) error {
		if size <= 0 {
			return fmt.Errorf("broker.WithQueueSize: invalid size (%d)", size)
		}
		b.queueSize = size
		return nil
	}
}

// WithBacklog - overwrites default num of accepted connections which may wait for the broadcast loop.
func WithBacklog(size int) Option {
	return func(b *Broker) error {
		if size <= 0 {
			return fmt.Errorf("broker.WithBacklog: invalid size (%d)", size)
		}
		b.backlog = size
		return nil
	}
}

// WithHistory - attach message history, the latest greets messages are sent to newly kept connection.
func WithHistory(h MessageHistory, greets int) Option {
	return func(b *Broker) error {
		if h == nil {
			return errors.New("broker.WithHistory: history is nil")
		}
		if greets < 0 {
			return fmt.Errorf("broker.WithHistory: invalid greets value (%d)", greets)
		}
		b.history = h
		b.greets = greets
		return nil
	}
}

// WithLogger - attach logger for connection events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Broker) error {
		if logger == nil {
			return errors.New("broker.WithLogger: logger is nil")
		}
		b.logger = logger
		return nil
	}
}

// WithIdentifier - overwrites default connection identifier, which is random UUID.
func WithIdentifier(identify func(net.Conn) string) Option {
	return func(b *Broker) error {
		if identify == nil {
			return errors.New("broker.WithIdentifier: identifier is nil")
		}
		b.identify = identify
		return nil
	}
}
