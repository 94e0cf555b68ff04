package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wtask/relay/internal/relay/broker"
	"github.com/wtask/relay/pkg/background"
)

const acceptRetryDelay = 50 * time.Millisecond

// Server - represents frame relay over any net.Listener implementation.
type Server struct {
	scope    *background.Scope
	broker   *broker.Broker
	logger   logrus.FieldLogger
	farewell string
}

// NewServer - creates new relay server which ready to serve several network listeners.
func NewServer(buildBroker BrokerBuilder, options ...Option) (*Server, error) {
	if buildBroker == nil {
		return nil, errors.New("relay.NewServer: required relay.BrokerBuilder is nil")
	}
	s := &Server{
		logger:   discardLogger(),
		farewell: "Relay is shutting down",
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return nil, err
		}
	}
	b, err := buildBroker(s.logger)
	if err != nil {
		return nil, fmt.Errorf("relay.NewServer: can't build broker: %w", err)
	}
	s.broker = b
	s.scope = background.NewScope()
	return s, nil
}

// Serve - accepts connections from the listener and passes them to the broker.
// It blocks until the listener is closed, Shutdown closes all served listeners.
func (s *Server) Serve(listener net.Listener) {
	if listener == nil {
		return
	}
	stop := make(chan struct{})
	defer close(stop)
	if !s.scope.Go(func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		listener.Close()
	}) {
		return
	}

	log := s.logger.WithField("listener", formatAddress(listener.Addr()))
	log.Info("Listening")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.scope.Context().Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("Listener closed")
				return
			}
			log.WithError(err).Error("Accept failed")
			time.Sleep(acceptRetryDelay)
			continue
		}
		// waiting for backlog leaves the rest of clients in the listener queue
		if err := s.broker.AwaitConnection(s.scope.Context(), conn); err != nil {
			log.WithError(err).WithField("addr", formatAddress(conn.RemoteAddr())).Warn("Connection is not kept")
			conn.Close()
		}
	}
}

// Shutdown - stops server with the specified timeout and returns stopping duration.
// Listeners are closed first, then farewell message is flushed to clients and broker quits.
func (s *Server) Shutdown(timeout time.Duration) time.Duration {
	if s.scope.Context().Err() != nil {
		return 0
	}
	from := time.Now()
	s.scope.Shutdown(timeout)
	if s.farewell != "" {
		if err := s.broker.Publish(s.farewell); err != nil {
			s.logger.WithError(err).Warn("Farewell is not sent")
		}
	}
	left := timeout - time.Since(from)
	if left < 0 {
		left = 0
	}
	s.broker.Quit(left)
	return time.Since(from)
}

// Clients - returns num of connections kept by the server.
func (s *Server) Clients() int {
	return s.broker.Len()
}
