package relay

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wtask/relay/internal/relay/frame"
)

// Option - customizes Server on building.
type Option func(s *Server) error

// WithLogger - attach logger for server and broker events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("relay.WithLogger: logger is nil")
		}
		s.logger = logger
		return nil
	}
}

// WithFarewell - message which is broadcasted to all clients on shutdown, empty value disables it.
func WithFarewell(text string) Option {
	return func(s *Server) error {
		if text == "" {
			s.farewell = ""
			return nil
		}
		if _, err := frame.Encode(text); err != nil {
			return fmt.Errorf("relay.WithFarewell: %w", err)
		}
		s.farewell = text
		return nil
	}
}
