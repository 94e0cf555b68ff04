package relay

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wtask/relay/internal/relay/broker"
)

const (
	// DefaultTick - duration of broadcast cycle and of single read attempt.
	DefaultTick = 120 * time.Millisecond
	// DefaultWriteTimeout - time to deliver all frames of single cycle to one client.
	DefaultWriteTimeout = 5 * time.Second
)

// BrokerBuilder - helps to build custom broker.Broker with logger of the server.
type BrokerBuilder func(logger logrus.FieldLogger) (*broker.Broker, error)

// DefaultBroker - returns builder of broker.Broker with default relay timings,
// given options are applied over defaults.
func DefaultBroker(options ...broker.Option) BrokerBuilder {
	return func(logger logrus.FieldLogger) (*broker.Broker, error) {
		defaults := []broker.Option{
			broker.WithTick(DefaultTick),
			broker.WithPollInterval(DefaultTick),
			broker.WithWriteTimeout(DefaultWriteTimeout),
		}
		if logger != nil {
			defaults = append(defaults, broker.WithLogger(logger))
		}
		return broker.New(append(defaults, options...)...)
	}
}
