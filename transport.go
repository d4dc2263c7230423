package carbonfwd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Transport delivers a rendered payload to a downstream system. Delivery is
// best effort: a failed attempt is reported through the error return and the
// payload is gone. Implementations must not retain the payload after Deliver
// returns.
type Transport interface {
	// Name returns the name of the transport.
	Name() string
	// Deliver sends the payload, blocking up to the transport's configured
	// timeouts. An empty payload is a no-op and must return nil.
	Deliver(ctx context.Context, payload []byte) error
}

// TransportFactory is a function that returns a Transport.
type TransportFactory func(*viper.Viper, logrus.FieldLogger) (Transport, error)
