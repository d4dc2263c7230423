package graphite

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/carbonfwd/carbonfwd"
)

const (
	// TransportName is the name of this transport.
	TransportName = "graphite"
	// DefaultHost is the default Graphite server host.
	DefaultHost = "localhost"
	// DefaultPort is the default Graphite plaintext listener port.
	DefaultPort = 2003
	// DefaultTimeout is the default connect and write timeout.
	DefaultTimeout = 10 * time.Second
)

// Transport delivers payloads to a Graphite server's plaintext TCP interface.
// Each delivery is one connection: dial, a single write of the whole payload,
// close. There is no persistent connection and no retry.
type Transport struct {
	address string
	timeout time.Duration
	logger  logrus.FieldLogger
	dialer  *net.Dialer
}

// NewTransportFromViper constructs a Transport using configuration provided by Viper.
func NewTransportFromViper(v *viper.Viper, logger logrus.FieldLogger) (carbonfwd.Transport, error) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("timeout", DefaultTimeout)
	return NewTransport(
		net.JoinHostPort(v.GetString("host"), strconv.Itoa(v.GetInt("port"))),
		v.GetDuration("timeout"),
		logger,
	)
}

// NewTransport constructs a Graphite transport object.
func NewTransport(address string, timeout time.Duration, logger logrus.FieldLogger) (*Transport, error) {
	if address == "" {
		return nil, fmt.Errorf("[%s] address is required", TransportName)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("[%s] timeout should be positive", TransportName)
	}
	logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("created transport")
	return &Transport{
		address: address,
		timeout: timeout,
		logger:  logger,
		dialer:  &net.Dialer{Timeout: timeout},
	}, nil
}

// Name returns the name of the transport.
func (t *Transport) Name() string {
	return TransportName
}

// Deliver writes the payload to the server as raw bytes and closes the
// connection. An empty payload is a no-op.
func (t *Transport) Deliver(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("[%s] connect to %s: %w", TransportName, t.address, err)
	}
	defer func() {
		if e := conn.Close(); e != nil {
			t.logger.WithError(e).Warn("close failed")
		}
	}()
	if e := conn.SetWriteDeadline(time.Now().Add(t.timeout)); e != nil {
		t.logger.WithError(e).Warn("failed to set write deadline")
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("[%s] write to %s: %w", TransportName, t.address, err)
	}
	return nil
}
