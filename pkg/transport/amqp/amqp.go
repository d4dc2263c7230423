package amqp

import (
	"bytes"
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/carbonfwd/carbonfwd"
)

const (
	// TransportName is the name of this transport.
	TransportName = "amqp"
	// DefaultHost is the default broker host.
	DefaultHost = "localhost"
	// DefaultPort is the default broker port.
	DefaultPort = 5672
	// DefaultUser is the default broker user.
	DefaultUser = "guest"
	// DefaultPassword is the default broker password.
	DefaultPassword = "guest"
	// DefaultVHost is the default virtual host.
	DefaultVHost = "graphite"
	// DefaultExchange is the default exchange to publish to.
	DefaultExchange = "graphite"
	// DefaultTimeout is the default broker connect timeout.
	DefaultTimeout = 10 * time.Second

	routingKey = "graphite"
)

// channel is the subset of amqp091.Channel the transport uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connection is the subset of amqp091.Connection the transport uses.
type connection interface {
	Channel() (channel, error)
	Close() error
}

type connFactory func() (connection, error)

// Transport delivers payloads to an AMQP broker, one message per line. Each
// delivery is one connection: dial, open a channel, publish every line to the
// exchange, close. A publish failure abandons the remaining lines; the ones
// already published stay published. There is no retry.
type Transport struct {
	uri         amqp.URI
	exchange    string
	logger      logrus.FieldLogger
	connFactory connFactory
}

// NewTransportFromViper constructs a Transport using configuration provided by Viper.
func NewTransportFromViper(v *viper.Viper, logger logrus.FieldLogger) (carbonfwd.Transport, error) {
	v.SetDefault("amqphost", DefaultHost)
	v.SetDefault("amqpport", DefaultPort)
	v.SetDefault("amqpuser", DefaultUser)
	v.SetDefault("amqppassword", DefaultPassword)
	v.SetDefault("amqpvhost", DefaultVHost)
	v.SetDefault("amqpexchange", DefaultExchange)
	v.SetDefault("timeout", DefaultTimeout)
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     v.GetString("amqphost"),
		Port:     v.GetInt("amqpport"),
		Username: v.GetString("amqpuser"),
		Password: v.GetString("amqppassword"),
		Vhost:    v.GetString("amqpvhost"),
	}
	return NewTransport(uri, v.GetString("amqpexchange"), v.GetDuration("timeout"), logger)
}

// NewTransport constructs an AMQP transport object.
func NewTransport(uri amqp.URI, exchange string, timeout time.Duration, logger logrus.FieldLogger) (*Transport, error) {
	if uri.Host == "" {
		return nil, fmt.Errorf("[%s] host is required", TransportName)
	}
	if exchange == "" {
		return nil, fmt.Errorf("[%s] exchange is required", TransportName)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("[%s] timeout should be positive", TransportName)
	}
	logger.WithFields(logrus.Fields{
		"host":     uri.Host,
		"port":     uri.Port,
		"vhost":    uri.Vhost,
		"exchange": exchange,
		"timeout":  timeout,
	}).Info("created transport")
	return &Transport{
		uri:      uri,
		exchange: exchange,
		logger:   logger,
		connFactory: func() (connection, error) {
			conn, err := amqp.DialConfig(uri.String(), amqp.Config{
				Vhost: uri.Vhost,
				Dial:  amqp.DefaultDial(timeout),
			})
			if err != nil {
				return nil, err
			}
			return amqpConnection{conn}, nil
		},
	}, nil
}

// Name returns the name of the transport.
func (t *Transport) Name() string {
	return TransportName
}

// Deliver publishes every line of the payload as its own message, body
// without the trailing newline. An empty payload is a no-op.
func (t *Transport) Deliver(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	conn, err := t.connFactory()
	if err != nil {
		return fmt.Errorf("[%s] connect to %s vhost %q: %w", TransportName, t.uri.Host, t.uri.Vhost, err)
	}
	defer func() {
		// The publishes already went out, a failed disconnect is not a
		// delivery failure.
		if e := conn.Close(); e != nil {
			t.logger.WithError(e).Warn("disconnect failed")
		}
	}()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("[%s] open channel on %s: %w", TransportName, t.uri.Host, err)
	}
	defer func() {
		if e := ch.Close(); e != nil {
			t.logger.WithError(e).Warn("channel close failed")
		}
	}()
	for _, line := range splitLines(payload) {
		err := ch.PublishWithContext(ctx, t.exchange, routingKey, false, false, amqp.Publishing{
			ContentType: "text/plain",
			Body:        line,
		})
		if err != nil {
			return fmt.Errorf("[%s] publish to exchange %q: %w", TransportName, t.exchange, err)
		}
	}
	return nil
}

func splitLines(payload []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c amqpConnection) Close() error {
	return c.conn.Close()
}
