package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []string
	failAfter int // fail the publish once this many went through, -1 never
	closed    bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.failAfter >= 0 && len(c.published) >= c.failAfter {
		return errors.New("channel gone")
	}
	c.published = append(c.published, string(msg.Body))
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeConnection struct {
	ch     *fakeChannel
	chErr  error
	closed bool
}

func (c *fakeConnection) Channel() (channel, error) {
	if c.chErr != nil {
		return nil, c.chErr
	}
	return c.ch, nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

func newTestTransport(t *testing.T, factory connFactory) *Transport {
	uri := amqp.URI{Scheme: "amqp", Host: "localhost", Port: 5672, Username: "guest", Password: "guest", Vhost: DefaultVHost}
	tr, err := NewTransport(uri, DefaultExchange, 1*time.Second, logrus.New())
	require.NoError(t, err)
	tr.connFactory = factory
	return tr
}

func TestDeliverPublishesPerLine(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{failAfter: -1}
	conn := &fakeConnection{ch: ch}
	tr := newTestTransport(t, func() (connection, error) { return conn, nil })

	payload := "a.b.c 1 1234\na.b.d 2 1234\n"
	require.NoError(t, tr.Deliver(context.Background(), []byte(payload)))
	assert.Equal(t, []string{"a.b.c 1 1234", "a.b.d 2 1234"}, ch.published, "one message per line, no trailing newline")
	assert.True(t, conn.closed)
	assert.True(t, ch.closed)
}

func TestDeliverEmptyPayload(t *testing.T) {
	t.Parallel()
	tr := newTestTransport(t, func() (connection, error) {
		t.Error("empty payload must not connect")
		return nil, errors.New("unexpected")
	})
	require.NoError(t, tr.Deliver(context.Background(), nil))
}

func TestDeliverConnectFailure(t *testing.T) {
	t.Parallel()
	tr := newTestTransport(t, func() (connection, error) { return nil, errors.New("broker unreachable") })
	require.Error(t, tr.Deliver(context.Background(), []byte("a.b.c 1 1234\n")))
}

func TestDeliverChannelFailure(t *testing.T) {
	t.Parallel()
	conn := &fakeConnection{chErr: errors.New("no channel")}
	tr := newTestTransport(t, func() (connection, error) { return conn, nil })
	require.Error(t, tr.Deliver(context.Background(), []byte("a.b.c 1 1234\n")))
	assert.True(t, conn.closed, "connection is closed even when the channel fails")
}

func TestDeliverAbandonsRemainderOnPublishFailure(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{failAfter: 1}
	conn := &fakeConnection{ch: ch}
	tr := newTestTransport(t, func() (connection, error) { return conn, nil })

	payload := "a.b.c 1 1234\na.b.d 2 1234\na.b.e 3 1234\n"
	require.Error(t, tr.Deliver(context.Background(), []byte(payload)))
	assert.Equal(t, []string{"a.b.c 1 1234"}, ch.published, "already published lines stay published, the rest is abandoned")
	assert.True(t, conn.closed)
}

func TestNewTransportValidation(t *testing.T) {
	t.Parallel()
	uri := amqp.URI{Scheme: "amqp", Host: "localhost", Port: 5672, Vhost: DefaultVHost}
	_, err := NewTransport(amqp.URI{Scheme: "amqp"}, DefaultExchange, 1*time.Second, logrus.New())
	require.Error(t, err)
	_, err = NewTransport(uri, "", 1*time.Second, logrus.New())
	require.Error(t, err)
	_, err = NewTransport(uri, DefaultExchange, 0, logrus.New())
	require.Error(t, err)
}

func TestNewTransportFromViperDefaults(t *testing.T) {
	t.Parallel()
	tr, err := NewTransportFromViper(viper.New(), logrus.New())
	require.NoError(t, err)
	client := tr.(*Transport)
	assert.Equal(t, "localhost", client.uri.Host)
	assert.Equal(t, 5672, client.uri.Port)
	assert.Equal(t, "graphite", client.uri.Vhost)
	assert.Equal(t, "graphite", client.exchange)
}
