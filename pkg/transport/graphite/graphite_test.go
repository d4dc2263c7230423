package graphite

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	t.Parallel()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()

	tr, err := NewTransport(l.Addr().String(), 1*time.Second, logrus.New())
	require.NoError(t, err)

	var acceptWg sync.WaitGroup
	acceptWg.Add(1)
	received := make(chan string, 1)
	go func() {
		defer acceptWg.Done()
		conn, e := l.Accept()
		if !assert.NoError(t, e) {
			return
		}
		defer conn.Close()
		assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		d, e := io.ReadAll(conn)
		if !assert.NoError(t, e) {
			return
		}
		received <- string(d)
	}()
	defer acceptWg.Wait()

	payload := "servers.h1.collectd.cpu.load.value 10 1234\nservers.h1.collectd.cpu.load.value 11 1244\n"
	require.NoError(t, tr.Deliver(context.Background(), []byte(payload)))
	assert.Equal(t, payload, <-received)
}

func TestDeliverEmptyPayload(t *testing.T) {
	t.Parallel()
	// No listener on the address; an empty payload must not even dial.
	tr, err := NewTransport("localhost:1", 1*time.Second, logrus.New())
	require.NoError(t, err)
	require.NoError(t, tr.Deliver(context.Background(), nil))
}

func TestDeliverConnectFailure(t *testing.T) {
	t.Parallel()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close()) // Nothing is listening here anymore.

	tr, err := NewTransport(addr, 1*time.Second, logrus.New())
	require.NoError(t, err)
	require.Error(t, tr.Deliver(context.Background(), []byte("a.b.c 1 1234\n")))
}

func TestNewTransportValidation(t *testing.T) {
	t.Parallel()
	_, err := NewTransport("", 1*time.Second, logrus.New())
	require.Error(t, err)
	_, err = NewTransport("localhost:2003", 0, logrus.New())
	require.Error(t, err)
}

func TestNewTransportFromViperDefaults(t *testing.T) {
	t.Parallel()
	tr, err := NewTransportFromViper(viper.New(), logrus.New())
	require.NoError(t, err)
	client := tr.(*Transport)
	assert.Equal(t, "localhost:2003", client.address)
	assert.Equal(t, DefaultTimeout, client.timeout)
}
