package transport

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonfwd/carbonfwd/pkg/transport/amqp"
	"github.com/carbonfwd/carbonfwd/pkg/transport/graphite"
)

func TestSelectedTransport(t *testing.T) {
	t.Parallel()
	assert.Equal(t, graphite.TransportName, SelectedTransport(viper.New()))

	v := viper.New()
	v.Set("UseAMQP", true) // Viper keys are case-insensitive.
	assert.Equal(t, amqp.TransportName, SelectedTransport(v))
}

func TestInitTransport(t *testing.T) {
	t.Parallel()
	for _, name := range []string{graphite.TransportName, amqp.TransportName} {
		tr, err := InitTransport(name, viper.New(), logrus.New())
		require.NoError(t, err, name)
		assert.Equal(t, name, tr.Name())
	}
}

func TestInitTransportUnknown(t *testing.T) {
	t.Parallel()
	_, err := InitTransport("carrier-pigeon", viper.New(), logrus.New())
	require.Error(t, err)
}
