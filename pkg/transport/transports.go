package transport

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/carbonfwd/carbonfwd"
	"github.com/carbonfwd/carbonfwd/pkg/transport/amqp"
	"github.com/carbonfwd/carbonfwd/pkg/transport/graphite"
)

// All known transports.
var transports = map[string]carbonfwd.TransportFactory{
	graphite.TransportName: graphite.NewTransportFromViper,
	amqp.TransportName:     amqp.NewTransportFromViper,
}

// SelectedTransport returns the name of the transport the configuration asks
// for. The Graphite TCP transport is the default unless AMQP is switched on.
func SelectedTransport(v *viper.Viper) string {
	v.SetDefault("useamqp", false)
	if v.GetBool("useamqp") {
		return amqp.TransportName
	}
	return graphite.TransportName
}

// GetTransport creates an instance of the named transport, or nil if the name
// is not known. The error return is only used if the named transport was
// known but failed to initialize.
func GetTransport(name string, v *viper.Viper, logger log.FieldLogger) (carbonfwd.Transport, error) {
	f, found := transports[name]
	if !found {
		return nil, nil
	}
	return f(v, logger)
}

// InitTransport creates an instance of the named transport.
func InitTransport(name string, v *viper.Viper, logger log.FieldLogger) (carbonfwd.Transport, error) {
	t, err := GetTransport(name, v, logger)
	if err != nil {
		return nil, fmt.Errorf("could not init transport %q: %v", name, err)
	}
	if t == nil {
		return nil, fmt.Errorf("unknown transport %q", name)
	}
	log.Infof("Initialised transport %q", name)

	return t, nil
}
