// Package putval parses the PUTVAL command of the collectd plain text
// protocol, the format emitted by exec plugins and accepted on the unixsock
// interface:
//
//	PUTVAL "host/plugin-instance/type-instance" interval=10 1435231462:42:U
//
// The value token is a colon separated list starting with the epoch timestamp
// ("N" for now), followed by one raw value per data source of the type ("U"
// for undefined).
package putval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/carbonfwd/carbonfwd"
)

// Parser turns PUTVAL lines into value lists, resolving type names against a
// TypeDB.
type Parser struct {
	types           *TypeDB
	defaultInterval time.Duration
	now             func() time.Time // Returns current time. Useful for testing.
}

// NewParser creates a new Parser.
func NewParser(types *TypeDB, defaultInterval time.Duration) *Parser {
	return &Parser{
		types:           types,
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

// ParseLine parses one PUTVAL line.
func (p *Parser) ParseLine(line string) (*carbonfwd.ValueList, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed PUTVAL line %q", line)
	}
	if !strings.EqualFold(fields[0], "PUTVAL") {
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}

	vl, err := p.parseIdentifier(strings.Trim(fields[1], `"`))
	if err != nil {
		return nil, err
	}
	vl.Interval = p.defaultInterval

	// Options sit between the identifier and the value token. Unrecognized
	// options are ignored.
	for _, opt := range fields[2 : len(fields)-1] {
		key, value, found := strings.Cut(opt, "=")
		if !found {
			return nil, fmt.Errorf("malformed option %q", opt)
		}
		if strings.EqualFold(key, "interval") {
			seconds, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed interval %q", value)
			}
			vl.Interval = time.Duration(seconds * float64(time.Second))
		}
	}

	if err := p.parseValues(vl, fields[len(fields)-1]); err != nil {
		return nil, err
	}
	return vl, nil
}

func (p *Parser) parseIdentifier(id string) (*carbonfwd.ValueList, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed identifier %q", id)
	}
	vl := &carbonfwd.ValueList{Host: parts[0]}
	vl.Plugin, vl.PluginInstance, _ = strings.Cut(parts[1], "-")
	vl.Type, vl.TypeInstance, _ = strings.Cut(parts[2], "-")
	if vl.Host == "" || vl.Plugin == "" || vl.Type == "" {
		return nil, fmt.Errorf("malformed identifier %q", id)
	}
	sources, ok := p.types.Lookup(vl.Type)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", vl.Type)
	}
	vl.Sources = sources
	return vl, nil
}

func (p *Parser) parseValues(vl *carbonfwd.ValueList, token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != len(vl.Sources)+1 {
		return fmt.Errorf("%d values for %d data sources of type %q", len(parts)-1, len(vl.Sources), vl.Type)
	}
	if parts[0] == "N" || parts[0] == "n" {
		vl.Time = p.now()
	} else {
		epoch, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return fmt.Errorf("malformed timestamp %q", parts[0])
		}
		sec, frac := math.Modf(epoch)
		vl.Time = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	}
	vl.Values = make([]float64, len(parts)-1)
	for i, s := range parts[1:] {
		if s == "U" || s == "u" {
			vl.Values[i] = math.NaN()
			continue
		}
		value, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("malformed value %q", s)
		}
		vl.Values[i] = value
	}
	return nil
}
