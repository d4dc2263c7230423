package carbonfwd

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DSType is an enumeration of all the possible kinds of a data source.
type DSType byte

const (
	_ = iota
	// GAUGE is a free-standing value that is stored as-is.
	GAUGE DSType = iota
	// COUNTER is a monotonically increasing value with fixed-width wraparound.
	COUNTER
	// DERIVE is a value whose change per second is stored.
	DERIVE
	// ABSOLUTE is a value that resets on every read and is divided by the interval.
	ABSOLUTE
)

func (t DSType) String() string {
	switch t {
	case GAUGE:
		return "gauge"
	case COUNTER:
		return "counter"
	case DERIVE:
		return "derive"
	case ABSOLUTE:
		return "absolute"
	}
	return "unknown"
}

// DSTypeFromString parses a data source kind name, case-insensitively.
func DSTypeFromString(s string) (DSType, error) {
	switch strings.ToLower(s) {
	case "gauge":
		return GAUGE, nil
	case "counter":
		return COUNTER, nil
	case "derive":
		return DERIVE, nil
	case "absolute":
		return ABSOLUTE, nil
	}
	return 0, fmt.Errorf("unknown data source type %q", s)
}

// DataSource describes one named numeric slot within a ValueList: its kind and
// the bounds, if any, that the processed rate must satisfy. Min and Max are
// NaN when unbounded, matching types.db "U" entries.
type DataSource struct {
	Name string
	Type DSType
	Min  float64
	Max  float64
}

// Unbounded returns a NaN bound for DataSource.Min / DataSource.Max.
func Unbounded() float64 {
	return math.NaN()
}

// CheckRange reports whether the processed value is within the declared
// bounds. Bounds are inclusive; a NaN bound does not constrain.
func (d DataSource) CheckRange(v float64) bool {
	if !math.IsNaN(d.Min) && v < d.Min {
		return false
	}
	if !math.IsNaN(d.Max) && v > d.Max {
		return false
	}
	return true
}

// ValueList represents one measurement batch as submitted by the collection
// framework: identification of where the values came from, the collection
// interval, and one raw value per data source. Sources and Values are
// parallel, in submission order. Read-only once submitted.
type ValueList struct {
	Host           string
	Plugin         string
	PluginInstance string
	Type           string
	TypeInstance   string
	Interval       time.Duration
	Time           time.Time
	Sources        []DataSource
	Values         []float64
}

// PluginID returns "plugin" or "plugin-instance" when an instance is set.
func (vl *ValueList) PluginID() string {
	if vl.PluginInstance != "" {
		return vl.Plugin + "-" + vl.PluginInstance
	}
	return vl.Plugin
}

// TypeID returns "type" or "type-instance" when an instance is set.
func (vl *ValueList) TypeID() string {
	if vl.TypeInstance != "" {
		return vl.Type + "-" + vl.TypeInstance
	}
	return vl.Type
}

// StateKey returns the key under which previous raw values are tracked for
// the i-th data source of this batch.
func (vl *ValueList) StateKey(i int) string {
	return vl.PluginID() + "." + vl.TypeID() + "." + vl.Sources[i].Name
}

func (vl *ValueList) String() string {
	return fmt.Sprintf("{%s, %s, %s, %v}", vl.Host, vl.PluginID(), vl.TypeID(), vl.Values)
}
