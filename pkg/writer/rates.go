package writer

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/carbonfwd/carbonfwd"
)

// Wrap corrections for counters that overflowed a fixed-width register. The
// counter's width is not known up front, so a negative delta is first assumed
// to be a 32 bit wrap and promoted to a 64 bit wrap if that was not enough.
// This matches rrdtool's counter handling.
const (
	counterWrap32 = 1 << 32
	counterWrap64 = 1<<64 - 1<<32
)

// convert produces the value to emit for the i-th data source of a batch, or
// false when the point must be suppressed: the first sighting of a
// COUNTER/DERIVE key (no baseline to derive a rate from, not an error), an
// undefined raw value, a zero interval, or a processed value outside the
// declared bounds. Bounds apply to the processed rate, not the raw reading,
// mirroring rrdtool post-processing.
//
// The caller must hold w.mu: COUNTER and DERIVE read-modify-write the
// previous-value map.
func (w *Writer) convert(vl *carbonfwd.ValueList, i int) (float64, bool) {
	ds := vl.Sources[i]
	raw := vl.Values[i]
	if math.IsNaN(raw) {
		// Undefined reading, the framework submits these as "U".
		return 0, false
	}

	var value float64
	switch ds.Type {
	case carbonfwd.GAUGE:
		value = raw
	case carbonfwd.ABSOLUTE:
		if vl.Interval <= 0 {
			w.logInterval(vl, ds)
			return 0, false
		}
		value = raw / vl.Interval.Seconds()
	case carbonfwd.COUNTER, carbonfwd.DERIVE:
		if vl.Interval <= 0 {
			w.logInterval(vl, ds)
			return 0, false
		}
		key := vl.StateKey(i)
		prev, seen := w.prev[key]
		w.prev[key] = raw
		if !seen {
			return 0, false
		}
		diff := raw - prev
		if ds.Type == carbonfwd.COUNTER {
			if diff < 0 {
				diff += counterWrap32
			}
			if diff < 0 {
				diff += counterWrap64
			}
		}
		value = diff / vl.Interval.Seconds()
	default:
		w.logger.WithFields(logrus.Fields{
			"source": ds.Name,
			"type":   ds.Type,
		}).Errorf("unknown data source type in %s", vl)
		return 0, false
	}

	if !ds.CheckRange(value) {
		w.logger.WithFields(logrus.Fields{
			"source": ds.Name,
			"value":  value,
			"min":    ds.Min,
			"max":    ds.Max,
		}).Errorf("value out of range in %s, dropping data point", vl)
		return 0, false
	}
	return value, true
}

func (w *Writer) logInterval(vl *carbonfwd.ValueList, ds carbonfwd.DataSource) {
	w.logger.WithFields(logrus.Fields{
		"source":   ds.Name,
		"interval": vl.Interval,
	}).Errorf("non-positive interval in %s, dropping data point", vl)
}
