package writer

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/carbonfwd/carbonfwd"
)

const (
	// DefaultBufferSize is the buffered-bytes threshold that triggers a flush.
	DefaultBufferSize = 8192
	// DefaultPrefix is the default leading path segment.
	DefaultPrefix = "collectd"
	// DefaultHostBucket is the default path segment following the host.
	DefaultHostBucket = "collectd"
	// DefaultReverseHost controls the default host name transform.
	DefaultReverseHost = false
)

// Repeated delivery failures against a dead endpoint would otherwise produce
// one error log per flush.
const (
	deliveryLogInterval = 30 * time.Second
	deliveryLogBurst    = 5
)

// Writer is the sample-to-line pipeline: it converts raw readings into rates,
// renders them as Graphite plaintext lines into a bounded buffer, and hands
// the buffer to a Transport once it fills up or a flush is forced.
//
// Delivery is best effort. The buffer is surrendered before the transport is
// invoked, so a failed attempt loses the buffered lines; nothing is retried
// or re-queued. This keeps the collection pipeline live during a downstream
// outage at the cost of dropped metrics.
type Writer struct {
	logger    logrus.FieldLogger
	transport carbonfwd.Transport
	logLimit  *rate.Limiter

	bufferSize  int
	prefix      string
	hostBucket  string
	reverseHost bool

	// mu serializes conversion, buffer append, and the flush swap. The
	// transport is invoked outside the lock on a swapped-out payload so a
	// slow endpoint does not stall concurrent Write calls.
	mu   sync.Mutex
	prev map[string]float64
	buf  bytes.Buffer
}

// NewWriterFromViper constructs a Writer using configuration provided by Viper.
func NewWriterFromViper(v *viper.Viper, logger logrus.FieldLogger, transport carbonfwd.Transport) (*Writer, error) {
	v.SetDefault("buffer", DefaultBufferSize)
	v.SetDefault("prefix", DefaultPrefix)
	v.SetDefault("hostbucket", DefaultHostBucket)
	v.SetDefault("reversehost", DefaultReverseHost)
	return NewWriter(
		transport,
		v.GetInt("buffer"),
		v.GetString("prefix"),
		v.GetString("hostbucket"),
		v.GetBool("reversehost"),
		logger,
	)
}

// NewWriter constructs a Writer.
func NewWriter(
	transport carbonfwd.Transport,
	bufferSize int,
	prefix string,
	hostBucket string,
	reverseHost bool,
	logger logrus.FieldLogger,
) (*Writer, error) {
	if transport == nil {
		return nil, fmt.Errorf("[writer] transport is required")
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("[writer] buffer size should be positive")
	}
	logger.WithFields(logrus.Fields{
		"buffer":       bufferSize,
		"prefix":       prefix,
		"host-bucket":  hostBucket,
		"reverse-host": reverseHost,
		"transport":    transport.Name(),
	}).Info("created writer")
	return &Writer{
		logger:      logger,
		transport:   transport,
		logLimit:    rate.NewLimiter(rate.Every(deliveryLogInterval), deliveryLogBurst),
		bufferSize:  bufferSize,
		prefix:      prefix,
		hostBucket:  hostBucket,
		reverseHost: reverseHost,
		prev:        make(map[string]float64),
	}, nil
}

// Write processes one measurement batch: every data source is rate-converted,
// rendered and appended to the buffer. Crossing the buffer threshold triggers
// a delivery of everything buffered so far. Safe for concurrent use.
//
// Transport failures are not reported through the error return, only logged;
// the caller sees an error only for a malformed batch.
func (w *Writer) Write(ctx context.Context, vl *carbonfwd.ValueList) error {
	if len(vl.Values) != len(vl.Sources) {
		return fmt.Errorf("[writer] %d values for %d data sources in %s", len(vl.Values), len(vl.Sources), vl)
	}
	var payload string
	w.mu.Lock()
	for i := range vl.Sources {
		value, ok := w.convert(vl, i)
		if !ok {
			continue
		}
		path := w.buildPath(vl, vl.Sources[i].Name)
		_, _ = fmt.Fprintf(&w.buf, "%s %s %d\n", path, strconv.FormatFloat(value, 'f', -1, 64), vl.Time.Unix())
	}
	if w.buf.Len() >= w.bufferSize {
		payload = w.takeAndClear()
	}
	w.mu.Unlock()
	w.deliver(ctx, payload)
	return nil
}

// Flush forces delivery of everything buffered, regardless of size. Invoked
// by the host on a timer and at shutdown. Always reports success; a delivery
// failure drops the buffered lines and is only logged.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	payload := w.takeAndClear()
	w.mu.Unlock()
	w.deliver(ctx, payload)
	return nil
}

// takeAndClear must be called with w.mu held.
func (w *Writer) takeAndClear() string {
	payload := w.buf.String()
	w.buf.Reset()
	return payload
}

func (w *Writer) deliver(ctx context.Context, payload string) {
	if payload == "" {
		return
	}
	if err := w.transport.Deliver(ctx, []byte(payload)); err != nil {
		if w.logLimit.Allow() {
			w.logger.WithError(err).WithField("transport", w.transport.Name()).Error("delivery failed, dropping buffered lines")
		}
	}
}
