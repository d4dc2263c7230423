package flush

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
)

// DefaultFlushInterval is the default interval between forced flushes.
const DefaultFlushInterval = 10 * time.Second

// Target is anything that can be flushed on demand.
type Target interface {
	Flush(ctx context.Context) error
}

// Flusher periodically forces a flush of its target so buffered lines are
// delivered even when traffic is too light to cross the buffer threshold.
type Flusher struct {
	flushInterval time.Duration
	target        Target
	logger        logrus.FieldLogger
}

// NewFlusher creates a new Flusher with provided configuration.
func NewFlusher(flushInterval time.Duration, target Target, logger logrus.FieldLogger) *Flusher {
	return &Flusher{
		flushInterval: flushInterval,
		target:        target,
		logger:        logger,
	}
}

// Run runs the Flusher until the context is cancelled.
func (f *Flusher) Run(ctx context.Context) {
	t := clock.NewTicker(ctx, f.flushInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := f.target.Flush(ctx); err != nil {
				f.logger.WithError(err).Error("flush failed")
			}
		}
	}
}
