package processor

import (
	"context"
	"time"
)

// LoopConfig controls the journal polling loop.
type LoopConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultBatchSize     = 64
	defaultMaxAttempts   = 5
	defaultRetryBackoff  = time.Second
	defaultRetryMaxDelay = 30 * time.Second
)

func (c LoopConfig) normalized() LoopConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Loop polls the journal for unprocessed events and dispatches them.
type Loop struct {
	processor *Processor
	cfg       LoopConfig
}

// NewLoop creates the dispatch loop over an already-constructed processor.
func NewLoop(processor *Processor, cfg LoopConfig) *Loop {
	return &Loop{processor: processor, cfg: cfg.normalized()}
}

// Run polls until ctx is cancelled. Dispatch failures back off
// exponentially up to RetryMaxDelay; events whose retry count reaches
// MaxAttempts are left for operators and no longer polled.
func (l *Loop) Run(ctx context.Context) error {
	delay := l.cfg.PollInterval
	for {
		processed, err := l.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.processor.logf("dispatch batch: %v", err)
			delay = nextDelay(delay, l.cfg.RetryBackoff, l.cfg.RetryMaxDelay)
		} else if processed > 0 {
			delay = l.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RunOnce dispatches one batch and reports how many events were applied.
// A single event failure does not stop the batch; the first error is
// returned after the batch completes.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	events, err := l.processor.store.ListUnprocessed(ctx, l.cfg.MaxAttempts, l.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var processed int
	var firstErr error
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := l.processor.Dispatch(ctx, evt); err != nil {
			l.processor.logf("process event %s (%s): %v", evt.ID, evt.Type, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		processed++
	}
	return processed, firstErr
}

// Drain dispatches batches until no unprocessed events remain or an event
// keeps failing. Used after appends when callers need projections caught up.
func (l *Loop) Drain(ctx context.Context) (int, error) {
	var total int
	for {
		processed, err := l.RunOnce(ctx)
		total += processed
		if err != nil {
			return total, err
		}
		if processed == 0 {
			return total, nil
		}
	}
}

func nextDelay(current, backoff, max time.Duration) time.Duration {
	if current < backoff {
		current = backoff
	}
	current *= 2
	if current > max {
		current = max
	}
	return current
}
