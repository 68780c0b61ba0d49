// Package report implements best-effort telemetry batching. Sessions fire
// events at the batcher and never wait on it; batches flush to a sink when
// either the size or the time bound is hit, whichever comes first.
package report

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/soyeahso/vox/internal/metrics"
	"github.com/soyeahso/vox/internal/pipeline"
)

// Sink receives flushed batches. A flush failure drops the batch;
// telemetry is never allowed to back-pressure the pipeline.
type Sink interface {
	Flush(ctx context.Context, batch []domain.ReportEvent) error
}

// BatcherConfig tunes the size-or-time flush policy.
type BatcherConfig struct {
	// BatchSize flushes as soon as this many events are assembled.
	// Default: 16.
	BatchSize int

	// BatchTimeout flushes whatever has accumulated when this much time
	// has passed since the last flush. Default: 5s.
	BatchTimeout time.Duration

	// QueueCap bounds the pending-event queue. At the cap the batcher
	// force-flushes its assembled batch and evicts the oldest queued
	// events to make room. Default: 1024.
	QueueCap int

	// FlushTimeout bounds one sink call. Default: 10s.
	FlushTimeout time.Duration
}

func (c *BatcherConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 1024
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 10 * time.Second
	}
}

// Batcher collects ReportEvents and flushes them in bounded batches.
type Batcher struct {
	cfg     BatcherConfig
	sink    Sink
	queue   *pipeline.Buffer[domain.ReportEvent]
	forced  atomic.Bool
	done    chan struct{}
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewBatcher creates a batcher and starts its flush loop.
func NewBatcher(cfg BatcherConfig, sink Sink, m *metrics.Metrics, log *logging.Logger) *Batcher {
	cfg.applyDefaults()
	b := &Batcher{
		cfg:     cfg,
		sink:    sink,
		queue:   pipeline.NewBuffer[domain.ReportEvent](cfg.QueueCap),
		done:    make(chan struct{}),
		log:     log.Sub("report"),
		metrics: m,
	}
	go b.run()
	return b
}

// Submit hands one event to the batcher. Never blocks the caller: at the
// queue cap it requests a force-flush and evicts the oldest events.
// Events submitted after Stop are dropped.
func (b *Batcher) Submit(ev domain.ReportEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.metrics.RecordReportEvent()

	err := b.queue.TryPut(ev)
	if err == nil {
		return
	}
	if errors.Is(err, pipeline.ErrBufferClosed) {
		return
	}

	// Queue at cap: tell the loop to flush what it has and make room.
	b.forced.Store(true)
	dropped, err := b.queue.PutDropOldest(ev)
	if err != nil {
		return
	}
	if dropped > 0 {
		b.metrics.RecordReportDropped(dropped)
		b.log.Warn().Int("dropped", dropped).Msg("report queue at cap, evicted oldest events")
	}
}

// Stop flushes any partial batch and terminates the loop. Blocks until
// the loop has exited or the flush timeout expires.
func (b *Batcher) Stop() {
	b.queue.Close()
	select {
	case <-b.done:
	case <-time.After(b.cfg.FlushTimeout + time.Second):
		b.log.Warn().Msg("report batcher did not stop in time")
	}
}

func (b *Batcher) run() {
	defer close(b.done)

	batch := make([]domain.ReportEvent, 0, b.cfg.BatchSize)
	lastFlush := time.Now()

	flush := func(trigger string) {
		if len(batch) == 0 {
			lastFlush = time.Now()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
		err := b.sink.Flush(ctx, batch)
		cancel()
		b.metrics.RecordReportFlush(trigger, err)
		if err != nil {
			b.log.Error().Err(err).
				Int("events", len(batch)).
				Str("trigger", trigger).
				Msg("report flush failed, dropping batch")
		} else {
			b.log.Debug().
				Int("events", len(batch)).
				Str("trigger", trigger).
				Msg("report batch flushed")
		}
		batch = batch[:0]
		lastFlush = time.Now()
	}

	for {
		wait := b.cfg.BatchTimeout - time.Since(lastFlush)
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}

		ev, err := b.queue.Get(wait)
		switch {
		case err == nil:
			batch = append(batch, ev)
			if b.forced.Swap(false) {
				flush("cap")
			} else if len(batch) >= b.cfg.BatchSize {
				flush("size")
			} else if time.Since(lastFlush) >= b.cfg.BatchTimeout {
				flush("timeout")
			}
		case errors.Is(err, pipeline.ErrBufferTimeout):
			flush("timeout")
		case errors.Is(err, pipeline.ErrBufferClosed):
			flush("shutdown")
			return
		}
	}
}
