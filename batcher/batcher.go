// Package batcher provides the background half of the ingestion pipeline:
// one long-running Batcher per row type consumes a bounded channel, buffers
// rows, and flushes batches to a column-store sink on size and time
// triggers with bounded retries.
package batcher

import (
	"context"
	"log"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/mlop-ai/ingest/metrics"
)

// Sink commits one batch of rows to the column store. Implementations may
// return a retryable error; the batcher owns the retry policy.
type Sink[R any] interface {
	Write(ctx context.Context, rows []R) error
}

// Config is the flush policy of one batcher.
type Config struct {
	// BatchSize is the buffer occupancy that forces a flush.
	BatchSize int
	// FlushInterval is the maximum time rows wait in the buffer before an
	// inactivity flush.
	FlushInterval time.Duration
	// Tick is the granularity of the inactivity check. Zero means one
	// second, the coarsest allowed.
	Tick time.Duration
}

// Retry policy. A normal flush gives up and drops the batch; the final
// flush on shutdown retries harder and aborts the process on persistent
// failure, because silent data loss during shutdown must be loud.
const (
	flushAttempts      = 3
	finalFlushAttempts = 5
)

// Batcher buffers rows of one type and writes batches to its sink. All
// buffer and sink access happens on the single goroutine running Run, so
// no locking is needed.
type Batcher[R any] struct {
	table string
	sink  Sink[R]
	cfg   Config
	in    <-chan R

	buf               []R
	lastFlush         time.Time
	consecutiveErrors int

	// Injection points for tests.
	sleep  func(time.Duration)
	fatalf func(format string, args ...interface{})
}

// New returns a batcher consuming in and writing batches for table to sink.
func New[R any](table string, sink Sink[R], in <-chan R, cfg Config) *Batcher[R] {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Batcher[R]{
		table:  table,
		sink:   sink,
		cfg:    cfg,
		in:     in,
		buf:    make([]R, 0, cfg.BatchSize),
		sleep:  time.Sleep,
		fatalf: log.Fatalf,
	}
}

// Run consumes the input channel until it closes, then performs the final
// flush and returns. It must be called exactly once.
func (b *Batcher[R]) Run(ctx context.Context) {
	b.lastFlush = time.Now()
	ticker := time.NewTicker(b.cfg.Tick)
	defer ticker.Stop()

	for {
		// Pre-check gate: flush before waiting so an arrival can never
		// grow the buffer past BatchSize+1.
		if len(b.buf) >= b.cfg.BatchSize {
			logx.Debug.Printf("%s: buffer full (%d), forced flush", b.table, len(b.buf))
			b.flush(ctx)
		}

		select {
		case row, ok := <-b.in:
			if !ok {
				log.Printf("%s: input channel closed, performing final flush of %d rows",
					b.table, len(b.buf))
				b.finalFlush(ctx)
				return
			}
			b.buf = append(b.buf, row)

		case <-ticker.C:
			if time.Since(b.lastFlush) >= b.cfg.FlushInterval && len(b.buf) > 0 {
				logx.Debug.Printf("%s: inactivity flush of %d rows", b.table, len(b.buf))
				b.flush(ctx)
			}
		}
	}
}

// flush drains the buffer and writes it with up to flushAttempts tries and
// exponential backoff. After the last failure the batch is dropped, which
// is counted but deliberately not propagated: the originating requests
// completed long ago.
func (b *Batcher[R]) flush(ctx context.Context) {
	batch := b.drain()
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	metrics.FlushSizeHistogram.WithLabelValues(b.table).Observe(float64(len(batch)))

	for attempt := 1; ; attempt++ {
		err := b.sink.Write(ctx, batch)
		if err == nil {
			b.flushDone(start, nil)
			return
		}
		log.Printf("%s: error uploading batch (attempt %d/%d): %v",
			b.table, attempt, flushAttempts, err)
		if attempt >= flushAttempts {
			log.Printf("%s: dropping batch of %d rows after %d attempts",
				b.table, len(batch), flushAttempts)
			metrics.RowsDropped.WithLabelValues(b.table).Add(float64(len(batch)))
			b.flushDone(start, err)
			return
		}
		b.sleep(backoff(attempt))
	}
}

// finalFlush writes the remaining buffer with the stricter shutdown policy:
// more attempts, and a fatal abort when they are exhausted.
func (b *Batcher[R]) finalFlush(ctx context.Context) {
	batch := b.drain()
	if len(batch) == 0 {
		return
	}
	for attempt := 1; ; attempt++ {
		err := b.sink.Write(ctx, batch)
		if err == nil {
			log.Printf("%s: final flush of %d rows complete", b.table, len(batch))
			metrics.FlushCount.WithLabelValues(b.table, "ok").Inc()
			return
		}
		log.Printf("%s: error in final flush (attempt %d/%d): %v",
			b.table, attempt, finalFlushAttempts, err)
		b.sleep(backoff(attempt))
		if attempt >= finalFlushAttempts {
			b.fatalf("%s: failed to flush final batch of %d rows after %d attempts: %v",
				b.table, len(batch), finalFlushAttempts, err)
			return
		}
	}
}

// drain atomically hands the buffered rows to the caller. Arrivals after
// drain accumulate in a fresh buffer.
func (b *Batcher[R]) drain() []R {
	batch := b.buf
	b.buf = make([]R, 0, b.cfg.BatchSize)
	return batch
}

// flushDone records the outcome of one flush. lastFlush advances even on
// failure so a failed attempt still counts against the interval.
func (b *Batcher[R]) flushDone(start time.Time, err error) {
	b.lastFlush = time.Now()
	metrics.FlushDurationHistogram.WithLabelValues(b.table).Observe(time.Since(start).Seconds())
	if err != nil {
		b.consecutiveErrors++
		metrics.FlushCount.WithLabelValues(b.table, "error").Inc()
	} else {
		b.consecutiveErrors = 0
		metrics.FlushCount.WithLabelValues(b.table, "ok").Inc()
	}
	metrics.ConsecutiveFlushErrors.WithLabelValues(b.table).Set(float64(b.consecutiveErrors))
}

// backoff returns 2^attempt seconds.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
