// The metrics package defines prometheus metric types and provides
// convenience methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//   - things coming into or out of the system: requests, lines, rows, batches.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	// Register the metrics defined with Prometheus's default registry.
	prometheus.MustRegister(RowsIngested)
	prometheus.MustRegister(RowsDropped)
	prometheus.MustRegister(FlushCount)
	prometheus.MustRegister(FlushSizeHistogram)
	prometheus.MustRegister(FlushDurationHistogram)
	prometheus.MustRegister(ConsecutiveFlushErrors)
	prometheus.MustRegister(ErrorCount)
	prometheus.MustRegister(PresignCount)
	prometheus.MustRegister(DurationHistogram)
}

var (
	// Counts the rows accepted by the ingestion handlers, after validation
	// and fan-out, per destination table.
	//
	// Provides metrics:
	//   mlop_rows_ingested_total{table}
	// Example usage:
	//   metrics.RowsIngested.WithLabelValues(schema.MetricsTable).Add(float64(n))
	RowsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlop_rows_ingested_total",
			Help: "Number of rows enqueued for batching, per table.",
		}, []string{"table"})

	// Counts rows discarded after a flush exhausted its retries.
	//
	// Provides metrics:
	//   mlop_rows_dropped_total{table}
	// Example usage:
	//   metrics.RowsDropped.WithLabelValues(table).Add(float64(len(batch)))
	RowsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlop_rows_dropped_total",
			Help: "Number of rows dropped after repeated flush failures.",
		}, []string{"table"})

	// Counts flush outcomes per table.
	//
	// Provides metrics:
	//   mlop_flush_total{table, status}
	// Example usage:
	//   metrics.FlushCount.WithLabelValues(table, "ok").Inc()
	FlushCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlop_flush_total",
			Help: "Number of batch flushes, per table and outcome.",
		}, []string{"table", "status"})

	// Measures the distribution of flushed batch sizes.
	//
	// Provides metrics:
	//   mlop_flush_size
	// Example usage:
	//   metrics.FlushSizeHistogram.WithLabelValues(table).Observe(float64(len(batch)))
	FlushSizeHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlop_flush_size",
			Help:    "Number of rows per flushed batch.",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}, []string{"table"})

	// Measures the time spent writing one batch to the column store,
	// including retries.
	//
	// Provides metrics:
	//   mlop_flush_duration_seconds
	// Example usage:
	//   metrics.FlushDurationHistogram.WithLabelValues(table).Observe(elapsed.Seconds())
	FlushDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlop_flush_duration_seconds",
			Help:    "Time to write one batch to the column store.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"table"})

	// Tracks the consecutiveErrors counter of each batcher.
	//
	// Provides metrics:
	//   mlop_consecutive_flush_errors{table}
	// Example usage:
	//   metrics.ConsecutiveFlushErrors.WithLabelValues(table).Set(float64(n))
	ConsecutiveFlushErrors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mlop_consecutive_flush_errors",
			Help: "Consecutive failed flushes per table; resets to zero on success.",
		}, []string{"table"})

	// Counts errors returned to clients, per handler and error code.
	//
	// Provides metrics:
	//   mlop_error_total{handler, code}
	// Example usage:
	//   metrics.ErrorCount.WithLabelValues("metrics", string(appErr.Code)).Inc()
	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlop_error_total",
			Help: "Number of request errors, per handler and error code.",
		}, []string{"handler", "code"})

	// Counts presigned URL generation attempts.
	//
	// Provides metrics:
	//   mlop_presign_total{status}
	// Example usage:
	//   metrics.PresignCount.WithLabelValues("ok").Inc()
	PresignCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlop_presign_total",
			Help: "Number of presigned upload URLs generated, by outcome.",
		}, []string{"status"})

	// Measures the wall time of each HTTP handler.
	//
	// Provides metrics:
	//   mlop_request_duration_seconds{handler}
	// Example usage:
	//   metrics.DurationHistogram.WithLabelValues("metrics").Observe(elapsed.Seconds())
	DurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlop_request_duration_seconds",
			Help:    "Request processing time per handler.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 12),
		}, []string{"handler"})
)

// DurationHandler wraps the call of an inner http.HandlerFunc and records the runtime.
func DurationHandler(name string, inner http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		inner.ServeHTTP(w, r)
		DurationHistogram.WithLabelValues(name).Observe(time.Since(t).Seconds())
	}
}
