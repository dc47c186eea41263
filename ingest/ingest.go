// Package ingest implements the HTTP surface of the gateway: the generic
// NDJSON stream pipeline for metrics, logs and data, the file presign
// endpoint, and the step point query.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/mlop-ai/ingest/apierr"
	"github.com/mlop-ai/ingest/auth"
	"github.com/mlop-ai/ingest/metrics"
	"github.com/mlop-ai/ingest/schema"
	"github.com/mlop-ai/ingest/stream"
)

// Pipeline composes the stream decoder, one row builder, and one batcher
// channel for a single stream endpoint. The type parameters bind the input
// record type to its enriched row type; Build is the only per-type
// operation (it returns a one-element slice for everything but metrics).
type Pipeline[I schema.Input, R any] struct {
	// Table is the destination table, used as the metric label.
	Table string
	// Build validates nothing; it fans a validated input out to rows.
	Build func(I, schema.Enrichment) []R
	// Out is the bounded channel feeding the batcher. A full channel
	// blocks the handler, which is the system's only backpressure.
	Out chan<- R
}

// parseLine decodes one NDJSON line into an input record, rejecting
// unknown fields. A line must hold exactly one JSON value; anything after
// it fails the line.
func parseLine[I schema.Input](line []byte) (I, error) {
	var in I
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, decodeError(line, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return in, decodeError(line, errors.New("trailing content after JSON value"))
	}
	return in, nil
}

func decodeError(line []byte, err error) error {
	preview := line
	if len(preview) > 100 {
		preview = preview[:100]
	}
	return apierr.Newf(apierr.StreamDecodingError,
		"Failed to parse JSON line '%s': %v", preview, err)
}

// Handler returns the HTTP handler for the pipeline's endpoint. Rows from
// lines preceding a failure stay enqueued; the stream has no partial
// success and no rollback.
func (p *Pipeline[I, R]) Handler(resolver auth.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID, err := auth.Authorize(ctx, r.Header, resolver)
		if err != nil {
			writeError(w, p.Table, err)
			return
		}
		enrichment, err := schema.EnrichmentFromHeaders(tenantID, r.Header)
		if err != nil {
			writeError(w, p.Table, err)
			return
		}

		start := time.Now()
		total := 0
		err = stream.Decode(r.Body, func(line []byte) error {
			in, err := parseLine[I](line)
			if err != nil {
				return err
			}
			if err := in.Validate(); err != nil {
				return err
			}
			rows := p.Build(in, enrichment)
			for i := range rows {
				select {
				case p.Out <- rows[i]:
				case <-ctx.Done():
					return apierr.New(apierr.StreamProcessingError,
						"Failed to send record to processor: request canceled")
				}
			}
			total += len(rows)
			return nil
		})
		if err != nil {
			writeError(w, p.Table, err)
			return
		}

		metrics.RowsIngested.WithLabelValues(p.Table).Add(float64(total))
		log.Printf("%s: processed %d records in %s", p.Table, total, time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(w, "Stream processed successfully: %d records", total)
	}
}

// writeError accounts for and sends one request error.
func writeError(w http.ResponseWriter, handler string, err error) {
	appErr := apierr.From(err)
	metrics.ErrorCount.WithLabelValues(handler, string(appErr.Code)).Inc()
	apierr.Write(w, appErr)
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "OK")
}
