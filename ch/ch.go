// Package ch includes all code related to ClickHouse: the batched row
// sink used by the background batchers and the synchronous point queries.
//
// NB: NOTES ON INSERT MODES
// Small batches are submitted through the server-side async insert queue
// (async_insert=1, wait_for_async_insert=0) so frequent inactivity flushes
// do not create a small-parts problem on the MergeTree. Large batches are
// worth a synchronous insert on their own. The cutoff only changes how the
// server buffers the write; rows are best-effort visible either way.
package ch

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mlop-ai/ingest/apierr"
)

// Batches at or below this size use the async insert path.
const asyncInsertMaxRows = 1000

// Open connects to ClickHouse at url, overriding DSN credentials with the
// configured user and password.
func Open(url, user, password string) (driver.Conn, error) {
	opt, err := clickhouse.ParseDSN(url)
	if err != nil {
		return nil, apierr.Newf(apierr.ConfigurationError, "invalid ClickHouse URL: %v", err)
	}
	opt.Auth.Username = user
	opt.Auth.Password = password
	conn, err := clickhouse.Open(opt)
	if err != nil {
		return nil, apierr.Newf(apierr.ConnectionFailed, "failed to connect to ClickHouse: %v", err)
	}
	return conn, nil
}

// Inserter writes batches of one row type to a fixed table. It is the
// production Sink behind every batcher.
type Inserter[R any] struct {
	conn  driver.Conn
	table string
}

// NewInserter returns an Inserter writing to table over conn. The table
// name must be one of the schema package constants; it is compiled into
// the INSERT statement and never taken from a request.
func NewInserter[R any](conn driver.Conn, table string) *Inserter[R] {
	return &Inserter[R]{conn: conn, table: table}
}

// Write commits rows in one batch, applying the async-insert heuristic.
func (in *Inserter[R]) Write(ctx context.Context, rows []R) error {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) <= asyncInsertMaxRows {
		ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 0,
		}))
	}
	batch, err := in.conn.PrepareBatch(ctx, "INSERT INTO "+in.table)
	if err != nil {
		return apierr.Newf(apierr.BatchInsertFailed, "prepare batch for %s: %v", in.table, err)
	}
	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			_ = batch.Abort()
			return apierr.Newf(apierr.BatchInsertFailed, "append row to %s: %v", in.table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return apierr.Newf(apierr.InsertFailed, "send batch to %s: %v", in.table, err)
	}
	return nil
}

// NullInserter accepts and discards all rows. It stands in for the real
// sink when uploads are disabled (SKIP_UPLOAD test mode).
type NullInserter[R any] struct{}

// Write does nothing.
func (NullInserter[R]) Write(ctx context.Context, rows []R) error {
	return nil
}
