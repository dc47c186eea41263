package ch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mlop-ai/ingest/apierr"
	"github.com/mlop-ai/ingest/ch"
	"github.com/mlop-ai/ingest/schema"
)

type fakeRow struct {
	step uint64
	err  error
}

func (r *fakeRow) Err() error { return r.err }

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*uint64)) = r.step
	return nil
}

func (r *fakeRow) ScanStruct(dest any) error { return errors.New("not implemented") }

type fakeQuerier struct {
	row       *fakeRow
	lastQuery string
	lastArgs  []interface{}
}

func (q *fakeQuerier) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	q.lastQuery = query
	q.lastArgs = args
	return q.row
}

var _ driver.Row = &fakeRow{}

func TestMaxStep(t *testing.T) {
	q := &fakeQuerier{row: &fakeRow{step: 1041}}
	e := schema.Enrichment{TenantID: "tenant-1", RunID: 42, ProjectName: "mnist"}

	step, err := ch.MaxStep(context.Background(), q, e)
	if err != nil {
		t.Fatalf("MaxStep: %v", err)
	}
	if step != 1041 {
		t.Errorf("step = %d, want 1041", step)
	}

	// The statement targets the metrics table and binds only values.
	if !strings.Contains(q.lastQuery, schema.MetricsTable) {
		t.Errorf("query %q does not reference %s", q.lastQuery, schema.MetricsTable)
	}
	if len(q.lastArgs) != 3 {
		t.Fatalf("bound %d args, want 3", len(q.lastArgs))
	}
	if q.lastArgs[0] != "tenant-1" || q.lastArgs[1] != "mnist" || q.lastArgs[2] != uint64(42) {
		t.Errorf("bound args = %v", q.lastArgs)
	}
}

func TestMaxStepQueryError(t *testing.T) {
	q := &fakeQuerier{row: &fakeRow{err: errors.New("connection refused")}}
	_, err := ch.MaxStep(context.Background(), q, schema.Enrichment{})
	if err == nil {
		t.Fatal("expected error")
	}
	if apierr.From(err).Code != apierr.QueryFailed {
		t.Errorf("code = %s, want %s", apierr.From(err).Code, apierr.QueryFailed)
	}
}
