package ch

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mlop-ai/ingest/apierr"
	"github.com/mlop-ai/ingest/schema"
)

// Querier is the subset of driver.Conn used by point queries. It exists so
// handlers can be tested without a ClickHouse server.
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row
}

// The table name is a package constant, not caller input; only the run
// context values are bound as parameters.
const maxStepQuery = "SELECT max(step) AS step FROM " + schema.MetricsTable +
	" WHERE tenantId = ? AND projectName = ? AND runId = ?"

// MaxStep returns the largest metric step recorded for the run identified
// by e, or zero when the run has no metrics yet.
func MaxStep(ctx context.Context, conn Querier, e schema.Enrichment) (uint64, error) {
	var step uint64
	row := conn.QueryRow(ctx, maxStepQuery, e.TenantID, e.ProjectName, e.RunID)
	if err := row.Scan(&step); err != nil {
		return 0, apierr.Newf(apierr.QueryFailed, "max step query failed: %v", err)
	}
	return step, nil
}
