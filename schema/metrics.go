package schema

import (
	"math"

	"github.com/mlop-ai/ingest/apierr"
)

// MetricInput is one client metric record. A single input fans out to one
// row per entry in Data.
//
// Example:
//
//	{"time": 1234567890, "step": 42, "data": {"accuracy": 0.95, "loss": 0.123}}
type MetricInput struct {
	Time uint64             `json:"time"`
	Step uint64             `json:"step"`
	Data map[string]float64 `json:"data"`
}

// Validate checks that the data map is non-empty, every metric name is
// non-blank, and every value is finite.
func (in MetricInput) Validate() error {
	if len(in.Data) == 0 {
		return apierr.New(apierr.InvalidMetricFormat, "'data' field cannot be empty")
	}
	for name, value := range in.Data {
		if !hasText(name) {
			return apierr.New(apierr.InvalidMetricFormat, "metric name cannot be empty")
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return apierr.Newf(apierr.InvalidMetricFormat,
				"metric '%s' has invalid value: %v", name, value)
		}
	}
	return nil
}

// Rows fans the input out to one enriched row per metric. Map iteration
// order is unspecified, so the order of returned rows is too.
func (in MetricInput) Rows(e Enrichment) []MetricRow {
	rows := make([]MetricRow, 0, len(in.Data))
	for logName, value := range in.Data {
		rows = append(rows, MetricRow{
			Time:        in.Time,
			Step:        in.Step,
			LogGroup:    LogGroup(logName),
			LogName:     logName,
			Value:       value,
			TenantID:    e.TenantID,
			RunID:       e.RunID,
			ProjectName: e.ProjectName,
		})
	}
	return rows
}

// MetricRow is one point in the mlop_metrics table.
type MetricRow struct {
	Time     uint64  `json:"time" ch:"time"`
	Step     uint64  `json:"step" ch:"step"`
	LogGroup string  `json:"logGroup" ch:"logGroup"`
	LogName  string  `json:"logName" ch:"logName"`
	Value    float64 `json:"value" ch:"value"`

	TenantID    string `json:"tenantId" ch:"tenantId"`
	RunID       uint64 `json:"runId" ch:"runId"`
	ProjectName string `json:"projectName" ch:"projectName"`
}
