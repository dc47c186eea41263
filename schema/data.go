package schema

import "github.com/mlop-ai/ingest/apierr"

// DataInput is one generic client data point.
//
// Example:
//
//	{"time": 1234567890, "data": "...", "step": 42, "dataType": "DATA", "logName": "training_log"}
type DataInput struct {
	Time     uint64 `json:"time"`
	Data     string `json:"data"`
	Step     uint64 `json:"step"`
	DataType string `json:"dataType"`
	LogName  string `json:"logName"`
}

// Validate checks that dataType and logName are non-blank.
func (in DataInput) Validate() error {
	if !hasText(in.DataType) {
		return apierr.New(apierr.InvalidLogFormat, "'dataType' field cannot be empty")
	}
	if !hasText(in.LogName) {
		return apierr.New(apierr.InvalidLogFormat, "'logName' field cannot be empty")
	}
	return nil
}

// Rows converts the input into exactly one enriched row. The log group is
// recomputed from the log name, never taken from the client.
func (in DataInput) Rows(e Enrichment) []DataRow {
	return []DataRow{{
		Time:        in.Time,
		Data:        in.Data,
		Step:        in.Step,
		DataType:    in.DataType,
		LogGroup:    LogGroup(in.LogName),
		LogName:     in.LogName,
		TenantID:    e.TenantID,
		RunID:       e.RunID,
		ProjectName: e.ProjectName,
	}}
}

// DataRow is one point in the mlop_data table.
type DataRow struct {
	Time     uint64 `json:"time" ch:"time"`
	Data     string `json:"data" ch:"data"`
	Step     uint64 `json:"step" ch:"step"`
	DataType string `json:"dataType" ch:"dataType"`
	LogGroup string `json:"logGroup" ch:"logGroup"`
	LogName  string `json:"logName" ch:"logName"`

	TenantID    string `json:"tenantId" ch:"tenantId"`
	RunID       uint64 `json:"runId" ch:"runId"`
	ProjectName string `json:"projectName" ch:"projectName"`
}
