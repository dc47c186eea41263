package schema

import "github.com/mlop-ai/ingest/apierr"

// LogInput is one client log line.
//
// Example:
//
//	{"time": 1234567890, "message": "Training started", "lineNumber": 42, "logType": "INFO"}
type LogInput struct {
	Time       uint64 `json:"time"`
	Message    string `json:"message"`
	LineNumber uint64 `json:"lineNumber"`
	LogType    string `json:"logType"`
}

// Validate checks that logType is non-blank. Empty messages are allowed.
func (in LogInput) Validate() error {
	if !hasText(in.LogType) {
		return apierr.New(apierr.InvalidLogFormat, "'logType' field cannot be empty")
	}
	return nil
}

// Rows converts the input into exactly one enriched row.
func (in LogInput) Rows(e Enrichment) []LogRow {
	return []LogRow{{
		Time:        in.Time,
		Message:     in.Message,
		LineNumber:  in.LineNumber,
		LogType:     in.LogType,
		TenantID:    e.TenantID,
		RunID:       e.RunID,
		ProjectName: e.ProjectName,
	}}
}

// LogRow is one line in the mlop_logs table.
type LogRow struct {
	Time       uint64 `json:"time" ch:"time"`
	Message    string `json:"message" ch:"message"`
	LineNumber uint64 `json:"lineNumber" ch:"lineNumber"`
	LogType    string `json:"logType" ch:"logType"`

	TenantID    string `json:"tenantId" ch:"tenantId"`
	RunID       uint64 `json:"runId" ch:"runId"`
	ProjectName string `json:"projectName" ch:"projectName"`
}
