// Package schema defines the row family written to the column store: the
// client input records, the per-request enrichment, and the enriched rows
// for each of the four stream types.
package schema

import "strings"

// Column store table names, one per row type.
const (
	MetricsTable = "mlop_metrics"
	LogsTable    = "mlop_logs"
	DataTable    = "mlop_data"
	FilesTable   = "mlop_files"
)

// Input is one decoded NDJSON record prior to enrichment.
type Input interface {
	Validate() error
}

// LogGroup derives the group of a log name: the path prefix before the
// last '/', or "" when the name has no '/'.
//
//	LogGroup("val/epoch/loss") == "val/epoch"
//	LogGroup("loss") == ""
func LogGroup(logName string) string {
	i := strings.LastIndex(logName, "/")
	if i < 0 {
		return ""
	}
	return logName[:i]
}

// hasText reports whether s is non-empty after trimming whitespace.
func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
