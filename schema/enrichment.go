package schema

import (
	"net/http"
	"strconv"

	"github.com/mlop-ai/ingest/apierr"
)

// Request headers carrying the run context.
const (
	RunIDHeader       = "X-Run-Id"
	ProjectNameHeader = "X-Project-Name"
)

// Enrichment is the tenant/run/project triple attached to every row. It is
// derived once per request and combined with each input record.
type Enrichment struct {
	TenantID    string
	RunID       uint64
	ProjectName string
}

// EnrichmentFromHeaders derives the enrichment for an authenticated tenant
// from request headers. Both headers are required. A present but
// unparseable X-Run-Id yields run ID 0 rather than an error.
func EnrichmentFromHeaders(tenantID string, h http.Header) (Enrichment, error) {
	rawRunID := h.Get(RunIDHeader)
	if rawRunID == "" {
		return Enrichment{}, apierr.MissingHeader(RunIDHeader)
	}
	// Every parse failure falls back to zero, including out-of-range
	// values, where ParseUint would otherwise hand back MaxUint64.
	runID, err := strconv.ParseUint(rawRunID, 10, 64)
	if err != nil {
		runID = 0
	}

	projectName := h.Get(ProjectNameHeader)
	if projectName == "" {
		return Enrichment{}, apierr.MissingHeader(ProjectNameHeader)
	}

	return Enrichment{
		TenantID:    tenantID,
		RunID:       runID,
		ProjectName: projectName,
	}, nil
}
