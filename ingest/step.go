package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/mlop-ai/ingest/auth"
	"github.com/mlop-ai/ingest/ch"
	"github.com/mlop-ai/ingest/schema"
)

// StepResponse reports the largest recorded metric step of a run.
type StepResponse struct {
	Step uint64 `json:"step"`
}

// StepHandler answers POST /step with one synchronous point query against
// the metrics table.
type StepHandler struct {
	Resolver auth.Resolver
	Conn     ch.Querier
}

func (h *StepHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := auth.Authorize(ctx, r.Header, h.Resolver)
	if err != nil {
		writeError(w, "step", err)
		return
	}
	enrichment, err := schema.EnrichmentFromHeaders(tenantID, r.Header)
	if err != nil {
		writeError(w, "step", err)
		return
	}

	step, err := ch.MaxStep(ctx, h.Conn, enrichment)
	if err != nil {
		writeError(w, "step", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StepResponse{Step: step})
}
