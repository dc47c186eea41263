package ingest

import (
	"encoding/json"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/mlop-ai/ingest/apierr"
	"github.com/mlop-ai/ingest/auth"
	"github.com/mlop-ai/ingest/metrics"
	"github.com/mlop-ai/ingest/objstore"
	"github.com/mlop-ai/ingest/schema"
)

// FileUploadRequest asks for presigned upload URLs for a set of files.
type FileUploadRequest struct {
	Files []FileUploadInfo `json:"files"`
}

// FileUploadInfo describes one file to be uploaded.
type FileUploadInfo struct {
	FileName string          `json:"fileName"`
	LogName  string          `json:"logName"`
	FileSize uint64          `json:"fileSize"`
	FileType schema.FileType `json:"fileType"`
	Step     uint64          `json:"step"`
	Time     uint64          `json:"time"`
}

// FilesHandler records file metadata through the files batcher channel and
// vends presigned upload URLs.
type FilesHandler struct {
	Resolver auth.Resolver
	Signer   objstore.Signer
	// Out feeds the files batcher.
	Out chan<- schema.FilesRow
}

// ServeHTTP handles POST /files. Metadata rows are enqueued first, in
// request order; the presigned URLs are then generated concurrently and
// grouped by logName:
//
//	{"<logName>": [{"<fileName>": "<url>"}, ...], ...}
func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := auth.Authorize(ctx, r.Header, h.Resolver)
	if err != nil {
		writeError(w, "files", err)
		return
	}
	enrichment, err := schema.EnrichmentFromHeaders(tenantID, r.Header)
	if err != nil {
		writeError(w, "files", err)
		return
	}

	var payload FileUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "files", apierr.Newf(apierr.InvalidJSONFormat, "JSON parsing failed: %v", err))
		return
	}

	// Metadata first: each file becomes one row in mlop_files. The stored
	// file type is the canonical extension (empty for custom MIME types).
	for _, file := range payload.Files {
		input := schema.FileInput{
			LogName:  file.LogName,
			FileName: file.FileName,
			FileType: file.FileType.Extension(),
			Time:     file.Time,
			Step:     file.Step,
			FileSize: file.FileSize,
		}
		rows := input.Rows(enrichment)
		for i := range rows {
			select {
			case h.Out <- rows[i]:
			case <-ctx.Done():
				writeError(w, "files", apierr.New(apierr.InternalError,
					"Failed to send file record to processor"))
				return
			}
		}
		metrics.RowsIngested.WithLabelValues(schema.FilesTable).Add(float64(len(rows)))
	}

	urls := make([]string, len(payload.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i := range payload.Files {
		i, file := i, payload.Files[i]
		g.Go(func() error {
			key := objstore.ObjectKey(enrichment, file.LogName, file.FileName)
			url, err := h.Signer.SignPut(gctx, key, file.FileType.MIME(), int64(file.FileSize))
			if err != nil {
				metrics.PresignCount.WithLabelValues("error").Inc()
				return err
			}
			metrics.PresignCount.WithLabelValues("ok").Inc()
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, "files", err)
		return
	}

	// Group by logName, preserving request order within each group.
	grouped := make(map[string][]map[string]string)
	for i, file := range payload.Files {
		grouped[file.LogName] = append(grouped[file.LogName],
			map[string]string{file.FileName: urls[i]})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(grouped)
}
