package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlop-ai/ingest/apierr"
	"github.com/mlop-ai/ingest/ingest"
	"github.com/mlop-ai/ingest/schema"
)

type fakeSigner struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeSigner) SignPut(ctx context.Context, key, contentType string, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://signed.example.com/" + key, nil
}

func filesRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/files", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set(schema.RunIDHeader, "42")
	req.Header.Set(schema.ProjectNameHeader, "mnist")
	return req
}

func drainFilesRows(ch chan schema.FilesRow) []schema.FilesRow {
	var rows []schema.FilesRow
	for {
		select {
		case row := <-ch:
			rows = append(rows, row)
		default:
			return rows
		}
	}
}

func TestFilesHandler(t *testing.T) {
	out := make(chan schema.FilesRow, 100)
	signer := &fakeSigner{}
	handler := &ingest.FilesHandler{Resolver: newResolver(), Signer: signer, Out: out}

	body := `{"files": [
		{"fileName": "cat.png", "logName": "images", "fileSize": 1024, "fileType": "png", "step": 1, "time": 100},
		{"fileName": "dog.png", "logName": "images", "fileSize": 2048, "fileType": "PNG", "step": 1, "time": 100},
		{"fileName": "notes.txt", "logName": "text", "fileSize": 64, "fileType": "txt", "step": 2, "time": 101}
	]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, filesRequest(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// URLs come back grouped by logName, ordered as requested.
	var grouped map[string][]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grouped))
	want := map[string][]map[string]string{
		"images": {
			{"cat.png": "https://signed.example.com/tenant-1/mnist/42/images/cat.png"},
			{"dog.png": "https://signed.example.com/tenant-1/mnist/42/images/dog.png"},
		},
		"text": {
			{"notes.txt": "https://signed.example.com/tenant-1/mnist/42/text/notes.txt"},
		},
	}
	if diff := deep.Equal(grouped, want); diff != nil {
		t.Error(diff)
	}

	// Each file also produced one metadata row carrying the canonical
	// extension.
	rows := drainFilesRows(out)
	require.Len(t, rows, 3)
	assert.Equal(t, "png", rows[0].FileType)
	assert.Equal(t, "png", rows[1].FileType)
	assert.Equal(t, "txt", rows[2].FileType)
	assert.Equal(t, "", rows[0].LogGroup)
	assert.Equal(t, "images", rows[0].LogName)
	assert.Equal(t, uint64(1024), rows[0].FileSize)
	assert.Equal(t, "tenant-1", rows[0].TenantID)
}

// Custom MIME types presign with the client's type and store an empty
// extension.
func TestFilesHandlerCustomType(t *testing.T) {
	out := make(chan schema.FilesRow, 100)
	signer := &fakeSigner{}
	handler := &ingest.FilesHandler{Resolver: newResolver(), Signer: signer, Out: out}

	body := `{"files": [
		{"fileName": "weights.npz", "logName": "models", "fileSize": 4096,
		 "fileType": {"custom": "application/x-npz"}, "step": 3, "time": 102}
	]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, filesRequest(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := drainFilesRows(out)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].FileType)
}

func TestFilesHandlerBadJSON(t *testing.T) {
	out := make(chan schema.FilesRow, 100)
	handler := &ingest.FilesHandler{Resolver: newResolver(), Signer: &fakeSigner{}, Out: out}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, filesRequest(`{"files": [`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apierr.InvalidJSONFormat))
	assert.Empty(t, drainFilesRows(out))
}

func TestFilesHandlerSignerError(t *testing.T) {
	out := make(chan schema.FilesRow, 100)
	signer := &fakeSigner{err: errors.New("bucket gone")}
	handler := &ingest.FilesHandler{Resolver: newResolver(), Signer: signer, Out: out}

	body := `{"files": [{"fileName": "cat.png", "logName": "images", "fileSize": 1, "fileType": "png"}]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, filesRequest(body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFilesHandlerUnauthorized(t *testing.T) {
	out := make(chan schema.FilesRow, 100)
	handler := &ingest.FilesHandler{Resolver: newResolver(), Signer: &fakeSigner{}, Out: out}

	req := filesRequest(`{"files": []}`)
	req.Header.Del("Authorization")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apierr.MissingToken))
}
