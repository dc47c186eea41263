// Package stream decodes newline-delimited byte streams with memory
// bounded by the longest line, not the stream length.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/mlop-ai/ingest/apierr"
)

// Characters trimmed from both ends of every line.
const lineCutset = " \t\r\n"

// LineFunc handles one decoded line. The slice is freshly allocated per
// line, so the handler may mutate it in place (simd-style JSON parsers do;
// encoding/json does not need to, the copy is the throughput trade-off).
type LineFunc func(line []byte) error

// Decode reads r until EOF and calls fn once per non-empty trimmed line.
// Bytes after the final newline are handed to fn as a last line. A read
// failure is reported as a STREAM_PROCESSING_ERROR; an error from fn stops
// the stream and is returned unchanged.
func Decode(r io.Reader, fn LineFunc) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return apierr.Newf(apierr.StreamProcessingError,
				"Failed to read stream chunk: %v", err)
		}

		trimmed := bytes.Trim(line, lineCutset)
		if len(trimmed) > 0 {
			if fnErr := fn(trimmed); fnErr != nil {
				return fnErr
			}
		}

		if err != nil { // io.EOF, after the trailing line was handled
			return nil
		}
	}
}
