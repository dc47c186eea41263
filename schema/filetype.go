package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mlop-ai/ingest/apierr"
)

// FileType classifies an uploaded file. It is either one of the known
// extensions below, or a custom MIME type supplied by the client.
//
// In JSON it is either a bare extension string, matched case-insensitively
// ("png", "TFLITE"), or an object {"custom": "<mime>"}. Unknown strings are
// preserved as custom types.
type FileType struct {
	ext  string // canonical extension; empty for custom types
	mime string
}

// Known extensions and their MIME types.
var mimeByExt = map[string]string{
	// Images
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
	// Videos
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	// Audio
	"mp3": "audio/mpeg",
	"wav": "audio/x-wav",
	"ogg": "audio/ogg",
	// Documents
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"txt":  "text/plain",
	// Data
	"json": "application/json",
	"csv":  "text/csv",
	"xml":  "application/xml",
	"yaml": "application/x-yaml",
	// ML specific
	"onnx":       "application/octet-stream",
	"pkl":        "application/octet-stream",
	"h5":         "application/x-hdf5",
	"tflite":     "application/octet-stream",
	"savedmodel": "application/octet-stream",
	"pt":         "application/octet-stream",
	"ckpt":       "application/octet-stream",
}

// FileTypeFromString resolves s case-insensitively against the known
// extensions, falling back to a custom type that preserves s verbatim.
// "yml" is an alias for "yaml".
func FileTypeFromString(s string) FileType {
	key := strings.ToLower(s)
	if key == "yml" {
		key = "yaml"
	}
	if mime, ok := mimeByExt[key]; ok {
		return FileType{ext: key, mime: mime}
	}
	return CustomFileType(s)
}

// CustomFileType returns a FileType carrying an arbitrary MIME type.
func CustomFileType(mime string) FileType {
	return FileType{mime: mime}
}

// MIME returns the MIME type. For custom types this is the stored string
// verbatim.
func (t FileType) MIME() string {
	return t.mime
}

// Extension returns the canonical extension, or "" for custom types.
func (t FileType) Extension() string {
	return t.ext
}

// IsCustom reports whether the type is outside the known enumeration.
func (t FileType) IsCustom() bool {
	return t.ext == ""
}

// MarshalJSON emits known types as their extension string and custom types
// as {"custom": "<mime>"}.
func (t FileType) MarshalJSON() ([]byte, error) {
	if t.IsCustom() {
		return json.Marshal(struct {
			Custom string `json:"custom"`
		}{Custom: t.mime})
	}
	return json.Marshal(t.ext)
}

// UnmarshalJSON accepts a bare string or a {"custom": "<mime>"} object.
func (t *FileType) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var custom struct {
			Custom string `json:"custom"`
		}
		if err := json.Unmarshal(data, &custom); err != nil {
			return apierr.Newf(apierr.InvalidJSONFormat, "invalid file type object: %v", err)
		}
		*t = CustomFileType(custom.Custom)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return apierr.Newf(apierr.InvalidJSONFormat, "invalid file type: %v", err)
	}
	*t = FileTypeFromString(s)
	return nil
}

// String implements fmt.Stringer for logging.
func (t FileType) String() string {
	if t.IsCustom() {
		return fmt.Sprintf("custom(%s)", t.mime)
	}
	return t.ext
}
