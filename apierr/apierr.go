// Package apierr defines the error taxonomy shared across the gateway,
// and the mapping from error kinds to HTTP status codes and response
// bodies.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one error kind. The string form is what clients see in
// the "code" field of an error response.
type Code string

// Authentication and authorization errors.
const (
	AuthenticationFailed    = Code("AUTHENTICATION_FAILED")
	InvalidToken            = Code("INVALID_TOKEN")
	MissingToken            = Code("MISSING_TOKEN")
	MissingTenantID         = Code("MISSING_TENANT_ID")
	TokenExpired            = Code("TOKEN_EXPIRED")
	InvalidTokenFormat      = Code("INVALID_TOKEN_FORMAT")
	InvalidBearerFormat     = Code("INVALID_BEARER_FORMAT")
	InsufficientPermissions = Code("INSUFFICIENT_PERMISSIONS")
)

// Input validation errors.
const (
	InvalidInput         = Code("INVALID_INPUT")
	MissingRequiredField = Code("MISSING_REQUIRED_FIELD")
	InvalidJSONFormat    = Code("INVALID_JSON_FORMAT")
	InvalidHeaderFormat  = Code("INVALID_HEADER_FORMAT")
	InvalidMetricFormat  = Code("INVALID_METRIC_FORMAT")
	InvalidLogFormat     = Code("INVALID_LOG_FORMAT")
	InvalidTimestamp     = Code("INVALID_TIMESTAMP")
	InvalidStepValue     = Code("INVALID_STEP_VALUE")
)

// Processing errors.
const (
	ProcessingFailed        = Code("PROCESSING_FAILED")
	StreamProcessingError   = Code("STREAM_PROCESSING_ERROR")
	BatchProcessingError    = Code("BATCH_PROCESSING_ERROR")
	StreamDecodingError     = Code("STREAM_DECODING_ERROR")
	DataTransformationError = Code("DATA_TRANSFORMATION_ERROR")
	BufferOverflowError     = Code("BUFFER_OVERFLOW_ERROR")
)

// Database errors.
const (
	DatabaseError       = Code("DATABASE_ERROR")
	InsertFailed        = Code("INSERT_FAILED")
	ConnectionFailed    = Code("CONNECTION_FAILED")
	QueryFailed         = Code("QUERY_FAILED")
	DatabaseTimeout     = Code("DATABASE_TIMEOUT")
	BatchInsertFailed   = Code("BATCH_INSERT_FAILED")
	DatabaseUnavailable = Code("DATABASE_UNAVAILABLE")
)

// System errors.
const (
	InternalError      = Code("INTERNAL_ERROR")
	ServiceUnavailable = Code("SERVICE_UNAVAILABLE")
	ConfigurationError = Code("CONFIGURATION_ERROR")
	ResourceExhausted  = Code("RESOURCE_EXHAUSTED")
	RateLimitExceeded  = Code("RATE_LIMIT_EXCEEDED")
	ServiceOverloaded  = Code("SERVICE_OVERLOADED")
)

// Status returns the HTTP status code for the error kind. Every code maps
// to exactly one status.
func (c Code) Status() int {
	switch c {
	case AuthenticationFailed, InvalidToken, MissingToken, MissingTenantID,
		TokenExpired, InvalidTokenFormat, InvalidBearerFormat:
		return http.StatusUnauthorized
	case InsufficientPermissions:
		return http.StatusForbidden
	case InvalidInput, MissingRequiredField, InvalidJSONFormat,
		InvalidHeaderFormat, InvalidMetricFormat, InvalidLogFormat,
		InvalidTimestamp, InvalidStepValue:
		return http.StatusBadRequest
	case ProcessingFailed, StreamProcessingError, BatchProcessingError,
		StreamDecodingError, DataTransformationError, BufferOverflowError:
		return http.StatusUnprocessableEntity
	case DatabaseError, InsertFailed, ConnectionFailed, QueryFailed,
		BatchInsertFailed, DatabaseUnavailable:
		return http.StatusServiceUnavailable
	case DatabaseTimeout:
		return http.StatusGatewayTimeout
	case InternalError, ConfigurationError:
		return http.StatusInternalServerError
	case ServiceUnavailable, ServiceOverloaded:
		return http.StatusServiceUnavailable
	case ResourceExhausted, RateLimitExceeded:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// An Error carries an error kind, a human readable message, and optional
// structured details. It serializes directly as the HTTP error body.
type Error struct {
	Code    Code            `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// New returns an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf returns an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches a JSON details payload to the error.
func (e *Error) WithDetails(details json.RawMessage) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MissingHeader reports a required header that was absent from a request.
func MissingHeader(name string) *Error {
	return Newf(InvalidHeaderFormat, "Missing required header: %s", name)
}

// From converts an arbitrary error to an *Error. Errors that are not part
// of the taxonomy are reported as INTERNAL_ERROR.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(InternalError, err.Error())
}

// Write sends err to the client as a JSON error body with the status code
// of its kind.
func Write(w http.ResponseWriter, err error) {
	appErr := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code.Status())
	// Encoding a flat struct cannot fail; ignore the error.
	_ = json.NewEncoder(w).Encode(appErr)
}
