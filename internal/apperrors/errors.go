// Package apperrors provides the typed failures returned by catalog resolution,
// parameter binding, request execution and the job lifecycle driver.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrUnknownOperation      = errors.New("unknown operation")
	ErrMissingPathParameter  = errors.New("missing path parameter")
	ErrMissingQueryParameter = errors.New("missing query parameter")
	ErrMissingBody           = errors.New("missing request body")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidCatalog        = errors.New("invalid catalog")
	ErrTransport             = errors.New("transport error")
	ErrHTTPStatus            = errors.New("http error")
	ErrDecode                = errors.New("decode error")
	ErrResponseTooLarge      = errors.New("response too large")
	ErrInvalidLaunchResponse = errors.New("invalid launch response")
)

// Error provides structured error with context.
type Error struct {
	Sentinel   error  // Wrapped sentinel for errors.Is() classification
	Message    string // Human-readable message
	Operation  string // Operation id the failure belongs to (e.g., "getJob")
	Parameter  string // For binding errors (e.g., "job_id")
	StatusCode int    // For HTTP errors
	Body       []byte // Raw response body for HTTP and decode errors
	Cause      error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches either (e.g., ErrTransport and context.DeadlineExceeded).
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// UnknownOperation reports an operation id that is not in the catalog.
func UnknownOperation(operationID string) error {
	return &Error{
		Sentinel:  ErrUnknownOperation,
		Message:   fmt.Sprintf("unknown operation %q", operationID),
		Operation: operationID,
	}
}

// MissingPathParameter reports a path placeholder with no bound value.
func MissingPathParameter(operationID, name string) error {
	return &Error{
		Sentinel:  ErrMissingPathParameter,
		Message:   fmt.Sprintf("missing required path parameter %q for operation %q", name, operationID),
		Operation: operationID,
		Parameter: name,
	}
}

// MissingQueryParameter reports a required query parameter with no value.
func MissingQueryParameter(operationID, name string) error {
	return &Error{
		Sentinel:  ErrMissingQueryParameter,
		Message:   fmt.Sprintf("missing required query parameter %q for operation %q", name, operationID),
		Operation: operationID,
		Parameter: name,
	}
}

// MissingBody reports an operation that requires a body but got none.
func MissingBody(operationID string) error {
	return &Error{
		Sentinel:  ErrMissingBody,
		Message:   fmt.Sprintf("operation %q requires a request body", operationID),
		Operation: operationID,
	}
}

// InvalidRequest reports a request that cannot be built (bad method, URL or body).
func InvalidRequest(operationID, message string, cause error) error {
	msg := message
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", message, cause)
	}
	return &Error{
		Sentinel:  ErrInvalidRequest,
		Message:   msg,
		Operation: operationID,
		Cause:     cause,
	}
}

// InvalidCatalog reports a catalog definition that failed validation.
func InvalidCatalog(operationID, message string) error {
	msg := message
	if operationID != "" {
		msg = fmt.Sprintf("operation %q: %s", operationID, message)
	}
	return &Error{
		Sentinel:  ErrInvalidCatalog,
		Message:   msg,
		Operation: operationID,
	}
}

// Transport wraps a connection-level failure (DNS, TLS, timeout, refusal).
func Transport(operationID string, cause error) error {
	return &Error{
		Sentinel:  ErrTransport,
		Message:   fmt.Sprintf("request failed: %v", cause),
		Operation: operationID,
		Cause:     cause,
	}
}

// HTTPStatus reports a non-success response. The body is kept verbatim.
func HTTPStatus(operationID string, status int, body []byte) error {
	return &Error{
		Sentinel:   ErrHTTPStatus,
		Message:    fmt.Sprintf("server returned status %d: %s", status, body),
		Operation:  operationID,
		StatusCode: status,
		Body:       body,
	}
}

// Decode reports a response body that is not valid JSON.
func Decode(operationID string, body []byte, cause error) error {
	return &Error{
		Sentinel:  ErrDecode,
		Message:   fmt.Sprintf("failed to parse JSON: %v", cause),
		Operation: operationID,
		Body:      body,
		Cause:     cause,
	}
}

// ResponseTooLarge reports a response body over the executor's size limit.
func ResponseTooLarge(operationID string, status int, limit int64) error {
	return &Error{
		Sentinel:   ErrResponseTooLarge,
		Message:    fmt.Sprintf("response body with status %d exceeds %d bytes", status, limit),
		Operation:  operationID,
		StatusCode: status,
	}
}

// InvalidLaunchResponse reports a launch response without a usable job id.
func InvalidLaunchResponse(operationID, field string, payload any) error {
	return &Error{
		Sentinel:  ErrInvalidLaunchResponse,
		Message:   fmt.Sprintf("%s did not return a valid job id in field %q: %v", operationID, field, payload),
		Operation: operationID,
		Parameter: field,
	}
}
