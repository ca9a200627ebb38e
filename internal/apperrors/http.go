package apperrors

import (
	"errors"
	"net/http"
)

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && errors.Is(appErr.Sentinel, ErrHTTPStatus) {
		return appErr.StatusCode, true
	}
	return 0, false
}

// ResponseBody returns the raw response body carried by an HTTP or decode error.
func ResponseBody(err error) []byte {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Body
	}
	return nil
}

// IsTransient returns true for connection-level failures that are worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsClientError returns true for 4xx responses.
func IsClientError(err error) bool {
	status, ok := StatusCode(err)
	return ok && status >= http.StatusBadRequest && status < http.StatusInternalServerError
}

// IsLocal returns true for failures raised before any network activity.
func IsLocal(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownOperation),
		errors.Is(err, ErrMissingPathParameter),
		errors.Is(err, ErrMissingQueryParameter),
		errors.Is(err, ErrMissingBody),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidCatalog):
		return true
	default:
		return false
	}
}
