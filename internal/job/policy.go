package job

import (
	"net/http"
	"slices"

	"iriclient/internal/apperrors"
)

// PollPolicy decides which status poll failures end the run. Anything it
// does not mark fatal is retried on the next attempt.
type PollPolicy struct {
	// FatalStatusCodes lists HTTP statuses that mean further polling is
	// pointless, such as 404 for a job the server no longer knows.
	FatalStatusCodes []int
}

// DefaultPollPolicy treats authentication failures and unknown jobs as fatal.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{FatalStatusCodes: []int{
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
	}}
}

// IsFatal classifies a poll failure. Local failures (unknown operation,
// missing parameters) repeat identically on every attempt and are fatal.
// Transport and decode failures are transient.
func (p PollPolicy) IsFatal(err error) bool {
	if err == nil || apperrors.IsTransient(err) {
		return false
	}
	if apperrors.IsLocal(err) {
		return true
	}
	if status, ok := apperrors.StatusCode(err); ok {
		return slices.Contains(p.FatalStatusCodes, status)
	}
	return false
}
