// Package observability provides OpenTelemetry metrics exported in
// Prometheus format.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrOperation = "operation"
	attrMethod    = "method"
	attrStatus    = "status"
	attrState     = "state"
	attrOutcome   = "outcome"
	attrEventType = "event_type"
)

func operationAttr(id string) attribute.KeyValue {
	return attribute.String(attrOperation, id)
}

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

// statusAttr groups status codes to keep cardinality low: 200 -> 2xx.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

// stateAttr keeps the known job states and folds anything else into "other",
// since the server may report arbitrary strings.
func stateAttr(state string) attribute.KeyValue {
	switch s := strings.ToLower(strings.TrimSpace(state)); s {
	case "queued", "pending", "running", "completed", "failed", "canceled":
		return attribute.String(attrState, s)
	case "":
		return attribute.String(attrState, "unknown")
	default:
		return attribute.String(attrState, "other")
	}
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func eventTypeAttr(t string) attribute.KeyValue {
	return attribute.String(attrEventType, t)
}
