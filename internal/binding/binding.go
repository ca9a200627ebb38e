// Package binding turns caller-supplied parameters into a concrete HTTP
// request for a catalog operation.
//
// Binding is a pure function of its inputs. Path values are percent-encoded
// as single path segments, nil query values are omitted, and the body is
// serialized as one JSON document. Path parameters that the template does not
// reference are ignored.
package binding

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"iriclient/internal/apperrors"
	"iriclient/internal/catalog"
)

// Params holds the caller-supplied values for one call.
type Params struct {
	Path  map[string]string
	Query map[string]any
	Body  any
}

// Request is a bound, transport-ready request.
type Request struct {
	OperationID string
	Method      string
	Path        string     // rendered path, relative to the base URL
	Query       url.Values // nil when no query parameters are bound
	Body        []byte     // nil when the request has no body
}

// HasBody returns true if a body was bound.
func (r *Request) HasBody() bool {
	return r.Body != nil
}

// Bind resolves path placeholders, query parameters and body for op.
func Bind(op catalog.Operation, params Params) (*Request, error) {
	path, err := renderPath(op, params.Path)
	if err != nil {
		return nil, err
	}

	query, err := bindQuery(op, params.Query)
	if err != nil {
		return nil, err
	}

	body, err := bindBody(op, params.Body)
	if err != nil {
		return nil, err
	}

	return &Request{
		OperationID: op.ID,
		Method:      op.Method,
		Path:        path,
		Query:       query,
		Body:        body,
	}, nil
}

// Raw builds the synthetic operation used for requests that bypass the catalog.
// The path is taken literally, so braces in it are not treated as placeholders.
func Raw(method, path string) catalog.Operation {
	return catalog.Operation{
		ID:           "raw",
		Method:       strings.ToUpper(strings.TrimSpace(method)),
		PathTemplate: path,
		Body:         catalog.BodyOptional,
	}
}

func renderPath(op catalog.Operation, values map[string]string) (string, error) {
	rendered := op.PathTemplate
	for _, name := range op.PathParams {
		value, ok := values[name]
		if !ok {
			return "", apperrors.MissingPathParameter(op.ID, name)
		}
		rendered = strings.ReplaceAll(rendered, "{"+name+"}", url.PathEscape(value))
	}
	return rendered, nil
}

func bindQuery(op catalog.Operation, values map[string]any) (url.Values, error) {
	for _, p := range op.QueryParams {
		if !p.Required {
			continue
		}
		if v, ok := values[p.Name]; !ok || isNil(v) {
			return nil, apperrors.MissingQueryParameter(op.ID, p.Name)
		}
	}

	if len(values) == 0 {
		return nil, nil
	}

	query := make(url.Values, len(values))
	for key, value := range values {
		if isNil(value) {
			continue
		}
		rendered, err := queryStrings(value)
		if err != nil {
			return nil, apperrors.InvalidRequest(op.ID, fmt.Sprintf("query parameter %q", key), err)
		}
		if len(rendered) == 0 {
			continue
		}
		query[key] = rendered
	}
	if len(query) == 0 {
		return nil, nil
	}
	return query, nil
}

// queryStrings serializes one query value. Slices become repeated keys; nil
// elements inside a slice are skipped.
func queryStrings(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if isNil(item) {
				continue
			}
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	s, err := scalarString(value)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// scalarString renders strings verbatim and everything else in JSON form.
func scalarString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case fmt.Stringer:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func bindBody(op catalog.Operation, body any) ([]byte, error) {
	if isNil(body) {
		if op.Body == catalog.BodyRequired {
			return nil, apperrors.MissingBody(op.ID)
		}
		return nil, nil
	}
	if !op.AcceptsBody() {
		return nil, apperrors.InvalidRequest(op.ID, "operation does not accept a request body", nil)
	}

	if raw, ok := body.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, apperrors.InvalidRequest(op.ID, "request body is not valid JSON", nil)
		}
		return append([]byte(nil), raw...), nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.InvalidRequest(op.ID, "failed to marshal request body", err)
	}
	return data, nil
}

// isNil reports untyped nil and nil pointers, maps, slices and interfaces.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
