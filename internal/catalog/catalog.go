// Package catalog provides the immutable operation registry that maps an
// operation id to its HTTP method, path template and parameter schema.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"iriclient/internal/apperrors"
)

// BodyMode declares whether an operation accepts a request body.
type BodyMode string

const (
	BodyNone     BodyMode = "none"
	BodyOptional BodyMode = "optional"
	BodyRequired BodyMode = "required"
)

// Parameter is a declared query parameter.
type Parameter struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
}

// Operation describes one catalog-registered HTTP endpoint.
type Operation struct {
	ID           string      `yaml:"operation_id"`
	Method       string      `yaml:"method"`
	PathTemplate string      `yaml:"path"`
	PathParams   []string    `yaml:"path_params,omitempty"`
	QueryParams  []Parameter `yaml:"query_params,omitempty"`
	Body         BodyMode    `yaml:"body,omitempty"`
	Summary      string      `yaml:"summary,omitempty"`
}

// AcceptsBody returns true if the operation declares an optional or required body.
func (o Operation) AcceptsBody() bool {
	return o.Body == BodyOptional || o.Body == BodyRequired
}

// clone returns a copy of o that shares no slices with it.
func (o Operation) clone() Operation {
	o.PathParams = slices.Clone(o.PathParams)
	o.QueryParams = slices.Clone(o.QueryParams)
	return o
}

// Catalog is a read-only operation registry. It is safe for concurrent use.
type Catalog struct {
	serverURL  string
	operations []Operation
	index      map[string]int
}

// New validates the operations and builds a catalog preserving definition order.
// serverURL is the default API server for the catalog and may be empty.
func New(serverURL string, operations []Operation) (*Catalog, error) {
	c := &Catalog{
		serverURL:  strings.TrimSpace(serverURL),
		operations: make([]Operation, 0, len(operations)),
		index:      make(map[string]int, len(operations)),
	}

	for _, op := range operations {
		normalized, err := normalize(op)
		if err != nil {
			return nil, err
		}
		if _, exists := c.index[normalized.ID]; exists {
			return nil, apperrors.InvalidCatalog(normalized.ID, "duplicate operation id")
		}
		c.index[normalized.ID] = len(c.operations)
		c.operations = append(c.operations, normalized)
	}

	return c, nil
}

// Resolve returns the operation registered under id.
func (c *Catalog) Resolve(id string) (Operation, error) {
	i, ok := c.index[id]
	if !ok {
		return Operation{}, apperrors.UnknownOperation(id)
	}
	return c.operations[i].clone(), nil
}

// List returns all operations in definition order.
func (c *Catalog) List() []Operation {
	out := make([]Operation, len(c.operations))
	for i, op := range c.operations {
		out[i] = op.clone()
	}
	return out
}

// Filter returns the operations whose id contains substr (case-sensitive).
// An empty substr matches everything.
func (c *Catalog) Filter(substr string) []Operation {
	var out []Operation
	for _, op := range c.operations {
		if strings.Contains(op.ID, substr) {
			out = append(out, op.clone())
		}
	}
	return out
}

// Len returns the number of operations.
func (c *Catalog) Len() int {
	return len(c.operations)
}

// ServerURL returns the catalog's default server URL, possibly empty.
func (c *Catalog) ServerURL() string {
	return c.serverURL
}

// normalize validates op and fills derived fields. The returned value shares
// no slices with the input.
func normalize(op Operation) (Operation, error) {
	op.ID = strings.TrimSpace(op.ID)
	if op.ID == "" {
		return op, apperrors.InvalidCatalog("", "operation id is required")
	}

	op.Method = strings.ToUpper(strings.TrimSpace(op.Method))
	if !validMethod(op.Method) {
		return op, apperrors.InvalidCatalog(op.ID, fmt.Sprintf("invalid HTTP method %q", op.Method))
	}

	if op.PathTemplate == "" {
		return op, apperrors.InvalidCatalog(op.ID, "path template is required")
	}
	placeholders, err := Placeholders(op.PathTemplate)
	if err != nil {
		return op, apperrors.InvalidCatalog(op.ID, err.Error())
	}

	if len(op.PathParams) == 0 {
		op.PathParams = placeholders
	} else {
		declared := slices.Clone(op.PathParams)
		slices.Sort(declared)
		found := slices.Clone(placeholders)
		slices.Sort(found)
		if !slices.Equal(declared, found) {
			return op, apperrors.InvalidCatalog(op.ID,
				fmt.Sprintf("declared path parameters %v do not match template placeholders %v", op.PathParams, placeholders))
		}
		op.PathParams = slices.Clone(op.PathParams)
	}

	seen := make(map[string]bool, len(op.QueryParams))
	for _, p := range op.QueryParams {
		if p.Name == "" {
			return op, apperrors.InvalidCatalog(op.ID, "query parameter name is required")
		}
		if seen[p.Name] {
			return op, apperrors.InvalidCatalog(op.ID, fmt.Sprintf("duplicate query parameter %q", p.Name))
		}
		seen[p.Name] = true
	}
	op.QueryParams = slices.Clone(op.QueryParams)

	switch op.Body {
	case "":
		op.Body = BodyNone
	case BodyNone, BodyOptional, BodyRequired:
	default:
		return op, apperrors.InvalidCatalog(op.ID, fmt.Sprintf("invalid body mode %q", op.Body))
	}

	return op, nil
}

// Placeholders returns the distinct {name} placeholders of a path template in
// order of first appearance.
func Placeholders(template string) ([]string, error) {
	var names []string
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')
		if open < 0 {
			if closing >= 0 {
				return nil, fmt.Errorf("unbalanced '}' in path template %q", template)
			}
			return names, nil
		}
		if closing < open {
			return nil, fmt.Errorf("unbalanced braces in path template %q", template)
		}
		name := rest[open+1 : closing]
		if name == "" || strings.ContainsAny(name, "{/") {
			return nil, fmt.Errorf("invalid placeholder %q in path template %q", name, template)
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
		rest = rest[closing+1:]
	}
}

func validMethod(method string) bool {
	if method == "" {
		return false
	}
	for _, r := range method {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
