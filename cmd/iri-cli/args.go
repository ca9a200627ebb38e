package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"iriclient/internal/dispatcher"
)

// parseKeyValue splits "k=v". The value may be empty and may contain "=".
func parseKeyValue(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid parameter %q: expected key=value", raw)
	}
	if strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("invalid parameter %q: empty key", raw)
	}
	return key, value, nil
}

// pathParams parses --path-param values. A repeated key keeps the last value.
func pathParams(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, item := range raw {
		k, v, err := parseKeyValue(item)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// queryParams parses --query values. A repeated key becomes a list.
func queryParams(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, item := range raw {
		k, v, err := parseKeyValue(item)
		if err != nil {
			return nil, err
		}
		switch prev := out[k].(type) {
		case nil:
			out[k] = v
		case string:
			out[k] = []string{prev, v}
		case []string:
			out[k] = append(prev, v)
		}
	}
	return out, nil
}

// bodyFlags are the mutually exclusive ways to supply a request body.
type bodyFlags struct {
	json string
	file string
}

// load returns the decoded body, or nil when neither flag is set. "-" as the
// file reads stdin.
func (b bodyFlags) load(stdin io.Reader) (any, error) {
	if b.json != "" && b.file != "" {
		return nil, errors.New("--body-json and --body-file are mutually exclusive")
	}

	var data []byte
	switch {
	case b.json != "":
		data = []byte(b.json)
	case b.file == "-":
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
	case b.file != "":
		var err error
		if data, err = os.ReadFile(b.file); err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
	default:
		return nil, nil
	}

	body, err := dispatcher.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body == nil {
		return nil, errors.New("request body is empty")
	}
	return body, nil
}

// writeJSON prints v indented, or on one line when compact is set.
func writeJSON(w io.Writer, v any, compact bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
