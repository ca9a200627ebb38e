package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Job status values reported by the compute API.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Spec is the launch request body for a PSI/J style job description.
type Spec struct {
	Executable         string            `json:"executable"`
	Arguments          []string          `json:"arguments"`
	Directory          string            `json:"directory,omitempty"`
	Name               string            `json:"name,omitempty"`
	InheritEnvironment bool              `json:"inherit_environment"`
	Environment        map[string]string `json:"environment,omitempty"`
	StdinPath          string            `json:"stdin_path,omitempty"`
	StdoutPath         string            `json:"stdout_path,omitempty"`
	StderrPath         string            `json:"stderr_path,omitempty"`
	Resources          *Resources        `json:"resources,omitempty"`
	Attributes         *Attributes       `json:"attributes,omitempty"`
	PreLaunch          string            `json:"pre_launch,omitempty"`
	PostLaunch         string            `json:"post_launch,omitempty"`
	Launcher           string            `json:"launcher,omitempty"`
}

// Resources describes the requested allocation.
type Resources struct {
	NodeCount          int   `json:"node_count,omitempty"`
	ProcessCount       int   `json:"process_count,omitempty"`
	ProcessesPerNode   int   `json:"processes_per_node,omitempty"`
	CPUCoresPerProcess int   `json:"cpu_cores_per_process,omitempty"`
	GPUCoresPerProcess int   `json:"gpu_cores_per_process,omitempty"`
	ExclusiveNodeUse   bool  `json:"exclusive_node_use"`
	Memory             int64 `json:"memory,omitempty"`
}

// Attributes carries scheduler settings.
type Attributes struct {
	Duration         int               `json:"duration,omitempty"`
	QueueName        string            `json:"queue_name,omitempty"`
	Account          string            `json:"account,omitempty"`
	ReservationID    string            `json:"reservation_id,omitempty"`
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
}

// Validate checks the fields the server cannot do without.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Executable) == "" {
		return errors.New("job spec: executable is required")
	}
	if r := s.Resources; r != nil {
		if r.NodeCount < 0 || r.ProcessCount < 0 || r.ProcessesPerNode < 0 ||
			r.CPUCoresPerProcess < 0 || r.GPUCoresPerProcess < 0 || r.Memory < 0 {
			return errors.New("job spec: resource counts must not be negative")
		}
	}
	if a := s.Attributes; a != nil && a.Duration < 0 {
		return errors.New("job spec: duration must not be negative")
	}
	return nil
}

// LoadSpec reads a JSON job spec. Unknown fields are rejected so typos do
// not silently drop settings.
func LoadSpec(r io.Reader) (*Spec, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("job spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Arguments == nil {
		spec.Arguments = []string{}
	}
	return &spec, nil
}

// LoadSpecFile reads a job spec from a .json, .yaml or .yml file. YAML uses
// the same field names as JSON.
func LoadSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job spec: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("job spec %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("job spec %s: %w", path, err)
		}
	}
	return LoadSpec(bytes.NewReader(data))
}

// NormalizeStatus trims and lower-cases a status value.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// StatusOf extracts the normalized job status from a getJob payload. The
// server reports it as {"status": {"state": "..."}}; a bare string status is
// accepted too. A status object without a state yields "unknown", and a
// payload with no status at all yields "".
func StatusOf(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	switch status := obj["status"].(type) {
	case map[string]any:
		state, ok := status["state"].(string)
		if !ok {
			return "unknown"
		}
		return NormalizeStatus(state)
	case string:
		return NormalizeStatus(status)
	default:
		return ""
	}
}

// JobID extracts a non-empty string job id from a launch payload.
func JobID(payload any, field string) (string, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := obj[field].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
