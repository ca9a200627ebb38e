package job

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{" COMPLETED ", "completed"},
		{"Running", "running"},
		{"", ""},
		{"\tfailed\n", "failed"},
	}
	for _, tt := range tests {
		got := NormalizeStatus(tt.in)
		if got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := NormalizeStatus(got); again != got {
			t.Errorf("NormalizeStatus(%q) = %q, not idempotent", got, again)
		}
	}
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"nested state", map[string]any{"status": map[string]any{"state": " Completed "}}, "completed"},
		{"state missing", map[string]any{"status": map[string]any{"exit_code": 0}}, "unknown"},
		{"state not a string", map[string]any{"status": map[string]any{"state": 3}}, "unknown"},
		{"bare string", map[string]any{"status": "RUNNING"}, "running"},
		{"no status", map[string]any{"id": "j"}, ""},
		{"status is a number", map[string]any{"status": json.Number("1")}, ""},
		{"not an object", []any{"completed"}, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusOf(tt.payload))
		})
	}
}

func TestJobID(t *testing.T) {
	t.Parallel()
	id, ok := JobID(map[string]any{"id": "job-123"}, "id")
	assert.True(t, ok)
	assert.Equal(t, "job-123", id)

	for _, payload := range []any{
		map[string]any{},
		map[string]any{"id": ""},
		map[string]any{"id": json.Number("42")},
		map[string]any{"job_id": "x"},
		"job-123",
		nil,
	} {
		_, ok := JobID(payload, "id")
		assert.False(t, ok, "payload %v", payload)
	}

	id, ok = JobID(map[string]any{"job_id": "x"}, "job_id")
	assert.True(t, ok)
	assert.Equal(t, "x", id)
}

func TestLoadSpec(t *testing.T) {
	t.Parallel()
	spec, err := LoadSpec(strings.NewReader(`{
		"executable": "/bin/hostname",
		"resources": {"node_count": 1},
		"attributes": {"duration": 60, "queue_name": "debug", "account": "m0000"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "/bin/hostname", spec.Executable)
	assert.Equal(t, []string{}, spec.Arguments)
	assert.Equal(t, 1, spec.Resources.NodeCount)
	assert.Equal(t, "debug", spec.Attributes.QueueName)

	body, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"arguments":[]`)
}

func TestLoadSpec_Invalid(t *testing.T) {
	t.Parallel()
	tests := []string{
		`{"arguments": ["-f"]}`,
		`{"executable": "/bin/true", "executible": "typo"}`,
		`{"executable": "/bin/true", "resources": {"node_count": -1}}`,
		`{"executable": "/bin/true", "attributes": {"duration": -5}}`,
		`not json`,
	}
	for _, in := range tests {
		_, err := LoadSpec(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestLoadSpecFile_YAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
executable: /bin/bash
arguments: ["-c", "srun hostname"]
environment:
  OMP_NUM_THREADS: "4"
resources:
  node_count: 2
attributes:
  duration: 300
  custom_attributes:
    constraint: cpu
`), 0o600))

	spec, err := LoadSpecFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "srun hostname"}, spec.Arguments)
	assert.Equal(t, "4", spec.Environment["OMP_NUM_THREADS"])
	assert.Equal(t, 2, spec.Resources.NodeCount)
	assert.Equal(t, "cpu", spec.Attributes.CustomAttributes["constraint"])
}

func TestLoadSpecFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadSpecFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
