package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"iriclient/internal/apperrors"

	"gopkg.in/yaml.v3"
)

// document is the on-disk catalog format.
type document struct {
	ServerURL  string      `yaml:"server_url"`
	Operations []Operation `yaml:"operations"`
}

// Load parses a YAML catalog document.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, apperrors.InvalidCatalog("", "catalog document is empty")
		}
		return nil, apperrors.InvalidCatalog("", fmt.Sprintf("failed to parse catalog: %v", err))
	}
	return New(doc.ServerURL, doc.Operations)
}

// LoadFile parses the YAML catalog at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

//go:embed iri.yaml
var defaultDocument []byte

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return Load(bytes.NewReader(defaultDocument))
})

// Default returns the bundled IRI facility API catalog.
func Default() (*Catalog, error) {
	return defaultCatalog()
}
