package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type registryFile struct {
	Endpoints []Descriptor `yaml:"endpoints"`
}

// Parse decodes a YAML registry document. Unknown keys are ignored. A
// document that can't be decoded at all returns a nil Registry; rejected
// entries are reported in the error next to a usable Registry.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return New(f.Endpoints...)
}

// Load reads and parses the registry file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return Parse(data)
}
