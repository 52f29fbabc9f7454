package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Kind is the resource type behind an endpoint
type Kind string

const (
	KindTransport Kind = "transport" // local daemon or cloud API
	KindModel     Kind = "model"     // model instance behind a runtime
)

func (k Kind) Valid() bool {
	return k == KindTransport || k == KindModel
}

// Probe strategy names accepted in the "probe" field
const (
	ProbeHTTP   = "http"
	ProbeTCP    = "tcp"
	ProbeOllama = "ollama"
	ProbeStatic = "static"
)

var (
	ErrMissingID      = errors.New("missing id")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrInvalidKind    = errors.New("invalid kind")
	ErrMissingAddress = errors.New("missing address")
	ErrInvalidProbe   = errors.New("unknown probe strategy")
	ErrInvalidValue   = errors.New("invalid value")
)

// Descriptor describes one endpoint. Descriptors are immutable once they
// are part of a Registry; accessors hand out copies.
type Descriptor struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Address      string             `yaml:"address" json:"address"`
	Kind         Kind               `yaml:"kind" json:"kind"`
	Probe        string             `yaml:"probe" json:"probe,omitempty"`
	Model        string             `yaml:"model" json:"model,omitempty"`
	Capabilities []string           `yaml:"capabilities" json:"capabilities"`
	Affinity     map[string]float64 `yaml:"affinity" json:"affinity,omitempty"`
	Priority     int                `yaml:"priority" json:"priority"` // lower is preferred
	Fallback     int                `yaml:"fallback" json:"fallback"`
	Version      string             `yaml:"version" json:"version,omitempty"`
}

// ProbeStrategy returns the configured probe strategy, defaulting to
// "ollama" for models and "http" for everything else.
func (d Descriptor) ProbeStrategy() string {
	if d.Probe != "" {
		return d.Probe
	}
	if d.Kind == KindModel {
		return ProbeOllama
	}
	return ProbeHTTP
}

// HasCapability reports whether the descriptor declares the named capability.
func (d Descriptor) HasCapability(name string) bool {
	return slices.Contains(d.Capabilities, name)
}

// DisplayName is Name, or the ID if no name was configured.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Validate checks a single descriptor in isolation. Duplicate ids are
// checked by the Registry.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidKind, d.Kind)
	}

	switch d.ProbeStrategy() {
	case ProbeHTTP, ProbeTCP, ProbeOllama:
		if d.Address == "" {
			return ErrMissingAddress
		}
	case ProbeStatic:
	default:
		return fmt.Errorf("%w %q", ErrInvalidProbe, d.Probe)
	}

	if d.ProbeStrategy() == ProbeOllama && d.Model == "" {
		return fmt.Errorf("%w: ollama probe needs a model name", ErrInvalidValue)
	}

	for name, strength := range d.Affinity {
		if strength < 0 || strength > 1 {
			return fmt.Errorf("%w: affinity %q must be between 0 and 1, got %v", ErrInvalidValue, name, strength)
		}
	}

	return nil
}

func (d Descriptor) clone() Descriptor {
	d.Capabilities = slices.Clone(d.Capabilities)
	d.Affinity = maps.Clone(d.Affinity)
	return d
}

// EntryError is a rejected registry entry.
type EntryError struct {
	Index int
	ID    string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("registry entry %d (%q): %v", e.Index, e.ID, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
