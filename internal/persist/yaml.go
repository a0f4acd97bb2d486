package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	_ yaml.Marshaler   = &Record{}
	_ yaml.Unmarshaler = &Record{}
)

// MarshalYAML writes the record as a flat tag mapping
func (r *Record) MarshalYAML() (any, error) {
	return r.Values(), nil
}

// UnmarshalYAML replaces the record's values with a decoded tag mapping
func (r *Record) UnmarshalYAML(node *yaml.Node) error {
	values := map[string]any{}
	if err := node.Decode(&values); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = values
	return nil
}

// LoadYAML reads a record from a YAML document
func LoadYAML(path string) (*Record, error) {
	// #nosec G304 -- the path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", path, err)
	}

	record := NewRecord()
	if err := yaml.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	return record, nil
}

// SaveYAML writes a record as a YAML document, creating parent directories
func SaveYAML(path string, record *Record) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write record %s: %w", path, err)
	}
	return nil
}
