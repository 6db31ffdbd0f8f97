package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape. Pointer fields distinguish "absent" from
// the zero value so the schema can supply defaults for absent fields.
type fileConfig struct {
	Database        *string `yaml:"database"`
	IndexDir        *string `yaml:"index_dir"`
	InMemoryIndex   *bool   `yaml:"in_memory_index"`
	RefreshInterval *string `yaml:"refresh_interval"`
	GCInterval      *string `yaml:"gc_interval"`
	SyncWrites      *bool   `yaml:"sync_writes"`
	LogLevel        *string `yaml:"log_level"`
	Concurrency     *int    `yaml:"concurrency"`
}

// decodeYAML decodes strictly (unknown keys are errors) and returns only
// the fields that were present, keyed by schema field name.
func decodeYAML(data []byte) (map[string]any, error) {
	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fields := map[string]any{}
	set := func(name string, v any) {
		fields[name] = v
	}
	if fc.Database != nil {
		set("database", *fc.Database)
	}
	if fc.IndexDir != nil {
		set("index_dir", *fc.IndexDir)
	}
	if fc.InMemoryIndex != nil {
		set("in_memory_index", *fc.InMemoryIndex)
	}
	if fc.RefreshInterval != nil {
		set("refresh_interval", *fc.RefreshInterval)
	}
	if fc.GCInterval != nil {
		set("gc_interval", *fc.GCInterval)
	}
	if fc.SyncWrites != nil {
		set("sync_writes", *fc.SyncWrites)
	}
	if fc.LogLevel != nil {
		set("log_level", *fc.LogLevel)
	}
	if fc.Concurrency != nil {
		set("concurrency", *fc.Concurrency)
	}
	return fields, nil
}
