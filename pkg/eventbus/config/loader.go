package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section is the top-level key holding the bus settings in an application
// file.
const Section = "eventbus"

// Sentinel errors for loading.
var (
	// ErrUnsupportedFormat indicates a file extension with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidSection indicates the requested section is not a mapping.
	ErrInvalidSection = errors.New("config section is not a mapping")
)

type decodeFunc func(data []byte, v any) error

// decoders maps lower-case file extensions to their decoder.
var decoders = map[string]decodeFunc{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// Load reads the Section of the settings file at path. A file without that
// section yields an empty Config, so every setting keeps its default.
//
// Example:
//
//	cfg, err := config.Load("app.yaml")
//	if err != nil {
//	    return err
//	}
//	queue := cfg.Int("background_queue_size", 1024)
func Load(path string) (Config, error) {
	return LoadSection(path, Section)
}

// LoadSection reads the file at path and returns the mapping under section.
// An empty section returns the whole document.
func LoadSection(path, section string) (Config, error) {
	root, err := FromFile(path)
	if err != nil {
		return Config{}, err
	}
	if section == "" {
		return root, nil
	}

	switch v := root.data[section].(type) {
	case nil:
		return New(nil), nil
	case map[string]any:
		return New(v), nil
	default:
		return Config{}, fmt.Errorf("%w: %s in %s holds %T", ErrInvalidSection, section, path, v)
	}
}

// FromFile loads a whole settings document, choosing the decoder by
// extension: .yaml, .yml or .json.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parse(data, decode, ext[1:])
}

// FromYAML parses a YAML document.
func FromYAML(data []byte) (Config, error) {
	return parse(data, yaml.Unmarshal, "yaml")
}

// FromJSON parses a JSON document.
func FromJSON(data []byte) (Config, error) {
	return parse(data, json.Unmarshal, "json")
}

func parse(data []byte, decode decodeFunc, format string) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}
