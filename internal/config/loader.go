package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file, expands ${ENV} references, and decodes it
// strictly over the defaults from Default(). YAML is assumed unless the file
// extension is .json or .json5. An empty path returns the defaults, so the
// bot can run on environment variables alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	if err := decodeInto(cfg, []byte(expanded), path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, data []byte, pathHint string) error {
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		// Route JSON5 through an intermediate map so the yaml field tags
		// apply to both formats.
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		payload, err := yaml.Marshal(raw)
		if err != nil {
			return fmt.Errorf("failed to serialize config: %w", err)
		}
		data = payload
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("failed to parse config: expected single document")
	}
	return nil
}
