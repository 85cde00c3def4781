package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile reads a settings file into a Config. The format follows the
// extension (.yaml, .yml, or .json); keys are the snake_case settings names
// that Load maps onto Settings.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings file: %w", err)
	}

	values := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	case ".json":
		if err := json.Unmarshal(data, &values); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	default:
		return Config{}, fmt.Errorf("settings file %s: unsupported extension %q", path, ext)
	}

	return New(values), nil
}
