// Package config loads and watches the gitnotify config file.
//
// The primary format is TOML ([gitlab] and [telegram] sections); the same
// structure is accepted as YAML when the file ends in .yaml/.yml. Both
// decoders are strict: unknown keys fail the load so typos surface at
// startup instead of silently disabling features.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	yaml "go.yaml.in/yaml/v3"
)

// Parse decodes config bytes. The format is chosen by file extension.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, 0, len(undec))
			for _, k := range undec {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads, parses, and defaults the config file at path. Callers run
// Validate or ValidateNotifier themselves, depending on the process.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, b)
}
