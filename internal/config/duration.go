package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Duration decodes from either a Go duration string ("30s", "2m") or a
// bare number, which is read as seconds. The original config format used
// integer seconds; duration strings are the preferred spelling.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case string:
		return d.parse(x)
	case int64:
		*d = Duration(time.Duration(x) * time.Second)
		return nil
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v (%T)", v, v)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		return d.parse(s)
	}
	var f float64
	if err := node.Decode(&f); err != nil {
		return fmt.Errorf("invalid duration value %q", node.Value)
	}
	*d = Duration(time.Duration(f * float64(time.Second)))
	return nil
}

func (d *Duration) parse(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		*d = 0
		return nil
	}
	// Bare numbers are seconds.
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n < 0 || n > math.MaxInt64/float64(time.Second) {
			return fmt.Errorf("duration %q out of range", raw)
		}
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0, got %q", raw)
	}
	*d = Duration(v)
	return nil
}
