package alerts

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so rule configuration files can use
// human-readable strings ("90s", "2m") instead of nanosecond integers.
type Duration time.Duration

// Std converts Duration to a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML outputs the duration as a human-readable string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts a duration string ("30s") or a bare integer
// interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration: expected scalar, got %v", value.Kind)
	}
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if seconds, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration %q: expected format like \"30s\" or \"2m\"", value.Value)
}
