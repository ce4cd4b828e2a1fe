package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes that also accepts "100MB"-style strings.
type ByteSize int64

const (
	KB ByteSize = 1 << (10 * (iota + 1))
	MB
	GB
)

var byteUnits = []struct {
	suffix string
	mult   ByteSize
}{
	{"GB", GB},
	{"MB", MB},
	{"KB", KB},
	{"B", 1},
}

// ParseByteSize parses plain integers or values suffixed with B, KB, MB or GB.
func ParseByteSize(s string) (ByteSize, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("empty byte size")
	}
	mult := ByteSize(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(raw, u.suffix) {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("byte size %q must not be negative", s)
	}
	return ByteSize(n) * mult, nil
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// loadFile overlays a YAML file onto cfg. ${VAR} references are expanded
// from the environment before parsing so secrets can stay out of the file.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
