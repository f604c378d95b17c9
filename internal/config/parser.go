package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a config file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
	FormatJSONC
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	case FormatJSONC:
		return "jsonc"
	default:
		return "unknown"
	}
}

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	case ".jsonc":
		return FormatJSONC
	}

	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") {
		return FormatJSONC
	}
	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	// TOML has [tables] or key = value; YAML uses key: value.
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "["), strings.Contains(line, " = "):
			return FormatTOML
		case strings.Contains(line, ":"):
			return FormatYAML
		case strings.Contains(line, "="):
			return FormatTOML
		}
	}

	return FormatUnknown
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// parse decodes content over the defaults.
func parse(content []byte, format Format) (*Config, error) {
	content = expandEnvVars(content)
	cfg := Default()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON, FormatJSONC:
		if err := json.Unmarshal(jsonc.ToJSON(content), cfg); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	return cfg, nil
}
