package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches ${NAME} and ${NAME:-fallback} references in the raw YAML.
var envRef = regexp.MustCompile(`\$\{(\w+)(?::-([^}]*))?\}`)

// Load reads the YAML file at path into a Config and applies defaults for
// unset fields. Values may reference environment variables as ${NAME} or
// ${NAME:-fallback}; a reference with neither an environment value nor a
// fallback fails the load.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded, err := interpolate(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.withDefaults()
	return &cfg, nil
}

// interpolate substitutes environment references in raw. Unresolvable
// references are collected and reported together, so a broken deployment
// shows every missing variable at once instead of one per restart.
func interpolate(raw []byte) ([]byte, error) {
	var missing []string

	out := envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		groups := envRef.FindSubmatch(ref)
		name := string(groups[1])

		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if groups[2] != nil {
			return groups[2]
		}

		missing = append(missing, name)
		return ref
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved environment variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
