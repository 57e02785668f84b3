// Package config loads the optional groundwork config file.
//
// Configuration is a single YAML file named by the --config flag or the
// GROUNDWORK_CONFIG environment variable. There is no automatic discovery:
// an unset path means an empty config. File values sit beneath flags; a
// flag the user passed always wins.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when --config is not
// passed.
const EnvVar = "GROUNDWORK_CONFIG"

// Config holds the settings shared by every command. The zero value of a
// field means "not set in the file"; the CLI applies file values only for
// flags the user left at their defaults.
type Config struct {
	// State is the backend DSN: sqlite://path or postgres://...
	State string `yaml:"state"`

	// Provider selects the provider implementation ("memory").
	Provider string `yaml:"provider"`

	// Parallelism bounds concurrent provider calls during apply.
	Parallelism int `yaml:"parallelism"`

	// Format is the output format: text or json.
	Format string `yaml:"format"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// Load reads a YAML config file. Unknown keys are rejected so a typo fails
// loudly instead of silently falling back to a default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		// An empty file decodes to EOF, which is a valid empty config.
		if errors.Is(err, io.EOF) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if c.Parallelism < 0 {
		return nil, fmt.Errorf("config %s: parallelism must not be negative", path)
	}
	return &c, nil
}

// Discover loads the config named by path, or by GROUNDWORK_CONFIG when
// path is empty. With neither set it returns an empty config.
func Discover(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return &Config{}, nil
	}
	return Load(path)
}
