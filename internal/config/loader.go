package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/Brownie44l1/caulicare-api/internal/envvar"
)

//go:embed schema.json
var schemaJSON string

// Load returns the reference configuration overlaid with the YAML file at
// path, if any. Fields missing from the file keep their defaults; lists
// such as models are replaced as a whole.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decode validates data against the embedded schema and unmarshals it into cfg.
func decode(data []byte, cfg *Config) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		return nil
	}

	schema, err := jsonschema.CompileString("schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal into Config struct: %w", err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	if p := os.Getenv(envvar.Port); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", envvar.Port, p, err)
		}
		cfg.Server.Port = port
	}
	if lib := os.Getenv(envvar.ORTLibrary); lib != "" {
		cfg.Runtime.SharedLibrary = lib
	}
	return nil
}
