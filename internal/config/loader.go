package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	envPrefix         = "REMEDYD_"
)

// Load builds configuration from defaults, an optional YAML file, and
// environment variables, in ascending precedence:
//
//  1. Built-in defaults (lowest)
//  2. YAML config file, when configPath is non-empty and the file exists
//  3. REMEDYD_* environment variables (highest)
//
// Environment variables map to dotted config paths with a single
// underscore-to-dot rewrite on known section prefixes:
//
//	REMEDYD_SERVER_PORT              -> server.port
//	REMEDYD_POLICY_CONFIDENCE_FLOOR  -> policy.confidence_floor
//	REMEDYD_ORCHESTRATOR_MAX_ITERATIONS -> orchestrator.max_iterations
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := readBounded(configPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sections are the top-level config keys an env var may address. The first
// matching prefix is split off; the rest of the variable keeps its
// underscores so compound field names survive (e.g. confidence_floor).
var sections = []string{
	"server", "logging", "telemetry", "project", "collectors",
	"policy", "orchestrator", "learning",
}

func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, sec := range sections {
		if strings.HasPrefix(s, sec+"_") {
			return sec + "." + strings.TrimPrefix(s, sec+"_")
		}
	}
	return s
}

// readBounded reads the config file, rejecting files over the size cap.
func readBounded(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
