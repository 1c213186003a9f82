package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/pkg/config"
)

const (
	// ConfigFileName is the default configuration file name
	ConfigFileName = ".testreport.json"

	// ConfigEnvVar is the environment variable to specify custom config path
	ConfigEnvVar = "TESTREPORT_CONFIG"
)

// Loader locates and loads the configuration file
type Loader struct {
	// SearchPaths contains the paths to search for configuration files
	SearchPaths []string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		SearchPaths: getDefaultSearchPaths(),
	}
}

// Load reads the file named by ConfigEnvVar, or the first ConfigFileName in
// the search paths. When neither exists the defaults are returned and path
// is empty.
func (l *Loader) Load() (cfg *config.Config, path string, err error) {
	debug.LogSection("Configuration Loading")

	if envPath := os.Getenv(ConfigEnvVar); envPath != "" {
		debug.Log("Loading config from environment variable %s: %s", ConfigEnvVar, envPath)
		cfg, err := l.loadFromPath(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", ConfigEnvVar, err)
		}
		return cfg, envPath, nil
	}

	debug.Log("Searching for config in default paths: %v", l.SearchPaths)
	for _, searchPath := range l.SearchPaths {
		configPath := filepath.Join(searchPath, ConfigFileName)
		debug.Log("Checking path: %s", configPath)
		if _, err := os.Stat(configPath); err == nil {
			debug.Log("Found config at: %s", configPath)
			cfg, err := l.loadFromPath(configPath)
			if err != nil {
				return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			return cfg, configPath, nil
		}
	}

	debug.Log("No %s found, using defaults", ConfigFileName)
	return config.Default(), "", nil
}

// LoadFromPath loads configuration from a specific file path
func (l *Loader) LoadFromPath(path string) (*config.Config, error) {
	return l.loadFromPath(path)
}

// loadFromPath loads and validates configuration from a file
func (l *Loader) loadFromPath(path string) (*config.Config, error) {
	debug.Log("Loading config from file: %s", path)

	// #nosec G304 - path comes from the user or the search paths
	file, err := os.Open(path)
	if err != nil {
		debug.LogError(err, "opening config file")
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }() //nolint:errcheck // Best effort cleanup

	data, err := io.ReadAll(file)
	if err != nil {
		debug.LogError(err, "reading config file")
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	debug.Log("Config file size: %d bytes", len(data))
	cfg, err := config.LoadConfig(data)
	if err != nil {
		debug.LogError(err, "parsing config")
		return nil, err
	}

	debug.Log("Loaded config: version=%s, tasks=%v", cfg.Version, cfg.TaskNames())
	return cfg, nil
}

// getDefaultSearchPaths returns the default paths to search for configuration
func getDefaultSearchPaths() []string {
	paths := []string{}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)

		// Walk up to the module or repository root
		dir := cwd
		for {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			if _, err := os.Stat(filepath.Join(parent, ".git")); err == nil {
				paths = append(paths, parent)
				break
			}
			if _, err := os.Stat(filepath.Join(parent, "go.mod")); err == nil {
				paths = append(paths, parent)
				break
			}
			dir = parent
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	return paths
}

// ValidateConfigFile checks a configuration file, rejecting unknown fields.
func ValidateConfigFile(path string) error {
	// #nosec G304 - path is provided by user for validation purposes
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }() //nolint:errcheck // Best effort cleanup

	var cfg config.Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	cfg.ApplyDefaults()
	return cfg.Validate()
}
