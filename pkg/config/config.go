// Package config provides the core configuration types and validation logic for testreport.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Default values applied to fields left unset in a configuration file.
const (
	DefaultVersion        = "1.0"
	DefaultReportsDir     = "build/test-outputs"
	DefaultMaxBuffered    = 2048
	DefaultMaxLineWidth   = 4096
	DefaultWarnOutputSize = 10 * 1024 * 1024
	DefaultMaxParallel    = 4
	DefaultTaskName       = "test"
)

// Config represents the main configuration structure for testreport
type Config struct {
	Version        string                 `json:"version"`
	SpillDir       string                 `json:"spillDir,omitempty"`
	ReportsDir     string                 `json:"reportsDir,omitempty"`
	MaxBuffered    int                    `json:"maxBuffered,omitempty"`
	MaxLineWidth   int                    `json:"maxLineWidth,omitempty"`
	WarnOutputSize int64                  `json:"warnOutputSize,omitempty"`
	EntryPoint     []string               `json:"entryPoint,omitempty"`
	MaxParallel    int                    `json:"maxParallel,omitempty"`
	StripANSI      bool                   `json:"stripAnsi,omitempty"`
	MetricsFile    string                 `json:"metricsFile,omitempty"`
	Tasks          map[string]*TaskConfig `json:"tasks"`
}

// TaskConfig defines a single test task. The command must write test2json
// events to standard output.
type TaskConfig struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	Packages   []string `json:"packages,omitempty"`
	WorkingDir string   `json:"workingDir,omitempty"`
	Timeout    int      `json:"timeout,omitempty"` // milliseconds
}

// Default returns the configuration used when no file is found: a single
// "test" task running go test over every package.
func Default() *Config {
	cfg := &Config{
		Version: DefaultVersion,
		Tasks: map[string]*TaskConfig{
			DefaultTaskName: DefaultTask(),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultTask returns the go test task.
func DefaultTask() *TaskConfig {
	return &TaskConfig{
		Command:  "go",
		Args:     []string{"test", "-json"},
		Packages: []string{"./..."},
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.ReportsDir == "" {
		c.ReportsDir = DefaultReportsDir
	}
	if c.MaxBuffered == 0 {
		c.MaxBuffered = DefaultMaxBuffered
	}
	if c.MaxLineWidth == 0 {
		c.MaxLineWidth = DefaultMaxLineWidth
	}
	if c.WarnOutputSize == 0 {
		c.WarnOutputSize = DefaultWarnOutputSize
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if len(c.Tasks) == 0 {
		c.Tasks = map[string]*TaskConfig{DefaultTaskName: DefaultTask()}
	}
}

// Validate performs validation on the Config
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if c.MaxBuffered <= 0 {
		return fmt.Errorf("maxBuffered must be positive, got %d", c.MaxBuffered)
	}
	if c.MaxLineWidth <= 0 {
		return fmt.Errorf("maxLineWidth must be positive, got %d", c.MaxLineWidth)
	}
	if c.WarnOutputSize <= 0 {
		return fmt.Errorf("warnOutputSize must be positive, got %d", c.WarnOutputSize)
	}
	if c.MaxParallel <= 0 {
		return fmt.Errorf("maxParallel must be positive, got %d", c.MaxParallel)
	}

	if len(c.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}

	for _, name := range c.TaskNames() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("task names cannot be empty")
		}
		if err := c.Tasks[name].Validate(); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
	}

	return nil
}

// TaskNames returns the task names in sorted order.
func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate performs validation on the TaskConfig
func (t *TaskConfig) Validate() error {
	if t == nil {
		return fmt.Errorf("task configuration is empty")
	}
	if strings.TrimSpace(t.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// TimeoutDuration returns the task timeout, zero when unset.
func (t *TaskConfig) TimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Millisecond
}

// LoadConfig loads and validates configuration from JSON data. Unset fields
// take their defaults before validation.
func LoadConfig(data []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig serializes configuration to JSON
func SaveConfig(config *Config) ([]byte, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}

	return data, nil
}

// Clone creates a deep copy of the Config
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.EntryPoint != nil {
		clone.EntryPoint = append([]string(nil), c.EntryPoint...)
	}
	if c.Tasks != nil {
		clone.Tasks = make(map[string]*TaskConfig, len(c.Tasks))
		for name, task := range c.Tasks {
			clone.Tasks[name] = task.Clone()
		}
	}
	return &clone
}

// Clone creates a deep copy of the TaskConfig
func (t *TaskConfig) Clone() *TaskConfig {
	if t == nil {
		return nil
	}

	clone := *t
	if t.Args != nil {
		clone.Args = append([]string(nil), t.Args...)
	}
	if t.Packages != nil {
		clone.Packages = append([]string(nil), t.Packages...)
	}
	return &clone
}
