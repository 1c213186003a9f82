package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bebsworthy/testreport/internal/buildopts"
	"github.com/bebsworthy/testreport/internal/config"
	"github.com/bebsworthy/testreport/internal/debug"
	pkgconfig "github.com/bebsworthy/testreport/pkg/config"
)

// loadConfig loads the --config file, or searches for one. It returns the
// directory local option overrides are read from.
func loadConfig() (*pkgconfig.Config, string, error) {
	loader := config.NewLoader()
	if configPath != "" {
		cfg, err := loader.LoadFromPath(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, filepath.Dir(configPath), nil
	}

	cfg, path, err := loader.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if path != "" {
		return cfg, filepath.Dir(path), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return cfg, cwd, nil
}

// buildOptions resolves the test options from -P properties, the
// environment and the local options file in dir.
func buildOptions(properties []string, dir string) (*buildopts.Set, error) {
	props, err := buildopts.ParseProperties(properties)
	if err != nil {
		return nil, err
	}
	localPath := filepath.Join(dir, buildopts.LocalOptionsFile)
	local, err := buildopts.LoadLocalOptions(localPath)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		debug.Log("Loaded %d local option overrides from %s", len(local), localPath)
	}

	set := buildopts.NewSet(buildopts.Resolver{Properties: props, Local: local})
	buildopts.RegisterTestOptions(set)
	return set, nil
}

// selectTasks returns the configured tasks matching any of the glob
// patterns, in sorted order. No patterns selects every task.
func selectTasks(cfg *pkgconfig.Config, patterns []string) ([]string, error) {
	names := cfg.TaskNames()
	if len(patterns) == 0 {
		return names, nil
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid task pattern %q", pattern)
		}
	}

	var selected []string
	matched := make(map[string]bool, len(patterns))
	for _, name := range names {
		hit := false
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, name); ok {
				matched[pattern] = true
				hit = true
			}
		}
		if hit {
			selected = append(selected, name)
		}
	}
	for _, pattern := range patterns {
		if !matched[pattern] {
			return nil, fmt.Errorf("no test task matches %q (tasks: %v)", pattern, names)
		}
	}
	return selected, nil
}
