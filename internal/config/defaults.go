// Package config provides configuration loading and the built-in
// configuration templates for testreport.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bebsworthy/testreport/pkg/config"
)

// Embedded template configuration files
var (
	//go:embed defaults/basic.json
	basicTemplate string

	//go:embed defaults/race.json
	raceTemplate string

	//go:embed defaults/split.json
	splitTemplate string
)

// Template names a built-in configuration layout.
type Template string

const (
	// TemplateBasic runs go test over every package as one task
	TemplateBasic Template = "basic"

	// TemplateRace adds a task running the race detector
	TemplateRace Template = "race"

	// TemplateSplit separates short unit tests from tagged integration tests
	TemplateSplit Template = "split"
)

// Descriptions holds one-line descriptions shown by the init wizard.
var Descriptions = map[Template]string{
	TemplateBasic: "single task running go test ./...",
	TemplateRace:  "plain run plus a race detector run",
	TemplateSplit: "short unit tests and integration-tagged tests as separate tasks",
}

// DefaultConfigs provides access to the built-in templates
type DefaultConfigs struct {
	configs map[Template]*config.Config
}

// NewDefaultConfigs parses every embedded template.
func NewDefaultConfigs() (*DefaultConfigs, error) {
	dc := &DefaultConfigs{
		configs: make(map[Template]*config.Config),
	}

	templates := map[Template]string{
		TemplateBasic: basicTemplate,
		TemplateRace:  raceTemplate,
		TemplateSplit: splitTemplate,
	}

	for name, configJSON := range templates {
		cfg, err := config.LoadConfig([]byte(configJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", name, err)
		}
		dc.configs[name] = cfg
	}

	return dc, nil
}

// GetConfig returns a copy of the named template.
func (dc *DefaultConfigs) GetConfig(name Template) (*config.Config, error) {
	cfg, ok := dc.configs[name]
	if !ok {
		return nil, fmt.Errorf("no configuration template named %q", name)
	}
	return cfg.Clone(), nil
}

// GetAllTemplates returns the template names in sorted order.
func (dc *DefaultConfigs) GetAllTemplates() []Template {
	names := make([]Template, 0, len(dc.configs))
	for name := range dc.configs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ExportTemplate returns the named template as formatted JSON.
func (dc *DefaultConfigs) ExportTemplate(name Template) ([]byte, error) {
	cfg, err := dc.GetConfig(name)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(cfg, "", "  ")
}
