package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bebsworthy/testreport/internal/config"
	"github.com/bebsworthy/testreport/internal/wizard"
)

func newInitCmd() *cobra.Command {
	var (
		validate   bool
		outputPath string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .testreport.json configuration interactively",
		Long: `Init walks through choosing test tasks and settings and writes them to
.testreport.json. It needs an interactive terminal.

With --validate it checks an existing configuration file instead.`,
		Example: `  testreport init
  testreport init --output ci/.testreport.json --force
  testreport init --validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if validate {
				return runValidateConfig(cmd)
			}
			w, err := wizard.NewConfigWizard()
			if err != nil {
				return fmt.Errorf("failed to create wizard: %w", err)
			}
			return w.Run(outputPath, force)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate the existing configuration")
	cmd.Flags().StringVar(&outputPath, "output", "", "Output path for configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Force overwrite existing configuration")
	return cmd
}

// runValidateConfig validates the current configuration file
func runValidateConfig(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	path := configPath
	if path == "" {
		_, found, err := config.NewLoader().Load()
		if err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		if found == "" {
			return fmt.Errorf("no %s found", config.ConfigFileName)
		}
		path = found
	}

	if err := config.ValidateConfigFile(path); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	cfg, err := config.NewLoader().LoadFromPath(path)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Fprintf(out, "Configuration %s is valid.\n", path)
	fmt.Fprintf(out, "   Version: %s\n", cfg.Version)
	fmt.Fprintf(out, "   Reports: %s\n", cfg.ReportsDir)
	fmt.Fprintf(out, "   Tasks: %d configured\n", len(cfg.Tasks))
	for _, name := range cfg.TaskNames() {
		fmt.Fprintf(out, "   • %s\n", name)
	}
	return nil
}
