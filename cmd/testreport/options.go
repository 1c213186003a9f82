package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newOptionsCmd() *cobra.Command {
	var properties []string
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Show the build options and where their values come from",
		Long: `Options lists every build option with its resolved value and source.
Values resolve from -P flags, then environment variables (tests.seed or
TESTS_SEED), then .local-options.yaml, then the default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, dir, err := loadConfig()
			if err != nil {
				return err
			}
			set, err := buildOptions(properties, dir)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Option", "Value", "Source", "Description"})
			for _, opt := range set.All() {
				value, source := "(absent)", "-"
				if opt.IsPresent() {
					value, source = opt.String(), opt.Source().String()
				}
				t.AppendRow(table.Row{opt.Name, value, source, opt.Description})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&properties, "property", "P", nil, "Set a build option (name=value)")
	return cmd
}
