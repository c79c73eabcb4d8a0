package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/reposearch/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file, environment
variables and flags have been applied. Secrets are masked.

Config file: ` + config.DefaultPath() + `
Environment: REPOSEARCH_SERVER, REPOSEARCH_TOKEN, REPOSEARCH_USERNAME, REPOSEARCH_PASSWORD`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if err := root.cfg.Masked().Write(out, format); err != nil {
				return err
			}
			if err := root.cfg.Validate(); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, toml")
	return cmd
}
