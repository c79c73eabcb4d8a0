package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/reposearch/internal/display"
)

func newWhoamiCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account your credentials belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}
			account, err := srv.FetchAccount(cmd.Context())
			if err != nil {
				return describe(err)
			}
			return display.Account(cmd.OutOrStdout(), account)
		},
	}
}

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}
			start := time.Now()
			if err := srv.Ping(cmd.Context()); err != nil {
				return describe(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is up (%s)\n", srv.BaseURL(), time.Since(start).Round(time.Millisecond))
			return err
		},
	}
}
