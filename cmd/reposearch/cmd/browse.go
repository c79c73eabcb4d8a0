package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/internal/display"
)

func newReposCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List repositories visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}
			repos, err := srv.ListRepositories(cmd.Context())
			if err != nil {
				return describe(err)
			}
			return display.Repositories(cmd.OutOrStdout(), repos)
		},
	}
}

func newPackagesCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "packages <repo>",
		Short: "List packages stored in a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = root.cfg.PageSize
			}
			page, err := srv.ListPackages(cmd.Context(), args[0], limit)
			if err != nil {
				return describe(err)
			}
			return display.Packages(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of packages (default page_size from config)")
	return cmd
}

func newVersionsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <repo> <name>",
		Short: "List versions of a package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}
			versions, err := srv.FetchVersions(cmd.Context(), args[0], args[1])
			if err != nil {
				return describe(err)
			}
			return display.Versions(cmd.OutOrStdout(), versions)
		},
	}
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score <repo> <name> [version]",
		Short: "Show the security score of a package version",
		Long: `Show the security score of a package version.

Without a version the latest non-yanked, non-deprecated version is scored.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}

			ref := core.Ref{Repository: args[0], Name: args[1]}
			if len(args) == 3 {
				ref.Version = args[2]
			} else {
				latest, err := core.FetchLatestVersion(cmd.Context(), srv, ref.Repository, ref.Name)
				if err != nil {
					return describe(err)
				}
				if latest == nil {
					return fmt.Errorf("%s has no released versions", ref)
				}
				ref.Version = latest.Number
			}

			score, err := srv.FetchScore(cmd.Context(), ref.Repository, ref.Name, ref.Version)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				return describe(err)
			}
			return display.Score(cmd.OutOrStdout(), ref, score)
		},
	}
}
