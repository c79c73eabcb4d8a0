package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/reposearch/client"
	"github.com/git-pkgs/reposearch/fetch"
	"github.com/git-pkgs/reposearch/internal/core"
)

func newDownloadCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <repo> <name> [version]",
		Short: "Download a package artifact and verify its digest",
		Long: `Download a package artifact and verify its digest.

Without a version the latest non-yanked, non-deprecated version is downloaded.
The file is only written to its final path once the digest advertised by the
server has been checked. Use -o - to write to stdout.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.newServer()
			if err != nil {
				return err
			}

			ref := core.Ref{Repository: args[0], Name: args[1]}
			if len(args) == 3 {
				ref.Version = args[2]
			}
			info, err := fetch.NewResolver(srv).Resolve(cmd.Context(), ref)
			if err != nil {
				if errors.Is(err, fetch.ErrNoVersion) {
					return fmt.Errorf("%s has no released versions", ref)
				}
				return describe(err)
			}

			opts := append(root.cfg.ClientOptions(), client.WithTimeout(fetch.DefaultTimeout))
			f := fetch.NewFetcher(client.NewClient(opts...).WithUserAgent(root.cfg.UserAgent))

			if output == "-" {
				_, err := fetch.Download(cmd.Context(), f, info, cmd.OutOrStdout())
				return downloadError(err)
			}

			dest := output
			if dest == "" {
				dest = info.Filename
			}
			tmp, err := os.CreateTemp(filepath.Dir(dest), ".reposearch-*")
			if err != nil {
				return err
			}
			defer func() { _ = os.Remove(tmp.Name()) }()

			n, err := fetch.Download(cmd.Context(), f, info, tmp)
			if err == nil {
				err = tmp.Chmod(fileMode(dest))
			}
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return downloadError(err)
			}
			if err := os.Rename(tmp.Name(), dest); err != nil {
				return err
			}

			root.logger.Info("artifact_downloaded", "ref", info.Ref.String(), "path", dest, "bytes", n)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", dest, humanize.Bytes(uint64(n)))
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: artifact file name in the current directory)")
	return cmd
}

// fileMode keeps the mode of a file being replaced; new files get 0644
// instead of the 0600 that os.CreateTemp uses.
func fileMode(dest string) os.FileMode {
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
		return fi.Mode().Perm()
	}
	return 0o644
}

// downloadError keeps digest failures verbatim; they are not server faults.
func downloadError(err error) error {
	if err == nil || errors.Is(err, fetch.ErrDigestMismatch) {
		return err
	}
	return describe(err)
}
