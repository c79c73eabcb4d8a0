// Package cmd provides the CLI commands for reposearch.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/reposearch/client"
	"github.com/git-pkgs/reposearch/internal/api"
	"github.com/git-pkgs/reposearch/internal/config"
	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/git-pkgs/reposearch/internal/logging"
	"github.com/git-pkgs/reposearch/internal/tui"
	"github.com/git-pkgs/reposearch/search"
)

// rootOptions holds the persistent flags and what PersistentPreRunE builds from them.
type rootOptions struct {
	configPath  string
	server      string
	token       string
	debug       bool
	metricsAddr string

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	cleanups []func()
}

// NewRootCmd creates the root command for the reposearch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "reposearch",
		Short: "Search an artifact repository server",
		Long: `reposearch searches packages on an artifact repository server.

Run without arguments in a terminal for interactive search: results update
as you type and the highlighted package shows its versions and security score.

When stdin is not a terminal, each input line is submitted as a query and
every result is printed as it settles:

  printf 'lib\nlibcurl\n' | reposearch`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoot(cmd, opts)
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			opts.teardown()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "Server base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newReposCmd(opts))
	cmd.AddCommand(newPackagesCmd(opts))
	cmd.AddCommand(newVersionsCmd(opts))
	cmd.AddCommand(newScoreCmd(opts))
	cmd.AddCommand(newDownloadCmd(opts))
	cmd.AddCommand(newWhoamiCmd(opts))
	cmd.AddCommand(newPingCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if o.server != "" {
		cfg.Server = o.server
	}
	if o.token != "" {
		cfg.Token = o.token
	}
	o.cfg = cfg

	// The interactive screen owns the terminal, so its logs go to a file.
	logCfg := logging.DefaultConfig()
	if o.debug {
		logCfg = logging.DebugConfig()
	}
	if cmd == cmd.Root() && stdinIsTerminal(cmd) {
		logCfg.WriteToStderr = false
		logCfg.FilePath = logging.DefaultLogPath()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.cleanups = append(o.cleanups, cleanup)
	o.logger = logger
	slog.SetDefault(logger)

	o.registry = prometheus.NewRegistry()
	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if o.metricsAddr != "" {
		if err := o.serveMetrics(); err != nil {
			return err
		}
	}

	logger.Debug("config_loaded",
		slog.String("server", cfg.Server),
		slog.Duration("debounce", cfg.Debounce.Std()),
		slog.Int("page_size", cfg.PageSize))
	return nil
}

func (o *rootOptions) teardown() {
	for i := len(o.cleanups) - 1; i >= 0; i-- {
		o.cleanups[i]()
	}
	o.cleanups = nil
}

func (o *rootOptions) serveMetrics() error {
	ln, err := net.Listen("tcp", o.metricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	o.logger.Info("metrics_serving", slog.String("addr", ln.Addr().String()))

	o.cleanups = append(o.cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}

// newServer validates the configuration and builds the API client.
func (o *rootOptions) newServer() (*api.Server, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	c := client.NewClient(o.cfg.ClientOptions()...).WithUserAgent(o.cfg.UserAgent)
	return api.New(o.cfg.Server, c), nil
}

// newResults builds the orchestrator behind the search box. Pages are cached
// so that retyping a recent query does not hit the server again.
func (o *rootOptions) newResults(srv *api.Server) *tui.Results {
	cached := api.NewCachedSearcher(srv, o.cfg.Cache.Size, o.cfg.Cache.TTL.Std())
	limit := o.cfg.PageSize
	return search.New(func(ctx context.Context, q string) (*core.Page, error) {
		return cached.Search(ctx, q, limit)
	},
		search.WithDebounce(o.cfg.Debounce.Std()),
		search.WithLogger(o.logger.With(slog.String("surface", "results"))),
		search.WithMetrics(search.NewMetrics(o.registry, "results")),
	)
}

func (o *rootOptions) newDetail(srv *api.Server) *tui.Detail {
	return tui.NewDetail(srv,
		search.WithLogger(o.logger.With(slog.String("surface", "detail"))),
		search.WithMetrics(search.NewMetrics(o.registry, "detail")),
	)
}

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	srv, err := opts.newServer()
	if err != nil {
		return err
	}
	results := opts.newResults(srv)

	if stdinIsTerminal(cmd) {
		m := tui.New(results, opts.newDetail(srv), srv.URLs())
		return tui.Run(cmd.Context(), m)
	}

	defer results.Dispose()
	return runLines(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), results)
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
