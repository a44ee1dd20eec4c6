package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalogbrowser/internal/blob"
	"catalogbrowser/internal/catalog"
	"catalogbrowser/internal/catalog/watch"
	"catalogbrowser/internal/config"
	"catalogbrowser/internal/logging"
)

// app carries state shared by the subcommands once the root pre-run has
// resolved configuration and logging.
type app struct {
	out io.Writer

	envFiles []string
	addr     string
	logLevel string

	cfg config.Config
	log *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:   "catalogd",
		Short: "Serve the dashboards and queries catalog",
		Long: `catalogd loads the dashboards and queries catalogs from two semicolon
separated files, normalizes their columns and serves them over a small JSON
API together with the browsing UI. Files are reloaded when they change.

Running without a subcommand is the same as "catalogd serve".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return a.serve(cmd.Context()) },
	}
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	root.PersistentFlags().StringVar(&a.addr, "addr", "", "listen address, overrides CATALOG_ADDR")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides CATALOG_LOG_LEVEL")

	root.AddCommand(newServeCmd(a), newCheckCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = a.addr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// openCatalog resolves both catalog files on the configured driver and
// builds the store over them. Nothing is loaded yet.
func (a *app) openCatalog(ctx context.Context, opts ...catalog.Option) (*catalog.Store, []watch.Target, error) {
	locs, err := blob.OpenFiles(ctx, blob.Options{Driver: a.cfg.Driver, S3: a.cfg.S3},
		a.cfg.DashboardsPath, a.cfg.QueriesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog files: %w", err)
	}
	files := map[catalog.Kind]blob.Location{
		catalog.KindDashboards: locs[0],
		catalog.KindQueries:    locs[1],
	}
	opts = append([]catalog.Option{catalog.WithLogger(a.log.Named("catalog"))}, opts...)
	store := catalog.NewStore(files, opts...)
	targets := []watch.Target{
		{Kind: catalog.KindDashboards, Location: locs[0]},
		{Kind: catalog.KindQueries, Location: locs[1]},
	}
	return store, targets, nil
}
