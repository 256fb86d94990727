package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/insight-pipeline/internal/config"
	"github.com/jonathan/insight-pipeline/internal/dataset"
	"github.com/jonathan/insight-pipeline/internal/metadata"
	"github.com/jonathan/insight-pipeline/internal/server"
	"github.com/jonathan/insight-pipeline/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server that runs the pipeline for uploaded datasets, streams progress over SSE, and exposes Prometheus metrics. Run history endpoints are enabled when a database is configured.`,
	RunE:  runServe,
}

var (
	serveFlags commonFlags
	serveOpts  serveOptions
)

// serveOptions holds the flags only the serve command takes
type serveOptions struct {
	addr       string
	allowHosts []string
}

func init() {
	addCommonFlags(serveCmd, &serveFlags)
	addServeFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command, o *serveOptions) {
	cmd.Flags().StringVar(&o.addr, "addr", "", "Address to listen on (default :8080)")
	cmd.Flags().StringSliceVar(&o.allowHosts, "allow-url-host", nil, `Host that request dataset_url values may name; repeat or comma-separate, "*.example.com" for subdomains, "*" for any (default none, remote datasets disabled)`)
}

// apply copies explicitly set serve flags over the resolved config
func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = o.addr
	}
	if cmd.Flags().Changed("allow-url-host") {
		cfg.AllowedURLHosts = o.allowHosts
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(cmd, &serveFlags)
	if err != nil {
		return err
	}
	serveOpts.apply(cmd, &cfg)
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	database, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Addr:            cfg.ListenAddr,
		Logger:          logger,
		NewOrchestrator: orchestratorFactory(cfg, client, recorderOf(database), logger),
		Metadata: func(ctx context.Context, table *types.Table) (types.Metadata, error) {
			return metadata.Generate(ctx, client, table, logger)
		},
		Loader:          dataset.NewLoader(cfg.UseBrowser, 0, logger),
		AllowedURLHosts: cfg.AllowedURLHosts,
	}
	if len(cfg.AllowedURLHosts) == 0 {
		logger.Info("dataset_url requests disabled; use --allow-url-host to enable")
	}
	if database != nil {
		defer database.Close()
		srvCfg.Runs = database
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}
