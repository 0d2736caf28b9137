package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/servcur"
)

const shutdownGrace = 30 * time.Second

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the servcur daemon",
		Long: `Start the daemon. Without a config file every setting takes its default,
and SERVCUR_* environment variables override both (e.g. SERVCUR_SERVER_LISTEN).

Examples:
  servcur serve
  servcur serve servcur.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, path)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := servcur.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	app, err := servcur.New(cfg)
	if err != nil {
		return err
	}
	serveErr := app.ListenAndServe(ctx)

	// Running deployments get a grace period before queued ones are dropped.
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := app.Close(closeCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
