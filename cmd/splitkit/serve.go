package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/splitkit/cmd/splitkit/runtime"

	"github.com/harunnryd/splitkit/internal/daemon"
	"github.com/harunnryd/splitkit/internal/daemon/components"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment API as a long-lived service",
	Long:  `Starts the HTTP API, the debug surface (when dashboard.enabled) and the scheduled event exporter using component lifecycle orchestration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		d, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		storeComp := components.NewStoreComponent(cfg.Store)
		runtimeComp := runtime.NewDaemonRuntimeComponent(cfg, storeComp)
		exporterComp := components.NewExporterComponent(runtimeComp, cfg.Analytics)
		httpComp := components.NewHTTPServerComponent(d, runtimeComp, cfg)

		d.AddComponent(storeComp)
		d.AddComponent(runtimeComp)
		d.AddComponent(exporterComp)
		d.AddComponent(httpComp)

		err = d.Start(context.Background())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("splitkit stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("splitkit stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
