package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harunnryd/splitkit/internal/config"
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/dashboard"

	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Watch a visitor's session on a running service",
	Long:  `Polls /debug/snapshot of a running 'splitkit serve' and redraws the session, experiments, recent events and timing measures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		if !cfg.Dashboard.Enabled {
			return fmt.Errorf("dashboard is disabled (dashboard.enabled=false)")
		}

		url, _ := cmd.Flags().GetString("url")
		if url == "" {
			url = cfg.Dashboard.URL
		}
		client, _ := cmd.Flags().GetString("client")
		once, _ := cmd.Flags().GetBool("once")

		interval, err := config.DurationOrDefault(cfg.Dashboard.PollInterval, config.DefaultDashboardPollInterval)
		if err != nil {
			return fmt.Errorf("parse dashboard poll interval: %w", err)
		}

		source := dashboard.NewHTTPSource(url, client)
		if once {
			snap, err := source.Fetch(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dashboard.Render(snap))
			return nil
		}

		signals := NewSignalHandler(commandContext(cmd))
		signals.Start()
		defer signals.Stop()

		poller := dashboard.NewPoller(source, interval, screenRenderer(cmd.OutOrStdout(), url))
		if err := poller.Run(signals.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func screenRenderer(w io.Writer, url string) func(dashboard.Snapshot, error) {
	return func(snap dashboard.Snapshot, err error) {
		fmt.Fprint(w, clearScreen)
		if err != nil {
			fmt.Fprintf(w, "splitkit dashboard: %s unreachable at %s\n%v\n", url, time.Now().Format(time.TimeOnly), err)
			return
		}
		fmt.Fprintln(w, dashboard.Render(snap))
	}
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().String("url", "", "base URL of the running service (default dashboard.url)")
	dashboardCmd.Flags().String("client", core.DefaultScope, "client id whose scope to watch")
	dashboardCmd.Flags().Bool("once", false, "print a single snapshot and exit")
}
