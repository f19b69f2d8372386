package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/splitkit/cmd/splitkit/runtime"

	"github.com/harunnryd/splitkit/internal/config"

	"github.com/spf13/cobra"
)

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.Load(cmd)
}

// executeWithRuntime opens the configured store for the duration of fn.
func executeWithRuntime(cmd *cobra.Command, fn func(*runtime.Runtime) error) error {
	loaded, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := runtime.Open(loaded)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer rt.Close()

	return fn(rt)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
