package main

import (
	"encoding/json"
	"fmt"

	"github.com/harunnryd/splitkit/cmd/splitkit/runtime"

	"github.com/harunnryd/splitkit/internal/core"

	"github.com/spf13/cobra"
)

var variantCmd = &cobra.Command{
	Use:   "variant <experiment>",
	Short: "Resolve the variant for a scope",
	Long:  `Returns the persisted variant for the scope, assigning and persisting one on first use. With --user the bucket is derived from the user id.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		scopeID, _ := cmd.Flags().GetString("scope")

		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			v := rt.Core.Scope(scopeID).Engine.GetVariant(args[0], user)
			if v == nil {
				return fmt.Errorf("no variant for experiment %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget persisted assignments",
	Long:  `Deletes the persisted assignments of one scope, or of every scope with --all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeID, _ := cmd.Flags().GetString("scope")
		all, _ := cmd.Flags().GetBool("all")

		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			if all {
				if err := rt.Core.ClearAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all assignments")
				return nil
			}
			if err := rt.Core.ClearScope(scopeID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared assignments for scope %s\n", scopeID)
			return nil
		})
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Drive a local scope interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeID, _ := cmd.Flags().GetString("scope")

		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			signals := NewSignalHandler(commandContext(cmd))
			signals.Start()
			defer signals.Stop()

			repl := runtime.NewREPL(rt, scopeID, cmd.InOrStdin(), cmd.OutOrStdout())
			return repl.Start(signals.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(variantCmd)
	variantCmd.Flags().String("user", "", "user id for deterministic bucketing")
	variantCmd.Flags().String("scope", core.DefaultScope, "storage scope (client id)")

	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().String("scope", core.DefaultScope, "storage scope (client id)")
	clearCmd.Flags().Bool("all", false, "clear every scope")

	rootCmd.AddCommand(replCmd)
	replCmd.Flags().String("scope", core.DefaultScope, "storage scope (client id)")
}
