// workspace-doctor diagnoses the structural health of a multi-package
// workspace and orchestrates phased recovery of broken modules.
//
// All command logic lives in internal/cli; this file only declares the
// cobra command tree and flag plumbing.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/workspacedoctor/workspace-doctor/internal/cli"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

var (
	flagRoot    string
	flagOutput  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "workspace-doctor",
		Short: "Diagnose and recover workspace module health",
		Long: `workspace-doctor assesses the structural health of every module in a
multi-package workspace, scores it, and runs phased recovery plans
(stabilization, implementation, validation) against modules that need it.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagRoot, "root", "r", ".", "workspace root directory")
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "output format: table, json, or yaml")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newAnalyzeCmd(),
		newValidateCmd(),
		newRecoverCmd(),
		newPhaseCmd(),
		newPredictCmd(),
		newReportCmd(),
		newModulesCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func opts() cli.Options {
	return cli.Options{
		Root:         flagRoot,
		OutputFormat: flagOutput,
		Verbose:      flagVerbose,
	}
}

func newAnalyzeCmd() *cobra.Command {
	var modules []string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze workspace module health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunAnalyze(opts(), modules, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVarP(&modules, "module", "m", nil, "restrict analysis to the given modules")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace-level configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunValidate(opts(), cmd.OutOrStdout())
		},
	}
}

func newRecoverCmd() *cobra.Command {
	var (
		strategy string
		dryRun   bool
		parallel bool
		force    bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "recover <module>",
		Short: "Run a phased recovery for one module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunRecover(opts(), args[0], strategy, dryRun, parallel, force, timeout, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "recovery strategy: repair, rebuild, or reset (default: assessor recommendation)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate every task without touching files")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "execute phase tasks in bounded-concurrency batches")
	cmd.Flags().BoolVar(&force, "force", false, "continue past task failures")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall recovery timeout (0 = unbounded)")
	return cmd
}

func newPhaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Work with individual recovery phases",
	}

	var listStrategy string
	list := &cobra.Command{
		Use:   "list <module>",
		Short: "Show the recovery plan for a module without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunPhaseList(opts(), args[0], listStrategy, cmd.OutOrStdout())
		},
	}
	list.Flags().StringVarP(&listStrategy, "strategy", "s", "", "recovery strategy (default: assessor recommendation)")

	var (
		runStrategy string
		runDryRun   bool
		runParallel bool
		runForce    bool
	)
	run := &cobra.Command{
		Use:   "run <module> <phase>",
		Short: "Execute a single recovery phase on a fresh session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunPhaseRun(opts(), args[0], args[1], runStrategy, runDryRun, runParallel, runForce, cmd.OutOrStdout())
		},
	}
	run.Flags().StringVarP(&runStrategy, "strategy", "s", "", "recovery strategy (default: assessor recommendation)")
	run.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate every task without touching files")
	run.Flags().BoolVar(&runParallel, "parallel", false, "execute phase tasks in bounded-concurrency batches")
	run.Flags().BoolVar(&runForce, "force", false, "continue past task failures")

	cancel := &cobra.Command{
		Use:   "cancel <session> <execution>",
		Short: "Cancel an active phase execution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunPhaseCancel(opts(), args[0], args[1], cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(list, run, cancel)
	return cmd
}

func newPredictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <module> <strategy>",
		Short: "Predict the outcome of a recovery strategy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunPredict(opts(), args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func newReportCmd() *cobra.Command {
	var timeframe time.Duration
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the system-wide recovery report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunReport(opts(), timeframe, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeframe, "timeframe", 7*24*time.Hour, "trailing window covered by the report")
	return cmd
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the known workspace modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range workspace.KnownModules() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", id, workspace.ModuleCategory(id))
			}
			return nil
		},
	}
}
