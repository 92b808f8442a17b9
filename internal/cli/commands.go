// Package cli provides testable command implementations for the Workspace
// Doctor CLI.
//
// The command logic lives here rather than in main.go so it can be driven
// from tests with an injected writer. main.go creates cobra commands that
// delegate to these implementations.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/workspacedoctor/workspace-doctor/internal/analytics"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
	"github.com/workspacedoctor/workspace-doctor/internal/orchestrator"
	"github.com/workspacedoctor/workspace-doctor/internal/recovery"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
	"gopkg.in/yaml.v3"
)

// Options carries the global CLI settings shared by all commands.
type Options struct {
	Root         string
	OutputFormat string
	Verbose      bool
}

// NewLogger builds the CLI logger at the verbosity the flags asked for.
func NewLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// NewService loads the workspace configuration and assembles the recovery
// service for one command invocation.
func NewService(opts Options, log *logrus.Logger) (*orchestrator.Service, error) {
	cfg, err := workspace.LoadConfig(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("loading workspace configuration: %w", err)
	}
	return orchestrator.New(opts.Root, cfg, log)
}

// RunAnalyze assesses the workspace (or the listed modules) and writes the
// aggregated health in the requested format.
func RunAnalyze(opts Options, modules []string, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.AnalyzeWorkspace(modules, true)
	if err != nil {
		return fmt.Errorf("workspace analysis failed: %w", err)
	}

	return Output(result, opts.OutputFormat, writer, func(w io.Writer) error {
		return workspaceTable(result, opts.Verbose, w)
	})
}

// RunValidate runs the advisory workspace configuration check.
func RunValidate(opts Options, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	result := svc.ValidateConfiguration()
	return Output(result, opts.OutputFormat, writer, func(w io.Writer) error {
		return validationTable(result, w)
	})
}

// RunRecover drives a full module recovery and writes the outcome.
func RunRecover(opts Options, moduleID, strategy string, dryRun, parallel, force bool, timeout time.Duration, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if opts.Verbose {
		fmt.Fprintf(writer, "Recovering module %s (dry-run=%v)...\n", moduleID, dryRun)
	}

	outcome, execErr := svc.RecoverModule(ctx, moduleID, orchestrator.RecoverOptions{
		Strategy:       health.Strategy(strategy),
		DryRun:         dryRun,
		Parallel:       parallel,
		ForceExecution: force,
		Timeout:        timeout,
	})
	if outcome == nil {
		return fmt.Errorf("module recovery failed: %w", execErr)
	}

	if err := Output(outcome, opts.OutputFormat, writer, func(w io.Writer) error {
		return recoverTable(outcome, w)
	}); err != nil {
		return err
	}
	return execErr
}

// RunPredict writes the outcome prediction for applying a strategy to a
// module.
func RunPredict(opts Options, moduleID, strategy string, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	prediction, err := svc.Predict(moduleID, health.Strategy(strategy))
	if err != nil {
		return err
	}

	return Output(prediction, opts.OutputFormat, writer, func(w io.Writer) error {
		return predictionTable(prediction, w)
	})
}

// RunPhaseList starts a session for the module and writes its phase plan
// without executing anything.
func RunPhaseList(opts Options, moduleID, strategy string, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	session, err := svc.StartSession(moduleID, health.Strategy(strategy))
	if err != nil {
		return err
	}

	return Output(session, opts.OutputFormat, writer, func(w io.Writer) error {
		return phaseListTable(session, w)
	})
}

// RunPhaseRun starts a session for the module and executes exactly one phase
// of its plan. Prerequisite gates still apply, so running a later phase on a
// fresh session fails unless its dependencies are already satisfied.
func RunPhaseRun(opts Options, moduleID, phaseID, strategy string, dryRun, parallel, force bool, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	session, err := svc.StartSession(moduleID, health.Strategy(strategy))
	if err != nil {
		return err
	}

	result, execErr := svc.ExecutePhase(context.Background(), session.ID, phaseID, recovery.ExecuteOptions{
		DryRun:         dryRun,
		Parallel:       parallel,
		ForceExecution: force,
	})
	if result == nil {
		return fmt.Errorf("phase execution failed: %w", execErr)
	}

	if err := Output(result, opts.OutputFormat, writer, func(w io.Writer) error {
		return phaseResultTable(result, w)
	}); err != nil {
		return err
	}
	return execErr
}

// RunPhaseCancel requests cancellation of an active phase execution inside a
// registered session.
func RunPhaseCancel(opts Options, sessionID, executionID string, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.CancelPhase(sessionID, executionID)
	if err != nil {
		return err
	}

	return Output(result, opts.OutputFormat, writer, func(w io.Writer) error {
		return cancelTable(result, w)
	})
}

// RunReport generates the system-wide analytics report for the timeframe.
func RunReport(opts Options, timeframe time.Duration, writer io.Writer) error {
	log := NewLogger(opts.Verbose)
	svc, err := NewService(opts, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	report := svc.Report(timeframe)
	return Output(report, opts.OutputFormat, writer, func(w io.Writer) error {
		return reportTable(report, w)
	})
}

// Output marshals the value in the requested format; the table renderer is
// supplied per value type.
func Output(v interface{}, format string, writer io.Writer, table func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	case "table", "":
		return table(writer)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func workspaceTable(h *health.WorkspaceHealth, verbose bool, writer io.Writer) error {
	fmt.Fprintln(writer, "🩺 Workspace Doctor - Health Analysis")
	fmt.Fprintln(writer, "====================================================")
	fmt.Fprintln(writer)

	fmt.Fprintln(writer, "📊 Summary:")
	fmt.Fprintf(writer, "  Modules Analyzed: %d\n", len(h.Modules))
	fmt.Fprintf(writer, "  Overall Health Score: %d/100\n", h.OverallHealthScore)
	fmt.Fprintf(writer, "  Modules Needing Recovery: %d\n\n", len(h.ModulesNeedingRecovery()))

	if len(h.CriticalIssues) > 0 {
		fmt.Fprintln(writer, "🚨 Critical Issues:")
		for _, issue := range h.CriticalIssues {
			fmt.Fprintf(writer, "  • %s\n", issue)
		}
		fmt.Fprintln(writer)
	}

	fmt.Fprintln(writer, "📋 Module Health:")
	ids := make([]string, 0, len(h.Modules))
	for id := range h.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		state := h.Modules[id]
		marker := "✅"
		switch state.Status {
		case health.StatusDegraded:
			marker = "⚠️ "
		case health.StatusCritical, health.StatusFailed:
			marker = "❌"
		}
		fmt.Fprintf(writer, "  %s %-18s score=%-3d status=%-8s strategy=%s\n",
			marker, id, state.HealthScore, state.Status, state.Recovery.RecoveryStrategy)

		if verbose {
			for _, issue := range state.CriticalErrors {
				fmt.Fprintf(writer, "      • %s\n", issue.Message)
			}
			for _, issue := range state.NonCriticalErrors {
				fmt.Fprintf(writer, "      • %s\n", issue.Message)
			}
		}
	}
	fmt.Fprintln(writer)

	if len(h.Recommendations) > 0 {
		fmt.Fprintln(writer, "💡 Recommendations:")
		for _, rec := range h.Recommendations {
			fmt.Fprintf(writer, "  • %s\n", rec)
		}
	}
	return nil
}

func validationTable(v *health.ConfigValidation, writer io.Writer) error {
	status := "✅ VALID"
	if !v.Valid {
		status = "❌ INVALID"
	}
	fmt.Fprintf(writer, "🧾 Workspace Configuration: %s\n\n", status)

	if len(v.Errors) > 0 {
		fmt.Fprintln(writer, "Errors:")
		for _, e := range v.Errors {
			fmt.Fprintf(writer, "  • %s\n", e)
		}
	}
	if len(v.Warnings) > 0 {
		fmt.Fprintln(writer, "Warnings:")
		for _, w := range v.Warnings {
			fmt.Fprintf(writer, "  • %s\n", w)
		}
	}
	if len(v.Recommendations) > 0 {
		fmt.Fprintln(writer, "Recommendations:")
		for _, r := range v.Recommendations {
			fmt.Fprintf(writer, "  • %s\n", r)
		}
	}
	return nil
}

func recoverTable(o *orchestrator.RecoverOutcome, writer io.Writer) error {
	status := "✅ SUCCESS"
	if !o.Success {
		status = "❌ FAILED"
	}
	fmt.Fprintf(writer, "🔧 Recovery of %s: %s\n", o.ModuleID, status)
	fmt.Fprintln(writer, "====================================================")
	fmt.Fprintf(writer, "  Strategy: %s\n", o.Strategy)
	fmt.Fprintf(writer, "  Session: %s\n", o.SessionID)
	fmt.Fprintf(writer, "  Health: %d -> %d (improvement %+d)\n",
		o.Result.InitialHealthScore, o.Result.FinalHealthScore, o.Result.HealthImprovement)
	fmt.Fprintf(writer, "  Duration: %v\n", o.Result.ExecutionTime)
	fmt.Fprintf(writer, "  Progress: %d%%\n\n", o.Session.OverallProgress)

	fmt.Fprintln(writer, "📋 Phases:")
	for _, phase := range o.Session.Plan.Phases {
		marker := "✅"
		switch phase.Status {
		case "failed":
			marker = "❌"
		case "cancelled":
			marker = "🚫"
		case "pending", "ready":
			marker = "⏳"
		}
		fmt.Fprintf(writer, "  %s %-16s %s (%d/%d tasks, %+d health)\n",
			marker, phase.PhaseID, phase.Status, phase.CompletedTasks, phase.TotalTasks, phase.HealthImprovement)
	}
	return nil
}

func phaseListTable(s *recovery.RecoverySession, writer io.Writer) error {
	fmt.Fprintf(writer, "📋 Recovery plan for %s (session %s)\n", s.ModuleID, s.ID)
	fmt.Fprintln(writer, "====================================================")
	for _, phase := range s.Plan.Phases {
		fmt.Fprintf(writer, "  %-16s %-14s ~%v  %d tasks\n",
			phase.PhaseID, phase.PhaseType, phase.EstimatedDuration, phase.TotalTasks)
		if len(phase.DependsOn) > 0 {
			fmt.Fprintf(writer, "      depends on: %s\n", strings.Join(phase.DependsOn, ", "))
		}
		for _, task := range phase.Tasks {
			fmt.Fprintf(writer, "      • %s (%s)\n", task.TaskName, task.TaskType)
		}
	}
	return nil
}

func phaseResultTable(r *recovery.PhaseExecutionResult, writer io.Writer) error {
	marker := "✅"
	if r.Status != recovery.PhaseCompleted {
		marker = "❌"
	}
	fmt.Fprintf(writer, "%s Phase %s: %s\n", marker, r.PhaseID, r.Status)
	fmt.Fprintf(writer, "  Execution: %s\n", r.ExecutionID)
	fmt.Fprintf(writer, "  Tasks: %d executed, %d succeeded, %d failed\n",
		r.TasksExecuted, r.TasksSucceeded, r.TasksFailed)
	fmt.Fprintf(writer, "  Health Improvement: %+d\n", r.HealthImprovement)
	fmt.Fprintf(writer, "  Duration: %v\n", r.Duration)
	return nil
}

func cancelTable(r recovery.CancelResult, writer io.Writer) error {
	if r.Cancelled {
		fmt.Fprintln(writer, "🚫 Phase execution cancellation requested")
		return nil
	}
	fmt.Fprintf(writer, "Phase execution not cancelled: %s\n", r.Reason)
	return nil
}

func predictionTable(p *analytics.RecoveryPrediction, writer io.Writer) error {
	fmt.Fprintf(writer, "🔮 Prediction for %s with strategy %s\n", p.ModuleID, p.Strategy)
	fmt.Fprintln(writer, "====================================================")
	fmt.Fprintf(writer, "  Success Rate: %.0f%%\n", p.PredictedSuccessRate*100)
	fmt.Fprintf(writer, "  Duration: %v\n", p.PredictedDuration)
	fmt.Fprintf(writer, "  Health Improvement: %.0f points\n", p.PredictedHealthImprovement)
	fmt.Fprintf(writer, "  Confidence: %.0f%%\n\n", p.Confidence*100)

	if len(p.RiskFactors) > 0 {
		fmt.Fprintln(writer, "⚠️  Risk Factors:")
		for _, risk := range p.RiskFactors {
			fmt.Fprintf(writer, "  • %s\n", risk)
		}
		fmt.Fprintln(writer)
	}

	if len(p.Alternatives) > 0 {
		fmt.Fprintln(writer, "🔀 Alternatives:")
		for _, alt := range p.Alternatives {
			fmt.Fprintf(writer, "  %s: predicted %.0f%% success (%d past operations)\n",
				alt.Strategy, alt.PredictedSuccessRate*100, alt.OperationCount)
		}
	}
	return nil
}

func reportTable(r *analytics.SystemReport, writer io.Writer) error {
	fmt.Fprintf(writer, "📈 Recovery Report (%v window)\n", r.Timeframe)
	fmt.Fprintln(writer, "====================================================")
	fmt.Fprintf(writer, "  Operations: %d (✅ %d / ❌ %d)\n",
		r.Summary.TotalOperations, r.Summary.SuccessfulOperations, r.Summary.FailedOperations)
	fmt.Fprintf(writer, "  Success Rate: %.0f%%\n", r.Summary.OverallSuccessRate*100)
	fmt.Fprintf(writer, "  Average Duration: %v\n", r.Summary.AverageDuration)
	fmt.Fprintf(writer, "  Average Improvement: %.1f points\n", r.Summary.AverageHealthImprovement)
	fmt.Fprintf(writer, "  Modules Covered: %d\n\n", r.Summary.ModulesCovered)

	if len(r.Insights) > 0 {
		fmt.Fprintln(writer, "💡 Insights:")
		for _, insight := range r.Insights {
			fmt.Fprintf(writer, "  • [%s] %s\n", insight.Severity, insight.Message)
		}
		fmt.Fprintln(writer)
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(writer, "📌 Recommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(writer, "  • %s\n", rec)
		}
	}
	return nil
}
