// Package orchestrator wires the workspace analyzer, the phased recovery
// engine, and analytics into the recovery service callers interact with.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/workspacedoctor/workspace-doctor/internal/analytics"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
	"github.com/workspacedoctor/workspace-doctor/internal/recovery"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

// Reporter forwards recovery progress to an external channel (chat, CI
// status, webhooks). Delivery is out of scope here; the orchestrator only
// calls it best-effort.
type Reporter interface {
	ReportProgress(sessionID string, report *recovery.ProgressReport) error
}

// RecoverOptions tunes one RecoverModule invocation.
type RecoverOptions struct {
	// Strategy overrides the assessor's recommendation when non-empty.
	Strategy health.Strategy
	// TargetHealthScore overrides the configured recovery target.
	TargetHealthScore int
	// DryRun simulates every task with nominal improvements.
	DryRun bool
	// Parallel executes phase tasks in bounded-concurrency batches.
	Parallel bool
	// ForceExecution continues past task failures.
	ForceExecution bool
	// Timeout bounds the whole operation; zero means unbounded.
	Timeout time.Duration
}

// RecoverOutcome is the result of one orchestrated module recovery.
type RecoverOutcome struct {
	OperationID string                    `json:"operation_id"`
	SessionID   string                    `json:"session_id"`
	ModuleID    string                    `json:"module_id"`
	Strategy    health.Strategy           `json:"strategy"`
	Success     bool                      `json:"success"`
	Result      *recovery.RecoveryResult  `json:"result"`
	Session     *recovery.RecoverySession `json:"session"`
}

// Service is the top-level orchestrator. One Service instance owns its
// session registry; nothing is package-global.
type Service struct {
	ws       *workspace.Workspace
	cfg      workspace.Config
	cache    *workspace.AnalysisCache
	analyzer *health.Analyzer
	assessor *health.Assessor
	metrics  *analytics.Analytics
	reporter Reporter
	watcher  *workspace.Watcher
	log      *logrus.Logger

	mu        sync.Mutex
	sessions  map[string]*recovery.RecoverySession
	executors map[string]*recovery.Executor
}

// New opens the workspace described by the configuration and assembles the
// service. The analytics store is rooted at the configured analytics
// directory under the workspace root.
func New(root string, cfg workspace.Config, log *logrus.Logger) (*Service, error) {
	if log == nil {
		log = logrus.New()
	}
	cfg.Normalize()

	ws, err := workspace.OpenDir(root, cfg.PackagesDir)
	if err != nil {
		return nil, err
	}

	cache := workspace.NewAnalysisCache(cfg.CacheTTL, 64)
	store := analytics.NewStore(filepath.Join(root, cfg.AnalyticsDir))

	return &Service{
		ws:        ws,
		cfg:       cfg,
		cache:     cache,
		analyzer:  health.NewAnalyzer(ws, cache, log),
		assessor:  health.NewAssessor(ws, log),
		metrics:   analytics.New(store, log),
		log:       log,
		sessions:  make(map[string]*recovery.RecoverySession),
		executors: make(map[string]*recovery.Executor),
	}, nil
}

// SetReporter installs the optional progress reporter.
func (s *Service) SetReporter(r Reporter) { s.reporter = r }

// Analytics exposes the analytics recorder for queries.
func (s *Service) Analytics() *analytics.Analytics { return s.metrics }

// Workspace exposes the underlying workspace client.
func (s *Service) Workspace() *workspace.Workspace { return s.ws }

// Cache exposes the analysis cache for stats and invalidation.
func (s *Service) Cache() *workspace.AnalysisCache { return s.cache }

// AnalyzeWorkspace assesses the requested modules (all known modules when
// empty) and aggregates workspace health.
func (s *Service) AnalyzeWorkspace(modules []string, useCache bool) (*health.WorkspaceHealth, error) {
	return s.analyzer.AnalyzeWorkspace(health.AnalyzeOptions{
		Modules:  modules,
		UseCache: useCache,
	})
}

// AnalyzeModule assesses a single module.
func (s *Service) AnalyzeModule(moduleID string, useCache bool) (*health.ModuleState, error) {
	return s.analyzer.AnalyzeModule(moduleID, useCache)
}

// ValidateConfiguration runs the advisory workspace-level configuration
// check.
func (s *Service) ValidateConfiguration() *health.ConfigValidation {
	return s.analyzer.ValidateConfiguration()
}

// RecoverModule runs the full recovery pipeline for one module: initial
// assessment, strategy selection, plan construction, phase-by-phase
// execution, final assessment, and analytics recording. Analytics failures
// never fail the operation.
func (s *Service) RecoverModule(ctx context.Context, moduleID string, opts RecoverOptions) (*RecoverOutcome, error) {
	if !workspace.IsKnownModule(moduleID) {
		return nil, &workspace.InvalidModuleError{ModuleID: moduleID}
	}

	initial, err := s.assessor.AnalyzeModule(moduleID)
	if err != nil {
		return nil, fmt.Errorf("initial assessment of %s: %w", moduleID, err)
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = initial.Recovery.RecoveryStrategy
	}
	target := opts.TargetHealthScore
	if target <= 0 {
		target = s.cfg.TargetHealthScore
	}

	session, executor := s.registerSession(moduleID, strategy, initial.HealthScore)
	plan := session.Plan

	s.log.WithFields(logrus.Fields{
		"module":   moduleID,
		"session":  session.ID,
		"strategy": strategy,
		"score":    initial.HealthScore,
		"dry_run":  opts.DryRun,
	}).Info("starting module recovery")

	execOpts := recovery.ExecuteOptions{
		DryRun:         opts.DryRun,
		Parallel:       opts.Parallel,
		MaxConcurrency: s.cfg.MaxConcurrency,
		ForceExecution: opts.ForceExecution,
		Timeout:        opts.Timeout,
	}

	start := time.Now()
	var execErr error
	for _, phase := range plan.Phases {
		if _, err := executor.ExecutePhase(ctx, phase.PhaseID, execOpts); err != nil {
			execErr = err
			s.log.WithError(err).WithFields(logrus.Fields{
				"session": session.ID,
				"phase":   phase.PhaseID,
			}).Warn("phase execution stopped the recovery")
			break
		}
		s.reportProgress(session.ID, executor)
	}

	result := s.buildResult(moduleID, strategy, initial, session, start, opts.DryRun)
	result.Success = execErr == nil &&
		session.Status == recovery.SessionCompleted &&
		result.FinalHealthScore >= target

	operationID := uuid.NewString()
	rctx := recovery.RecoveryContext{
		TargetHealthScore: target,
		TimeoutMs:         opts.Timeout.Milliseconds(),
		DryRun:            opts.DryRun,
	}
	s.metrics.RecordOperation(operationID, moduleID, strategy, result, rctx)

	// Recovery mutates module state; cached snapshots are stale now.
	s.cache.Invalidate(moduleID)

	outcome := &RecoverOutcome{
		OperationID: operationID,
		SessionID:   session.ID,
		ModuleID:    moduleID,
		Strategy:    strategy,
		Success:     result.Success,
		Result:      result,
		Session:     session,
	}
	return outcome, execErr
}

// StartSession assesses the module, builds the strategy plan, and registers
// a session without executing anything. Callers drive individual phases
// through ExecutePhase afterwards. An empty strategy takes the assessor's
// recommendation.
func (s *Service) StartSession(moduleID string, strategy health.Strategy) (*recovery.RecoverySession, error) {
	if !workspace.IsKnownModule(moduleID) {
		return nil, &workspace.InvalidModuleError{ModuleID: moduleID}
	}

	initial, err := s.assessor.AnalyzeModule(moduleID)
	if err != nil {
		return nil, fmt.Errorf("initial assessment of %s: %w", moduleID, err)
	}
	if strategy == "" {
		strategy = initial.Recovery.RecoveryStrategy
	}

	session, _ := s.registerSession(moduleID, strategy, initial.HealthScore)
	return session, nil
}

func (s *Service) registerSession(moduleID string, strategy health.Strategy, initialScore int) (*recovery.RecoverySession, *recovery.Executor) {
	plan := recovery.BuildPlan(moduleID, strategy)
	session := recovery.NewSession(moduleID, plan, initialScore)
	executor := s.newExecutor(session)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.executors[session.ID] = executor
	s.mu.Unlock()
	return session, executor
}

// newExecutor assembles the executor with the default collaborators and the
// current configuration gate snapshot.
func (s *Service) newExecutor(session *recovery.RecoverySession) *recovery.Executor {
	recoverer := recovery.NewWorkspaceRecoverer(s.ws, s.log)
	validator := recovery.NewWorkspaceValidator(s.ws, s.log)
	handlers := recovery.NewTaskHandlers(s.ws, recoverer, validator, s.log)

	executor := recovery.NewExecutor(session, handlers, s.log)

	validation := s.analyzer.ValidateConfiguration()
	executor.SetGateSnapshot(recovery.GateSnapshot{
		CriticalConfigErrors: len(validation.Errors),
		CollectedAt:          time.Now(),
	})
	return executor
}

// buildResult folds the executed session into a RecoveryResult, re-assessing
// the module outside dry-run for the final score.
func (s *Service) buildResult(moduleID string, strategy health.Strategy, initial *health.ModuleState, session *recovery.RecoverySession, start time.Time, dryRun bool) *recovery.RecoveryResult {
	result := &recovery.RecoveryResult{
		ModuleID:           moduleID,
		Strategy:           strategy,
		Phases:             session.Plan.Phases,
		InitialHealthScore: initial.HealthScore,
		StartTime:          start,
		ExecutionTime:      time.Since(start),
		TotalErrors:        len(initial.CriticalErrors) + len(initial.NonCriticalErrors),
	}

	if dryRun {
		result.FinalHealthScore = session.CurrentHealthScore
		result.HealthImprovement = session.HealthImprovement
		return result
	}

	final, err := s.assessor.AnalyzeModule(moduleID)
	if err != nil {
		s.log.WithError(err).WithField("module", moduleID).
			Warn("final assessment failed; keeping session score")
		result.FinalHealthScore = session.CurrentHealthScore
		result.HealthImprovement = session.HealthImprovement
		return result
	}

	result.FinalHealthScore = final.HealthScore
	result.HealthImprovement = final.HealthScore - initial.HealthScore
	remaining := len(final.CriticalErrors) + len(final.NonCriticalErrors)
	result.ErrorsResolved = result.TotalErrors - remaining
	return result
}

// ExecutePhase runs a single phase of an existing session.
func (s *Service) ExecutePhase(ctx context.Context, sessionID, phaseID string, opts recovery.ExecuteOptions) (*recovery.PhaseExecutionResult, error) {
	executor, err := s.executor(sessionID)
	if err != nil {
		return nil, err
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = s.cfg.MaxConcurrency
	}
	result, execErr := executor.ExecutePhase(ctx, phaseID, opts)
	if result != nil {
		s.reportProgress(sessionID, executor)
	}
	return result, execErr
}

// CancelPhase cancels an in-flight phase execution of a session.
func (s *Service) CancelPhase(sessionID, executionID string) (recovery.CancelResult, error) {
	executor, err := s.executor(sessionID)
	if err != nil {
		return recovery.CancelResult{}, err
	}
	return executor.CancelPhase(executionID), nil
}

// ActiveExecutions lists the phase executions registered on a session,
// in-flight ones included, so callers can target CancelPhase at a live
// execution id.
func (s *Service) ActiveExecutions(sessionID string) ([]recovery.ExecutionStatus, error) {
	executor, err := s.executor(sessionID)
	if err != nil {
		return nil, err
	}
	return executor.ActiveExecutions(), nil
}

// GetProgress projects the current progress of a session.
func (s *Service) GetProgress(sessionID string) (*recovery.ProgressReport, error) {
	executor, err := s.executor(sessionID)
	if err != nil {
		return nil, err
	}
	return executor.MonitorProgress(), nil
}

// GetPhases returns the plan phases of a session.
func (s *Service) GetPhases(sessionID string) ([]*recovery.RecoveryPhase, error) {
	executor, err := s.executor(sessionID)
	if err != nil {
		return nil, err
	}
	return executor.GetPhases(), nil
}

// Session returns a registered session by id.
func (s *Service) Session(sessionID string) (*recovery.RecoverySession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Sessions returns all registered sessions.
func (s *Service) Sessions() []*recovery.RecoverySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*recovery.RecoverySession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// Predict estimates the outcome of applying a strategy to a module.
func (s *Service) Predict(moduleID string, strategy health.Strategy) (*analytics.RecoveryPrediction, error) {
	if !workspace.IsKnownModule(moduleID) {
		return nil, &workspace.InvalidModuleError{ModuleID: moduleID}
	}
	return s.metrics.PredictOutcome(moduleID, strategy), nil
}

// Report generates the system-wide analytics report over the timeframe.
func (s *Service) Report(timeframe time.Duration) *analytics.SystemReport {
	return s.metrics.GenerateSystemReport(timeframe)
}

// StartWatcher begins invalidating cached analysis snapshots on module file
// changes. Long-running callers opt in; the one-shot CLI commands never need
// it.
func (s *Service) StartWatcher() error {
	if s.watcher != nil {
		return nil
	}
	watcher, err := workspace.NewWatcher(s.ws, s.cache, s.log)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	return nil
}

// Close releases background resources.
func (s *Service) Close() {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.log.WithError(err).Warn("closing workspace watcher")
		}
		s.watcher = nil
	}
	s.cache.Stop()
}

func (s *Service) executor(sessionID string) (*recovery.Executor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	executor, ok := s.executors[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q not found", sessionID)
	}
	return executor, nil
}

func (s *Service) reportProgress(sessionID string, executor *recovery.Executor) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.ReportProgress(sessionID, executor.MonitorProgress()); err != nil {
		s.log.WithError(err).WithField("session", sessionID).
			Debug("progress reporter failed")
	}
}
