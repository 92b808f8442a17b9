package recovery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxStabilizationConfigErrors is the stabilization gate: the workspace may
// carry at most this many critical configuration errors before a
// stabilization phase is allowed to run.
const maxStabilizationConfigErrors = 5

// minImplementationImprovement is the implementation gate: prior phases
// must have accumulated at least this much health improvement.
const minImplementationImprovement = 20

// ExecuteOptions tunes one ExecutePhase invocation.
type ExecuteOptions struct {
	// SkipValidation bypasses prerequisite and type-gate checks.
	SkipValidation bool
	// ForceExecution continues past task failures and demotes failed
	// validation criteria to warnings.
	ForceExecution bool
	// Parallel dispatches tasks in bounded-concurrency batches instead of
	// strict order.
	Parallel bool
	// MaxConcurrency bounds batch width in parallel mode (default 4).
	MaxConcurrency int
	// Timeout bounds the phase execution time; zero means unbounded.
	Timeout time.Duration
	// DryRun makes every task return a synthetic success with its fixed
	// nominal health improvement.
	DryRun bool
}

// GateSnapshot is the workspace analyzer output the executor validates
// phase-type gates against.
type GateSnapshot struct {
	CriticalConfigErrors int       `json:"critical_config_errors"`
	CollectedAt          time.Time `json:"collected_at"`
}

// activeExecution tracks one in-flight or finished ExecutePhase call.
type activeExecution struct {
	ID        string
	PhaseID   string
	StartTime time.Time
	cancelled atomic.Bool
	done      atomic.Bool
}

// Executor drives one RecoverySession through its recovery plan. The
// session is exclusively owned: no other component mutates it.
type Executor struct {
	session  *RecoverySession
	handlers *TaskHandlers
	pool     *BatchPool
	policy   PhaseSuccessPolicy
	log      *logrus.Logger

	mu               sync.Mutex
	gate             *GateSnapshot
	activeExecutions map[string]*activeExecution
}

// NewExecutor creates an executor owning the given session.
func NewExecutor(session *RecoverySession, handlers *TaskHandlers, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Executor{
		session:          session,
		handlers:         handlers,
		pool:             NewBatchPool(DefaultMaxConcurrency),
		policy:           DefaultPhaseSuccessPolicy,
		log:              log,
		activeExecutions: make(map[string]*activeExecution),
	}
}

// SetPolicy overrides the phase success policy.
func (e *Executor) SetPolicy(p PhaseSuccessPolicy) { e.policy = p }

// SetGateSnapshot installs the workspace analyzer output used by the
// stabilization type gate.
func (e *Executor) SetGateSnapshot(g GateSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = &g
}

// Session returns the owned session for read-only inspection.
func (e *Executor) Session() *RecoverySession { return e.session }

// ExecutePhase validates prerequisites, runs the phase's tasks, and updates
// phase and session aggregates. Prerequisite violations abort before any
// task runs and leave the phase status unchanged; timeouts mark the phase
// failed. Both propagate as errors.
func (e *Executor) ExecutePhase(ctx context.Context, phaseID string, opts ExecuteOptions) (*PhaseExecutionResult, error) {
	phase, ok := e.session.Plan.Phase(phaseID)
	if !ok {
		return nil, NewPhaseNotFoundError(phaseID)
	}

	if !opts.SkipValidation {
		if err := e.validatePrerequisites(phase); err != nil {
			return nil, err
		}
	}

	exec := &activeExecution{
		ID:        uuid.NewString(),
		PhaseID:   phaseID,
		StartTime: time.Now(),
	}
	e.mu.Lock()
	e.activeExecutions[exec.ID] = exec
	e.mu.Unlock()
	defer exec.done.Store(true)

	start := time.Now()
	phase.Status = PhaseExecuting
	phase.StartTime = &start
	e.session.Status = SessionExecuting
	e.session.CurrentPhase = phaseID

	e.log.WithFields(logrus.Fields{
		"session":  e.session.ID,
		"phase":    phaseID,
		"parallel": opts.Parallel,
		"dry_run":  opts.DryRun,
	}).Info("executing phase")

	result := &PhaseExecutionResult{
		ExecutionID: exec.ID,
		PhaseID:     phaseID,
		TaskResults: make([]*TaskExecutionResult, 0, len(phase.Tasks)),
	}

	var execErr error
	if opts.Parallel {
		execErr = e.runParallel(ctx, exec, phase, opts, result)
	} else {
		execErr = e.runSequential(ctx, exec, phase, opts, result)
	}

	e.finishPhase(exec, phase, result, execErr)
	return result, execErr
}

// validatePrerequisites applies the dependency/blocker rule and the
// phase-type gates. Violations return *RecoveryError values; nothing is
// thrown and no state changes.
func (e *Executor) validatePrerequisites(phase *RecoveryPhase) error {
	for _, depID := range phase.DependsOn {
		dep, ok := e.session.Plan.Phase(depID)
		if !ok {
			return NewPrerequisiteError(phase.PhaseID,
				fmt.Sprintf("dependency %q not found in plan", depID))
		}
		if dep.Status != PhaseCompleted {
			return NewPrerequisiteError(phase.PhaseID,
				fmt.Sprintf("dependency %q is %s, must be completed", depID, dep.Status))
		}
	}

	for _, blockerID := range phase.BlockedBy {
		blocker, ok := e.session.Plan.Phase(blockerID)
		if !ok {
			continue
		}
		if blocker.Status.IsActive() {
			return NewPrerequisiteError(phase.PhaseID,
				fmt.Sprintf("blocked by %q which is %s", blockerID, blocker.Status))
		}
	}

	switch phase.PhaseType {
	case PhaseStabilization:
		e.mu.Lock()
		gate := e.gate
		e.mu.Unlock()
		if gate != nil && gate.CriticalConfigErrors > maxStabilizationConfigErrors {
			return NewPrerequisiteError(phase.PhaseID,
				fmt.Sprintf("workspace has %d critical configuration errors (max %d)",
					gate.CriticalConfigErrors, maxStabilizationConfigErrors))
		}

	case PhaseImplementation:
		improvement := e.priorImprovement(phase)
		if improvement < minImplementationImprovement {
			return NewPrerequisiteError(phase.PhaseID,
				fmt.Sprintf("prior phases improved health by %d, need at least %d",
					improvement, minImplementationImprovement))
		}

	case PhaseValidation:
		for _, prior := range e.priorPhases(phase) {
			if prior.PhaseType == PhaseImplementation && prior.Status != PhaseCompleted {
				return NewPrerequisiteError(phase.PhaseID,
					fmt.Sprintf("implementation phase %q is %s, must be completed",
						prior.PhaseID, prior.Status))
			}
		}
	}

	return nil
}

// priorPhases returns the plan phases ordered before the given one.
func (e *Executor) priorPhases(phase *RecoveryPhase) []*RecoveryPhase {
	var out []*RecoveryPhase
	for _, p := range e.session.Plan.Phases {
		if p.PhaseID == phase.PhaseID {
			break
		}
		out = append(out, p)
	}
	return out
}

func (e *Executor) priorImprovement(phase *RecoveryPhase) int {
	total := 0
	for _, p := range e.priorPhases(phase) {
		total += p.HealthImprovement
	}
	return total
}

// runSequential iterates tasks in strict order. Without force execution the
// loop stops at the first failing task; after every task the elapsed time
// is checked against the phase timeout.
func (e *Executor) runSequential(ctx context.Context, exec *activeExecution, phase *RecoveryPhase, opts ExecuteOptions, result *PhaseExecutionResult) error {
	for _, task := range phase.Tasks {
		if exec.cancelled.Load() {
			return nil
		}

		taskResult, err := e.handlers.ExecuteTask(ctx, task, opts)
		if err != nil {
			taskResult = &TaskExecutionResult{
				TaskID:      task.TaskID,
				TaskType:    task.TaskType,
				Success:     false,
				ErrorOutput: err.Error(),
			}
			task.Status = TaskFailed
		}
		e.collect(phase, result, taskResult)

		if opts.Timeout > 0 {
			if elapsed := time.Since(exec.StartTime); elapsed > opts.Timeout {
				return NewTimeoutError(phase.PhaseID, elapsed, opts.Timeout)
			}
		}

		if !taskResult.Success && !opts.ForceExecution {
			return nil
		}
	}
	return nil
}

// runParallel partitions tasks into order-preserving batches and dispatches
// each batch with all-settle semantics. Without force execution, a batch
// containing any failure stops the phase before the next batch.
func (e *Executor) runParallel(ctx context.Context, exec *activeExecution, phase *RecoveryPhase, opts ExecuteOptions, result *PhaseExecutionResult) error {
	width := opts.MaxConcurrency
	if width <= 0 {
		width = e.pool.MaxConcurrency()
	}

	batches := PartitionTasks(phase.Tasks, width)
	for _, batch := range batches {
		if exec.cancelled.Load() {
			return nil
		}

		batchResults := e.pool.RunBatch(ctx, batch, func(ctx context.Context, task *RecoveryTask) (*TaskExecutionResult, error) {
			return e.handlers.ExecuteTask(ctx, task, opts)
		})

		failures := 0
		for _, tr := range batchResults {
			e.collect(phase, result, tr)
			if !tr.Success {
				failures++
			}
		}

		if opts.Timeout > 0 {
			if elapsed := time.Since(exec.StartTime); elapsed > opts.Timeout {
				return NewTimeoutError(phase.PhaseID, elapsed, opts.Timeout)
			}
		}

		if failures > 0 && !opts.ForceExecution {
			return nil
		}
	}
	return nil
}

// collect folds one task result into the phase and execution aggregates.
func (e *Executor) collect(phase *RecoveryPhase, result *PhaseExecutionResult, tr *TaskExecutionResult) {
	result.TaskResults = append(result.TaskResults, tr)
	result.TasksExecuted++
	if tr.Success {
		result.TasksSucceeded++
		phase.CompletedTasks++
		phase.HealthImprovement += tr.HealthImprovement
		result.HealthImprovement += tr.HealthImprovement
	} else {
		result.TasksFailed++
	}
}

// finishPhase derives the final phase status, stamps timings, and rolls the
// outcome up into the session.
func (e *Executor) finishPhase(exec *activeExecution, phase *RecoveryPhase, result *PhaseExecutionResult, execErr error) {
	end := time.Now()
	phase.EndTime = &end
	if phase.StartTime != nil {
		phase.Duration = end.Sub(*phase.StartTime)
	}
	result.Duration = phase.Duration

	switch {
	case exec.cancelled.Load():
		e.cleanupPhase(phase)
		phase.Status = PhaseCancelled
	case execErr != nil:
		phase.Status = PhaseFailed
	case e.policy.PhaseSucceeded(result.TasksSucceeded, result.TasksFailed):
		phase.Status = PhaseCompleted
	default:
		phase.Status = PhaseFailed
	}
	result.Status = phase.Status

	e.updateSession()
	exec.done.Store(true)

	e.log.WithFields(logrus.Fields{
		"session":     e.session.ID,
		"phase":       phase.PhaseID,
		"status":      phase.Status,
		"succeeded":   result.TasksSucceeded,
		"failed":      result.TasksFailed,
		"improvement": result.HealthImprovement,
	}).Info("phase finished")
}

// updateSession recomputes session aggregates from the plan. Progress is
// always round(100 * completedPhases / totalPhases).
func (e *Executor) updateSession() {
	s := e.session
	completedPhases := 0
	failedPhases := 0
	cancelledPhases := 0
	completedTasks := 0
	totalTasks := 0
	improvement := 0

	for _, phase := range s.Plan.Phases {
		totalTasks += phase.TotalTasks
		completedTasks += phase.CompletedTasks
		improvement += phase.HealthImprovement
		switch phase.Status {
		case PhaseCompleted:
			completedPhases++
		case PhaseFailed:
			failedPhases++
		case PhaseCancelled:
			cancelledPhases++
		}
	}

	s.CompletedTasks = completedTasks
	s.TotalTasks = totalTasks
	s.HealthImprovement = improvement
	s.CurrentHealthScore = s.InitialHealthScore + improvement
	if s.CurrentHealthScore > 100 {
		s.CurrentHealthScore = 100
	}

	total := len(s.Plan.Phases)
	if total > 0 {
		s.OverallProgress = int(math.Round(100 * float64(completedPhases) / float64(total)))
	}

	switch {
	case completedPhases == total && total > 0:
		s.Status = SessionCompleted
		end := time.Now()
		s.EndTime = &end
		s.Duration = end.Sub(s.StartTime)
	case cancelledPhases > 0:
		s.Status = SessionCancelled
	case failedPhases > 0:
		s.Status = SessionFailed
	}
}

// CancelPhase requests cancellation of an in-flight execution. Cancellation
// is cooperative: only the cancelled flag is touched here, and the executing
// goroutine observes it, stops before its next task or batch, runs cleanup,
// and marks the phase cancelled. Phase and task state stay single-writer.
// Unknown or finished executions report a reason instead of failing.
func (e *Executor) CancelPhase(executionID string) CancelResult {
	e.mu.Lock()
	exec, ok := e.activeExecutions[executionID]
	e.mu.Unlock()

	if !ok {
		return CancelResult{Cancelled: false, Reason: fmt.Sprintf("execution %q not found", executionID)}
	}
	if exec.done.Load() {
		return CancelResult{Cancelled: false, Reason: "execution already finished"}
	}
	if !exec.cancelled.CompareAndSwap(false, true) {
		return CancelResult{Cancelled: false, Reason: "execution already cancelled"}
	}
	if exec.done.Load() {
		// The execution finished before the flag could be observed.
		return CancelResult{Cancelled: false, Reason: "execution already finished"}
	}

	e.log.WithFields(logrus.Fields{
		"session":   e.session.ID,
		"phase":     exec.PhaseID,
		"execution": executionID,
	}).Warn("phase execution cancellation requested")

	return CancelResult{Cancelled: true}
}

// cleanupPhase resets tasks that never ran back to pending. It runs on the
// executing goroutine after task work has joined.
func (e *Executor) cleanupPhase(phase *RecoveryPhase) {
	for _, task := range phase.Tasks {
		if task.Status == TaskExecuting {
			task.Status = TaskPending
		}
	}
}

// ExecutionStatus is a point-in-time view of one registered phase execution.
type ExecutionStatus struct {
	ExecutionID string    `json:"execution_id"`
	PhaseID     string    `json:"phase_id"`
	StartTime   time.Time `json:"start_time"`
	Cancelled   bool      `json:"cancelled"`
	Done        bool      `json:"done"`
}

// ActiveExecutions lists the registered executions, in-flight ones included,
// ordered by start time. Callers use it to target CancelPhase at a live
// execution id.
func (e *Executor) ActiveExecutions() []ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ExecutionStatus, 0, len(e.activeExecutions))
	for _, exec := range e.activeExecutions {
		out = append(out, ExecutionStatus{
			ExecutionID: exec.ID,
			PhaseID:     exec.PhaseID,
			StartTime:   exec.StartTime,
			Cancelled:   exec.cancelled.Load(),
			Done:        exec.done.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// GetPhases returns a read-only snapshot of the plan phases.
func (e *Executor) GetPhases() []*RecoveryPhase {
	out := make([]*RecoveryPhase, len(e.session.Plan.Phases))
	copy(out, e.session.Plan.Phases)
	return out
}

// MonitorProgress projects current session progress, estimating completion
// as now plus the estimated duration of all non-completed phases.
func (e *Executor) MonitorProgress() *ProgressReport {
	s := e.session
	completed := 0
	var remaining time.Duration
	for _, phase := range s.Plan.Phases {
		if phase.Status == PhaseCompleted {
			completed++
		} else {
			remaining += phase.EstimatedDuration
		}
	}

	return &ProgressReport{
		SessionID:           s.ID,
		Status:              s.Status,
		CurrentPhase:        s.CurrentPhase,
		OverallProgress:     s.OverallProgress,
		CompletedPhases:     completed,
		TotalPhases:         len(s.Plan.Phases),
		CompletedTasks:      s.CompletedTasks,
		TotalTasks:          s.TotalTasks,
		HealthImprovement:   s.HealthImprovement,
		EstimatedCompletion: time.Now().Add(remaining),
	}
}
