// Package recovery implements the phased recovery engine: the session,
// phase, and task state machine, prerequisite gating, bounded-concurrency
// task execution, and the orchestration types shared with callers.
package recovery

import (
	"time"

	"github.com/workspacedoctor/workspace-doctor/internal/health"
)

// SessionStatus tracks one recovery run end to end.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionExecuting SessionStatus = "executing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// PhaseStatus is the per-phase state machine:
// pending -> ready -> executing -> {completed | failed | cancelled}.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseReady     PhaseStatus = "ready"
	PhaseExecuting PhaseStatus = "executing"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseCancelled PhaseStatus = "cancelled"
)

// IsActive reports whether the phase occupies an execution slot for the
// purposes of blocker evaluation.
func (s PhaseStatus) IsActive() bool {
	switch s {
	case PhaseExecuting, PhasePending, PhaseReady:
		return true
	}
	return false
}

// IsTerminal reports whether the phase can no longer change state.
func (s PhaseStatus) IsTerminal() bool {
	switch s {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// PhaseType selects the prerequisite gate applied before execution.
type PhaseType string

const (
	PhaseStabilization  PhaseType = "stabilization"
	PhaseImplementation PhaseType = "implementation"
	PhaseValidation     PhaseType = "validation"
)

// TaskStatus tracks the smallest unit of recovery work.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskType dispatches a task to its module-aware handler.
type TaskType string

const (
	TaskAnalysis      TaskType = "analysis"
	TaskRepair        TaskType = "repair"
	TaskBuild         TaskType = "build"
	TaskTest          TaskType = "test"
	TaskValidation    TaskType = "validation"
	TaskConfiguration TaskType = "configuration"
)

// RecoveryTask is one unit of recovery work inside a phase.
type RecoveryTask struct {
	TaskID               string     `json:"task_id"`
	TaskName             string     `json:"task_name"`
	TaskType             TaskType   `json:"task_type"`
	Status               TaskStatus `json:"status"`
	TargetModules        []string   `json:"target_modules"`
	TargetConfigurations []string   `json:"target_configurations,omitempty"`
	ValidationRequired   bool       `json:"validation_required"`
	ValidationCriteria   []string   `json:"validation_criteria,omitempty"`
	Output               string     `json:"output,omitempty"`
	ErrorOutput          string     `json:"error_output,omitempty"`
	Artifacts            []string   `json:"artifacts,omitempty"`
}

// RecoveryPhase is a named, dependency-gated stage of a recovery plan.
type RecoveryPhase struct {
	PhaseID   string      `json:"phase_id"`
	PhaseName string      `json:"phase_name"`
	PhaseType PhaseType   `json:"phase_type"`
	Status    PhaseStatus `json:"status"`

	// DependsOn phases must be completed before this phase may execute.
	DependsOn []string `json:"depends_on,omitempty"`
	// BlockedBy phases must not be active while this phase executes.
	BlockedBy []string `json:"blocked_by,omitempty"`

	Tasks          []*RecoveryTask `json:"tasks"`
	TotalTasks     int             `json:"total_tasks"`
	CompletedTasks int             `json:"completed_tasks"`

	HealthImprovement int           `json:"health_improvement"`
	EstimatedDuration time.Duration `json:"estimated_duration"`

	StartTime *time.Time    `json:"start_time,omitempty"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RecoveryPlan is the ordered phase list of one session.
type RecoveryPlan struct {
	Phases []*RecoveryPhase `json:"phases"`
}

// Phase returns the phase with the given id.
func (p *RecoveryPlan) Phase(phaseID string) (*RecoveryPhase, bool) {
	for _, phase := range p.Phases {
		if phase.PhaseID == phaseID {
			return phase, true
		}
	}
	return nil, false
}

// RecoverySession is the root aggregate for one recovery run. It is owned
// by exactly one Executor instance and mutated only by it.
type RecoverySession struct {
	ID       string        `json:"id"`
	ModuleID string        `json:"module_id"`
	Status   SessionStatus `json:"status"`

	CurrentPhase    string `json:"current_phase,omitempty"`
	OverallProgress int    `json:"overall_progress"`

	HealthImprovement  int `json:"health_improvement"`
	CurrentHealthScore int `json:"current_health_score"`
	InitialHealthScore int `json:"initial_health_score"`

	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`

	Plan *RecoveryPlan `json:"recovery_plan"`

	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RecoveryContext carries per-invocation parameters. It is passed by value
// and never mutated by the engine.
type RecoveryContext struct {
	TargetHealthScore int   `json:"target_health_score"`
	MaxAttempts       int   `json:"max_attempts"`
	TimeoutMs         int64 `json:"timeout_ms"`
	DryRun            bool  `json:"dry_run"`
	SkipBackup        bool  `json:"skip_backup"`
}

// Timeout returns the context timeout as a duration; zero means unbounded.
func (c RecoveryContext) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RecoveryResult is the outcome of one module recovery run.
type RecoveryResult struct {
	ModuleID string          `json:"module_id"`
	Strategy health.Strategy `json:"strategy"`
	Success  bool            `json:"success"`

	Phases []*RecoveryPhase `json:"phases"`

	InitialHealthScore int `json:"initial_health_score"`
	FinalHealthScore   int `json:"final_health_score"`
	HealthImprovement  int `json:"health_improvement"`

	StartTime      time.Time     `json:"start_time"`
	ExecutionTime  time.Duration `json:"execution_time"`
	TotalErrors    int           `json:"total_errors"`
	ErrorsResolved int           `json:"errors_resolved"`
	Artifacts      []string      `json:"artifacts,omitempty"`
}

// TaskExecutionResult records one task's outcome as data; task failures
// never propagate as errors out of the engine.
type TaskExecutionResult struct {
	TaskID            string        `json:"task_id"`
	TaskType          TaskType      `json:"task_type"`
	Success           bool          `json:"success"`
	Output            string        `json:"output,omitempty"`
	ErrorOutput       string        `json:"error_output,omitempty"`
	HealthImprovement int           `json:"health_improvement"`
	ErrorsResolved    int           `json:"errors_resolved"`
	Artifacts         []string      `json:"artifacts,omitempty"`
	Warnings          []string      `json:"warnings,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// PhaseExecutionResult is returned by ExecutePhase.
type PhaseExecutionResult struct {
	ExecutionID string      `json:"execution_id"`
	PhaseID     string      `json:"phase_id"`
	Status      PhaseStatus `json:"status"`

	TasksExecuted  int `json:"tasks_executed"`
	TasksSucceeded int `json:"tasks_succeeded"`
	TasksFailed    int `json:"tasks_failed"`

	TaskResults []*TaskExecutionResult `json:"task_results"`

	HealthImprovement int           `json:"health_improvement"`
	Duration          time.Duration `json:"duration"`
}

// CancelResult reports the outcome of a cancellation request. Cancelling an
// unknown or finished execution never fails hard; it reports why. Cleanup
// runs on the executing goroutine once it observes the flag, so the phase
// lands in cancelled state shortly after a Cancelled:true result.
type CancelResult struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// ProgressReport is a read-only projection of session progress.
type ProgressReport struct {
	SessionID           string        `json:"session_id"`
	Status              SessionStatus `json:"status"`
	CurrentPhase        string        `json:"current_phase,omitempty"`
	OverallProgress     int           `json:"overall_progress"`
	CompletedPhases     int           `json:"completed_phases"`
	TotalPhases         int           `json:"total_phases"`
	CompletedTasks      int           `json:"completed_tasks"`
	TotalTasks          int           `json:"total_tasks"`
	HealthImprovement   int           `json:"health_improvement"`
	EstimatedCompletion time.Time     `json:"estimated_completion"`
}

// ModuleValidation is the validation collaborator's per-module verdict.
type ModuleValidation struct {
	ModuleID    string   `json:"module_id"`
	IsValid     bool     `json:"is_valid"`
	HealthScore int      `json:"health_score"`
	Issues      []string `json:"issues,omitempty"`
}
