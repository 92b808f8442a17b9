package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

func newTestWorkspace(t *testing.T) (*workspace.Workspace, string) {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.Open(root)
	require.NoError(t, err)
	return ws, root
}

// writeModule lays down a structurally complete module fixture. Pass file
// names in omit to leave parts out.
func writeModule(t *testing.T, root, id string, omit ...string) {
	t.Helper()
	skip := make(map[string]bool, len(omit))
	for _, name := range omit {
		skip[name] = true
	}

	dir := filepath.Join(root, "packages", id)
	files := map[string]string{
		"package.json":   `{"name":"@acme/` + id + `","version":"1.0.0"}`,
		"tsconfig.json":  `{"compilerOptions":{"strict":true}}`,
		"vite.config.ts": "export default {}",
		"src/index.ts":   "export {}",
	}
	for name, content := range files {
		if skip[name] {
			continue
		}
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	if !skip["node_modules"] {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	}
}

func newDryRunExecutor(t *testing.T, strategy health.Strategy) (*Executor, *RecoverySession) {
	t.Helper()
	ws, _ := newTestWorkspace(t)
	handlers := NewTaskHandlers(ws, nil, nil, nil)
	plan := BuildPlan("auth", strategy)
	session := NewSession("auth", plan, 40)
	return NewExecutor(session, handlers, nil), session
}

func TestExecutePhaseNotFound(t *testing.T) {
	executor, _ := newDryRunExecutor(t, health.StrategyRepair)

	_, err := executor.ExecutePhase(context.Background(), "no-such-phase", ExecuteOptions{})
	require.Error(t, err)
	assert.True(t, IsPhaseNotFound(err))
}

func TestExecutePhasePrerequisiteLeavesStatusUnchanged(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	// Implementation depends on stabilization, which has not run.
	_, err := executor.ExecutePhase(context.Background(), "implementation", ExecuteOptions{DryRun: true})
	require.Error(t, err)
	assert.True(t, IsPrerequisite(err))

	phase, ok := session.Plan.Phase("implementation")
	require.True(t, ok)
	assert.Equal(t, PhasePending, phase.Status, "prerequisite violation must not change phase status")
	assert.Nil(t, phase.StartTime)
	assert.Equal(t, SessionPending, session.Status)
}

func TestExecutePhaseSkipValidationBypassesGates(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	result, err := executor.ExecutePhase(context.Background(), "implementation",
		ExecuteOptions{DryRun: true, SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, result.Status)

	phase, _ := session.Plan.Phase("implementation")
	assert.Equal(t, PhaseCompleted, phase.Status)
}

func TestDryRunFullPlan(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)
	ctx := context.Background()
	opts := ExecuteOptions{DryRun: true}

	for _, phaseID := range []string{"stabilization", "implementation", "validation"} {
		result, err := executor.ExecutePhase(ctx, phaseID, opts)
		require.NoError(t, err, "phase %s", phaseID)
		assert.Equal(t, PhaseCompleted, result.Status)
	}

	// Stabilization: analysis 5 + configuration 8 + configuration 8 = 21.
	stab, _ := session.Plan.Phase("stabilization")
	assert.Equal(t, 21, stab.HealthImprovement)

	// Implementation (repair): one repair task at 15.
	impl, _ := session.Plan.Phase("implementation")
	assert.Equal(t, 15, impl.HealthImprovement)

	// Validation: test 5 + validation 5 = 10.
	val, _ := session.Plan.Phase("validation")
	assert.Equal(t, 10, val.HealthImprovement)

	assert.Equal(t, SessionCompleted, session.Status)
	assert.Equal(t, 100, session.OverallProgress)
	assert.Equal(t, 46, session.HealthImprovement)
	assert.Equal(t, 86, session.CurrentHealthScore)
	assert.NotNil(t, session.EndTime)
}

func TestImplementationGateRequiresPriorImprovement(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	// Mark stabilization completed with too little improvement; the
	// dependency gate passes but the implementation type gate does not.
	stab, _ := session.Plan.Phase("stabilization")
	stab.Status = PhaseCompleted
	stab.HealthImprovement = 19

	_, err := executor.ExecutePhase(context.Background(), "implementation", ExecuteOptions{DryRun: true})
	require.Error(t, err)
	assert.True(t, IsPrerequisite(err))

	stab.HealthImprovement = 20
	_, err = executor.ExecutePhase(context.Background(), "implementation", ExecuteOptions{DryRun: true})
	assert.NoError(t, err)
}

func TestStabilizationGate(t *testing.T) {
	executor, _ := newDryRunExecutor(t, health.StrategyRepair)
	executor.SetGateSnapshot(GateSnapshot{CriticalConfigErrors: 6, CollectedAt: time.Now()})

	_, err := executor.ExecutePhase(context.Background(), "stabilization", ExecuteOptions{DryRun: true})
	require.Error(t, err)
	assert.True(t, IsPrerequisite(err))

	executor.SetGateSnapshot(GateSnapshot{CriticalConfigErrors: 5, CollectedAt: time.Now()})
	_, err = executor.ExecutePhase(context.Background(), "stabilization", ExecuteOptions{DryRun: true})
	assert.NoError(t, err)
}

func TestValidationGateRequiresImplementationCompleted(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	stab, _ := session.Plan.Phase("stabilization")
	stab.Status = PhaseCompleted
	impl, _ := session.Plan.Phase("implementation")
	impl.Status = PhaseFailed

	_, err := executor.ExecutePhase(context.Background(), "validation", ExecuteOptions{DryRun: true})
	require.Error(t, err)
	assert.True(t, IsPrerequisite(err))
}

func TestSequentialStopsAtFirstFailure(t *testing.T) {
	ws, root := newTestWorkspace(t)
	// Module exists but has no source root, so the build task fails while
	// analysis tasks succeed.
	writeModule(t, root, "auth", "src/index.ts")

	handlers := NewTaskHandlers(ws, nil, nil, nil)
	phase := &RecoveryPhase{
		PhaseID:   "custom",
		PhaseType: PhaseStabilization,
		Status:    PhasePending,
		Tasks: []*RecoveryTask{
			newTask("auth", TaskAnalysis, "first"),
			newTask("auth", TaskBuild, "fails"),
			newTask("auth", TaskAnalysis, "never runs"),
		},
	}
	phase.TotalTasks = len(phase.Tasks)
	plan := &RecoveryPlan{Phases: []*RecoveryPhase{phase}}
	session := NewSession("auth", plan, 50)
	executor := NewExecutor(session, handlers, nil)

	result, err := executor.ExecutePhase(context.Background(), "custom", ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TasksExecuted)
	assert.Equal(t, 1, result.TasksSucceeded)
	assert.Equal(t, 1, result.TasksFailed)
	assert.Equal(t, TaskPending, phase.Tasks[2].Status, "task after the failure must not run")

	// One success keeps the phase completed under the lenient default policy.
	assert.Equal(t, PhaseCompleted, result.Status)
}

func TestForceExecutionContinuesPastFailures(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeModule(t, root, "auth", "src/index.ts")

	handlers := NewTaskHandlers(ws, nil, nil, nil)
	phase := &RecoveryPhase{
		PhaseID:   "custom",
		PhaseType: PhaseStabilization,
		Status:    PhasePending,
		Tasks: []*RecoveryTask{
			newTask("auth", TaskBuild, "fails"),
			newTask("auth", TaskAnalysis, "still runs"),
		},
	}
	phase.TotalTasks = len(phase.Tasks)
	session := NewSession("auth", &RecoveryPlan{Phases: []*RecoveryPhase{phase}}, 50)
	executor := NewExecutor(session, handlers, nil)

	result, err := executor.ExecutePhase(context.Background(), "custom", ExecuteOptions{ForceExecution: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TasksExecuted)
	assert.Equal(t, TaskCompleted, phase.Tasks[1].Status)
}

func TestAllTasksSucceededPolicy(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeModule(t, root, "auth", "src/index.ts")

	handlers := NewTaskHandlers(ws, nil, nil, nil)
	phase := &RecoveryPhase{
		PhaseID:   "custom",
		PhaseType: PhaseStabilization,
		Status:    PhasePending,
		Tasks: []*RecoveryTask{
			newTask("auth", TaskAnalysis, "ok"),
			newTask("auth", TaskBuild, "fails"),
		},
	}
	phase.TotalTasks = len(phase.Tasks)
	session := NewSession("auth", &RecoveryPlan{Phases: []*RecoveryPhase{phase}}, 50)
	executor := NewExecutor(session, handlers, nil)
	executor.SetPolicy(AllTasksSucceeded)

	result, err := executor.ExecutePhase(context.Background(), "custom", ExecuteOptions{ForceExecution: true})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, result.Status)
	assert.Equal(t, SessionFailed, session.Status)
}

func TestExecutePhaseTimeout(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	_, err := executor.ExecutePhase(context.Background(), "stabilization",
		ExecuteOptions{DryRun: true, Timeout: time.Nanosecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	phase, _ := session.Plan.Phase("stabilization")
	assert.Equal(t, PhaseFailed, phase.Status)
}

func TestParallelExecution(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	handlers := NewTaskHandlers(ws, nil, nil, nil)

	tasks := make([]*RecoveryTask, 10)
	for i := range tasks {
		tasks[i] = newTask("auth", TaskAnalysis, "batch member")
	}
	phase := &RecoveryPhase{
		PhaseID:   "wide",
		PhaseType: PhaseStabilization,
		Status:    PhasePending,
		Tasks:     tasks,
	}
	phase.TotalTasks = len(tasks)
	session := NewSession("auth", &RecoveryPlan{Phases: []*RecoveryPhase{phase}}, 50)
	executor := NewExecutor(session, handlers, nil)

	result, err := executor.ExecutePhase(context.Background(), "wide",
		ExecuteOptions{DryRun: true, Parallel: true, MaxConcurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, 10, result.TasksExecuted)
	assert.Equal(t, 10, result.TasksSucceeded)
	assert.Equal(t, PhaseCompleted, result.Status)
}

func TestCancelPhase(t *testing.T) {
	executor, _ := newDryRunExecutor(t, health.StrategyRepair)

	t.Run("unknown execution", func(t *testing.T) {
		res := executor.CancelPhase("nope")
		assert.False(t, res.Cancelled)
		assert.NotEmpty(t, res.Reason)
	})

	t.Run("finished execution", func(t *testing.T) {
		result, err := executor.ExecutePhase(context.Background(), "stabilization", ExecuteOptions{DryRun: true})
		require.NoError(t, err)

		res := executor.CancelPhase(result.ExecutionID)
		assert.False(t, res.Cancelled)
		assert.Equal(t, "execution already finished", res.Reason)
	})
}

// blockingRecoverer parks ExecuteRecovery until released so a phase can be
// cancelled while a task is in flight.
type blockingRecoverer struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRecoverer) ExecuteRecovery(ctx context.Context, moduleID string, strategy health.Strategy, rctx RecoveryContext) (*RecoveryResult, error) {
	close(r.started)
	<-r.release
	return &RecoveryResult{Success: true, HealthImprovement: 15}, nil
}

func TestCancelPhaseWhileExecuting(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	recoverer := &blockingRecoverer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	handlers := NewTaskHandlers(ws, recoverer, nil, nil)
	plan := BuildPlan("auth", health.StrategyRepair)
	session := NewSession("auth", plan, 40)
	executor := NewExecutor(session, handlers, nil)

	done := make(chan *PhaseExecutionResult, 1)
	go func() {
		result, _ := executor.ExecutePhase(context.Background(), "implementation",
			ExecuteOptions{SkipValidation: true})
		done <- result
	}()

	<-recoverer.started

	execs := executor.ActiveExecutions()
	require.Len(t, execs, 1)
	assert.Equal(t, "implementation", execs[0].PhaseID)
	assert.False(t, execs[0].Done)

	res := executor.CancelPhase(execs[0].ExecutionID)
	assert.True(t, res.Cancelled)

	res = executor.CancelPhase(execs[0].ExecutionID)
	assert.False(t, res.Cancelled)
	assert.Equal(t, "execution already cancelled", res.Reason)

	close(recoverer.release)
	result := <-done
	require.NotNil(t, result)

	assert.Equal(t, PhaseCancelled, result.Status)
	assert.Equal(t, SessionCancelled, session.Status)

	implementation, ok := plan.Phase("implementation")
	require.True(t, ok)
	assert.Equal(t, PhaseCancelled, implementation.Status)
	for _, task := range implementation.Tasks {
		assert.NotEqual(t, TaskExecuting, task.Status, "cleanup must settle every task")
	}

	execs = executor.ActiveExecutions()
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Cancelled)
	assert.True(t, execs[0].Done)
}

func TestActiveExecutionsListsFinished(t *testing.T) {
	executor, _ := newDryRunExecutor(t, health.StrategyRepair)

	assert.Empty(t, executor.ActiveExecutions())

	result, err := executor.ExecutePhase(context.Background(), "stabilization", ExecuteOptions{DryRun: true})
	require.NoError(t, err)

	execs := executor.ActiveExecutions()
	require.Len(t, execs, 1)
	assert.Equal(t, result.ExecutionID, execs[0].ExecutionID)
	assert.Equal(t, "stabilization", execs[0].PhaseID)
	assert.True(t, execs[0].Done)
	assert.False(t, execs[0].Cancelled)
}

func TestUpdateSessionProgress(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	_, err := executor.ExecutePhase(context.Background(), "stabilization", ExecuteOptions{DryRun: true})
	require.NoError(t, err)

	// One of three phases completed: round(100/3) = 33.
	assert.Equal(t, 33, session.OverallProgress)
	assert.Equal(t, SessionExecuting, session.Status)
}

func TestCurrentHealthScoreClamped(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)
	session.InitialHealthScore = 90
	session.CurrentHealthScore = 90

	ctx := context.Background()
	for _, phaseID := range []string{"stabilization", "implementation", "validation"} {
		_, err := executor.ExecutePhase(ctx, phaseID, ExecuteOptions{DryRun: true})
		require.NoError(t, err)
	}

	assert.Equal(t, 100, session.CurrentHealthScore, "score never exceeds 100")
}

func TestMonitorProgress(t *testing.T) {
	executor, session := newDryRunExecutor(t, health.StrategyRepair)

	report := executor.MonitorProgress()
	assert.Equal(t, session.ID, report.SessionID)
	assert.Equal(t, 0, report.CompletedPhases)
	assert.Equal(t, 3, report.TotalPhases)
	assert.True(t, report.EstimatedCompletion.After(time.Now()))

	_, err := executor.ExecutePhase(context.Background(), "stabilization", ExecuteOptions{DryRun: true})
	require.NoError(t, err)

	report = executor.MonitorProgress()
	assert.Equal(t, 1, report.CompletedPhases)
}
