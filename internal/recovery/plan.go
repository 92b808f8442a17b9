package recovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
)

// BuildPlan constructs the strategy-specific default recovery plan for one
// module: a stabilization phase, an implementation phase depending on it,
// and a validation phase depending on the implementation.
func BuildPlan(moduleID string, strategy health.Strategy) *RecoveryPlan {
	stabilization := &RecoveryPhase{
		PhaseID:           "stabilization",
		PhaseName:         "Stabilize module state",
		PhaseType:         PhaseStabilization,
		Status:            PhasePending,
		EstimatedDuration: 30 * time.Second,
		Tasks: []*RecoveryTask{
			newTask(moduleID, TaskAnalysis, "Assess module health"),
			newTask(moduleID, TaskConfiguration, "Normalize package manifest"),
			newTask(moduleID, TaskConfiguration, "Normalize build configuration"),
		},
	}

	implementation := &RecoveryPhase{
		PhaseID:           "implementation",
		PhaseName:         "Apply recovery strategy",
		PhaseType:         PhaseImplementation,
		Status:            PhasePending,
		DependsOn:         []string{"stabilization"},
		EstimatedDuration: 2 * time.Minute,
		Tasks:             implementationTasks(moduleID, strategy),
	}

	validation := &RecoveryPhase{
		PhaseID:           "validation",
		PhaseName:         "Confirm recovered module",
		PhaseType:         PhaseValidation,
		Status:            PhasePending,
		DependsOn:         []string{"implementation"},
		BlockedBy:         []string{"stabilization"},
		EstimatedDuration: 45 * time.Second,
		Tasks: []*RecoveryTask{
			newTask(moduleID, TaskTest, "Run module test gate"),
			withCriteria(
				newTask(moduleID, TaskValidation, "Validate recovered structure"),
				"manifest_valid",
			),
		},
	}

	plan := &RecoveryPlan{
		Phases: []*RecoveryPhase{stabilization, implementation, validation},
	}
	for _, phase := range plan.Phases {
		phase.TotalTasks = len(phase.Tasks)
	}
	return plan
}

// implementationTasks varies the middle phase by strategy: repair patches
// in place, rebuild reconstructs the build surface first, reset recreates
// the module configuration before repairing.
func implementationTasks(moduleID string, strategy health.Strategy) []*RecoveryTask {
	switch strategy {
	case health.StrategyRebuild:
		return []*RecoveryTask{
			newTask(moduleID, TaskBuild, "Verify build preconditions"),
			newTask(moduleID, TaskRepair, "Reconstruct module structure"),
			newTask(moduleID, TaskBuild, "Rebuild module"),
		}
	case health.StrategyReset:
		return []*RecoveryTask{
			newTask(moduleID, TaskConfiguration, "Reset module configuration"),
			newTask(moduleID, TaskRepair, "Recreate module structure"),
			newTask(moduleID, TaskBuild, "Rebuild from defaults"),
		}
	default: // repair
		return []*RecoveryTask{
			newTask(moduleID, TaskRepair, "Repair module in place"),
		}
	}
}

func newTask(moduleID string, taskType TaskType, name string) *RecoveryTask {
	return &RecoveryTask{
		TaskID:        uuid.NewString(),
		TaskName:      name,
		TaskType:      taskType,
		Status:        TaskPending,
		TargetModules: []string{moduleID},
	}
}

func withCriteria(task *RecoveryTask, criteria ...string) *RecoveryTask {
	task.ValidationRequired = true
	task.ValidationCriteria = criteria
	return task
}

// NewSession creates a pending session around a plan.
func NewSession(moduleID string, plan *RecoveryPlan, initialScore int) *RecoverySession {
	totalTasks := 0
	for _, phase := range plan.Phases {
		totalTasks += phase.TotalTasks
	}
	return &RecoverySession{
		ID:                 uuid.NewString(),
		ModuleID:           moduleID,
		Status:             SessionPending,
		InitialHealthScore: initialScore,
		CurrentHealthScore: initialScore,
		TotalTasks:         totalTasks,
		Plan:               plan,
		StartTime:          time.Now(),
	}
}

// SessionSummary renders a one-line session description for logs.
func SessionSummary(s *RecoverySession) string {
	return fmt.Sprintf("session %s module=%s status=%s progress=%d%% improvement=%d",
		s.ID, s.ModuleID, s.Status, s.OverallProgress, s.HealthImprovement)
}
