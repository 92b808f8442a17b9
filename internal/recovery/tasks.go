package recovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

// ModuleRecoverer is the module-recovery collaborator invoked by repair
// task handlers.
type ModuleRecoverer interface {
	ExecuteRecovery(ctx context.Context, moduleID string, strategy health.Strategy, rctx RecoveryContext) (*RecoveryResult, error)
}

// ModuleValidator is the validation collaborator consumed to gate and
// confirm recovery steps.
type ModuleValidator interface {
	ValidateSingleModule(moduleID string) (*ModuleValidation, error)
}

// nominalImprovement is the fixed health improvement a dry-run task
// contributes per task type.
var nominalImprovement = map[TaskType]int{
	TaskAnalysis:      5,
	TaskRepair:        15,
	TaskBuild:         10,
	TaskTest:          5,
	TaskValidation:    5,
	TaskConfiguration: 8,
}

// NominalImprovement returns the dry-run health improvement for a task type.
func NominalImprovement(t TaskType) int {
	return nominalImprovement[t]
}

// TaskHandlers dispatches tasks to module-aware handlers per task type.
type TaskHandlers struct {
	ws        *workspace.Workspace
	assessor  *health.Assessor
	recoverer ModuleRecoverer
	validator ModuleValidator
	log       *logrus.Logger
}

// NewTaskHandlers wires the handlers to their collaborators. recoverer and
// validator may be nil when only dry-run execution is needed.
func NewTaskHandlers(ws *workspace.Workspace, recoverer ModuleRecoverer, validator ModuleValidator, log *logrus.Logger) *TaskHandlers {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &TaskHandlers{
		ws:        ws,
		assessor:  health.NewAssessor(ws, log),
		recoverer: recoverer,
		validator: validator,
		log:       log,
	}
}

// ExecuteTask runs one task and settles its outcome onto both the returned
// result and the task itself. Handler errors become failed results; only
// internal invariants (unknown task type) surface as errors.
func (h *TaskHandlers) ExecuteTask(ctx context.Context, task *RecoveryTask, opts ExecuteOptions) (*TaskExecutionResult, error) {
	task.Status = TaskExecuting

	var result *TaskExecutionResult
	if opts.DryRun {
		result = h.dryRunResult(task)
	} else {
		var err error
		result, err = h.dispatch(ctx, task, opts)
		if err != nil {
			result = &TaskExecutionResult{
				TaskID:      task.TaskID,
				TaskType:    task.TaskType,
				Success:     false,
				ErrorOutput: err.Error(),
			}
		}
	}

	if task.ValidationRequired && result.Success && !opts.DryRun {
		h.applyValidationCriteria(task, result, opts)
	}

	h.settle(task, result)
	return result, nil
}

// dryRunResult synthesizes a successful outcome with the fixed nominal
// improvement for the task type.
func (h *TaskHandlers) dryRunResult(task *RecoveryTask) *TaskExecutionResult {
	return &TaskExecutionResult{
		TaskID:            task.TaskID,
		TaskType:          task.TaskType,
		Success:           true,
		Output:            fmt.Sprintf("dry run: %s task simulated for %v", task.TaskType, task.TargetModules),
		HealthImprovement: NominalImprovement(task.TaskType),
	}
}

func (h *TaskHandlers) dispatch(ctx context.Context, task *RecoveryTask, opts ExecuteOptions) (*TaskExecutionResult, error) {
	switch task.TaskType {
	case TaskAnalysis:
		return h.runAnalysis(task)
	case TaskRepair:
		return h.runRepair(ctx, task, opts)
	case TaskBuild:
		return h.runBuild(task)
	case TaskTest:
		return h.runTest(task)
	case TaskValidation:
		return h.runValidation(task)
	case TaskConfiguration:
		return h.runConfiguration(task)
	default:
		return nil, fmt.Errorf("unknown task type: %q", task.TaskType)
	}
}

// runAnalysis assesses each target module and reports scores. Analysis
// never improves health by itself.
func (h *TaskHandlers) runAnalysis(task *RecoveryTask) (*TaskExecutionResult, error) {
	result := &TaskExecutionResult{TaskID: task.TaskID, TaskType: task.TaskType, Success: true}

	var lines []string
	for _, id := range task.TargetModules {
		state, err := h.assessor.AnalyzeModule(id)
		if err != nil {
			result.Success = false
			result.ErrorOutput = err.Error()
			return result, nil
		}
		lines = append(lines, fmt.Sprintf("%s: score=%d status=%s", id, state.HealthScore, state.Status))
	}
	result.Output = strings.Join(lines, "\n")
	return result, nil
}

// runRepair delegates to the module-recovery collaborator per target module
// and accumulates improvement, resolved errors, and artifacts.
func (h *TaskHandlers) runRepair(ctx context.Context, task *RecoveryTask, opts ExecuteOptions) (*TaskExecutionResult, error) {
	result := &TaskExecutionResult{TaskID: task.TaskID, TaskType: task.TaskType}
	if len(task.TargetModules) == 0 {
		result.Success = true
		result.Output = "no target modules to repair"
		return result, nil
	}
	if h.recoverer == nil {
		result.ErrorOutput = "no module recoverer configured"
		return result, nil
	}

	rctx := RecoveryContext{DryRun: false, SkipBackup: opts.ForceExecution}
	var failures []string
	for _, id := range task.TargetModules {
		rr, err := h.recoverer.ExecuteRecovery(ctx, id, health.StrategyRepair, rctx)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.HealthImprovement += rr.HealthImprovement
		result.ErrorsResolved += rr.ErrorsResolved
		result.Artifacts = append(result.Artifacts, rr.Artifacts...)
	}

	result.Success = len(failures) < len(task.TargetModules)
	if len(failures) > 0 {
		result.ErrorOutput = strings.Join(failures, "; ")
	}
	return result, nil
}

// runBuild verifies the structural preconditions a build needs.
func (h *TaskHandlers) runBuild(task *RecoveryTask) (*TaskExecutionResult, error) {
	result := &TaskExecutionResult{TaskID: task.TaskID, TaskType: task.TaskType, Success: true}

	var problems []string
	for _, id := range task.TargetModules {
		if !h.ws.HasSourceRoot(id) {
			problems = append(problems, fmt.Sprintf("%s: no src/ directory", id))
			continue
		}
		if _, ok := h.ws.BuildConfigFile(id); !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: no build configuration file", id))
		}
	}

	if len(problems) > 0 {
		result.Success = false
		result.ErrorOutput = strings.Join(problems, "; ")
	} else {
		result.Output = fmt.Sprintf("build preconditions verified for %v", task.TargetModules)
	}
	return result, nil
}

// runTest confirms each target module through the validation collaborator.
func (h *TaskHandlers) runTest(task *RecoveryTask) (*TaskExecutionResult, error) {
	return h.validateTargets(task)
}

// runValidation confirms each target module through the validation
// collaborator, reporting per-module verdicts.
func (h *TaskHandlers) runValidation(task *RecoveryTask) (*TaskExecutionResult, error) {
	return h.validateTargets(task)
}

func (h *TaskHandlers) validateTargets(task *RecoveryTask) (*TaskExecutionResult, error) {
	result := &TaskExecutionResult{TaskID: task.TaskID, TaskType: task.TaskType, Success: true}
	if h.validator == nil {
		result.Success = false
		result.ErrorOutput = "no module validator configured"
		return result, nil
	}

	var lines, failures []string
	for _, id := range task.TargetModules {
		verdict, err := h.validator.ValidateSingleModule(id)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: valid=%t score=%d", id, verdict.IsValid, verdict.HealthScore))
		if !verdict.IsValid {
			failures = append(failures, fmt.Sprintf("%s: %v", id, verdict.Issues))
		}
	}

	result.Output = strings.Join(lines, "\n")
	if len(failures) > 0 {
		result.Success = false
		result.ErrorOutput = strings.Join(failures, "; ")
	}
	return result, nil
}

// runConfiguration checks the configuration surfaces the task targets.
func (h *TaskHandlers) runConfiguration(task *RecoveryTask) (*TaskExecutionResult, error) {
	result := &TaskExecutionResult{TaskID: task.TaskID, TaskType: task.TaskType, Success: true}

	var problems []string
	for _, id := range task.TargetModules {
		manifest, err := h.ws.ReadManifest(id)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: manifest unreadable: %v", id, err))
			continue
		}
		if !manifest.HasRequiredFields() {
			problems = append(problems, fmt.Sprintf("%s: manifest missing required fields", id))
		}
		result.Artifacts = append(result.Artifacts, fmt.Sprintf("packages/%s/package.json", id))
	}

	for _, cfg := range task.TargetConfigurations {
		result.Artifacts = append(result.Artifacts, cfg)
	}

	if len(problems) > 0 {
		result.Success = false
		result.ErrorOutput = strings.Join(problems, "; ")
	}
	return result, nil
}

// applyValidationCriteria evaluates the task's validation criteria after
// the handler ran. A failed criterion fails the task unless force execution
// is set, in which case it is accepted with a recorded warning.
func (h *TaskHandlers) applyValidationCriteria(task *RecoveryTask, result *TaskExecutionResult, opts ExecuteOptions) {
	for _, criterion := range task.ValidationCriteria {
		ok := h.evaluateCriterion(task, criterion)
		if ok {
			continue
		}
		if opts.ForceExecution {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("validation criterion %q failed (accepted under force execution)", criterion))
			continue
		}
		result.Success = false
		result.ErrorOutput = NewValidationCriterionError(task.TaskID, criterion).Error()
		return
	}
}

// evaluateCriterion checks one named criterion against the first target
// module's fresh assessment. Unknown criteria evaluate to false.
func (h *TaskHandlers) evaluateCriterion(task *RecoveryTask, criterion string) bool {
	if len(task.TargetModules) == 0 {
		return false
	}
	state, err := h.assessor.AnalyzeModule(task.TargetModules[0])
	if err != nil {
		return false
	}

	switch {
	case criterion == "manifest_valid":
		return state.PackageJSONValid
	case criterion == "no_critical_errors":
		return len(state.CriticalErrors) == 0
	case criterion == "dependencies_resolved":
		return state.DependencyHealth == health.DependenciesResolved
	case criterion == "build_config_present":
		return state.BuildConfigValid
	case strings.HasPrefix(criterion, "health_score>="):
		threshold, err := strconv.Atoi(strings.TrimPrefix(criterion, "health_score>="))
		if err != nil {
			return false
		}
		return state.HealthScore >= threshold
	default:
		h.log.WithField("criterion", criterion).Warn("unknown validation criterion")
		return false
	}
}

// settle copies the execution outcome onto the task.
func (h *TaskHandlers) settle(task *RecoveryTask, result *TaskExecutionResult) {
	if result.Success {
		task.Status = TaskCompleted
	} else {
		task.Status = TaskFailed
	}
	task.Output = result.Output
	task.ErrorOutput = result.ErrorOutput
	task.Artifacts = append(task.Artifacts, result.Artifacts...)
}
