// Structured error types for the recovery engine. The taxonomy enables
// programmatic handling: task-level failures are recorded as data, phase
// prerequisite failures and timeouts propagate to the immediate caller, and
// analytics persistence errors are logged and swallowed.
package recovery

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a specific recovery failure mode.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidModule
	ErrCodePhaseNotFound
	ErrCodePrerequisiteFailed
	ErrCodeTaskExecution
	ErrCodeTimeout
	ErrCodeValidationCriterion
	ErrCodeCancelled
	ErrCodePersistence
)

// ErrorClass groups codes for propagation policy decisions.
type ErrorClass int

const (
	ErrClassGeneric ErrorClass = iota
	// ErrClassCaller covers programmer errors: unknown ids, malformed input.
	ErrClassCaller
	// ErrClassGate covers prerequisite and validation gate violations,
	// which are expected, recoverable outcomes.
	ErrClassGate
	// ErrClassExecution covers task and phase runtime failures.
	ErrClassExecution
	// ErrClassContext covers timeouts and cancellation.
	ErrClassContext
)

// Severity mirrors the issue severity ladder used in module assessment.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// RecoveryError is the structured error carried across the engine boundary.
type RecoveryError struct {
	Code     ErrorCode  `json:"code"`
	Class    ErrorClass `json:"class"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`

	ModuleID string `json:"module_id,omitempty"`
	PhaseID  string `json:"phase_id,omitempty"`
	TaskID   string `json:"task_id,omitempty"`

	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Original  error                  `json:"-"`
}

func (e *RecoveryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Original != nil {
		return e.Original.Error()
	}
	return fmt.Sprintf("recovery error (code %d)", e.Code)
}

// Unwrap preserves the original error chain.
func (e *RecoveryError) Unwrap() error {
	return e.Original
}

// CodeString returns a human-readable description of the error code.
func (e *RecoveryError) CodeString() string {
	switch e.Code {
	case ErrCodeInvalidModule:
		return "Invalid Module"
	case ErrCodePhaseNotFound:
		return "Phase Not Found"
	case ErrCodePrerequisiteFailed:
		return "Prerequisite Failed"
	case ErrCodeTaskExecution:
		return "Task Execution Failed"
	case ErrCodeTimeout:
		return "Timeout"
	case ErrCodeValidationCriterion:
		return "Validation Criterion Failed"
	case ErrCodeCancelled:
		return "Cancelled"
	case ErrCodePersistence:
		return "Persistence Failed"
	default:
		return fmt.Sprintf("Unknown Error Code (%d)", e.Code)
	}
}

// NewPhaseNotFoundError reports a phase id absent from the session plan.
func NewPhaseNotFoundError(phaseID string) *RecoveryError {
	return &RecoveryError{
		Code:      ErrCodePhaseNotFound,
		Class:     ErrClassCaller,
		Severity:  SeverityError,
		Message:   fmt.Sprintf("phase %q not found in recovery plan", phaseID),
		PhaseID:   phaseID,
		Timestamp: time.Now(),
	}
}

// NewPrerequisiteError reports a dependency, blocker, or type-gate
// violation detected before any task ran.
func NewPrerequisiteError(phaseID, reason string) *RecoveryError {
	return &RecoveryError{
		Code:      ErrCodePrerequisiteFailed,
		Class:     ErrClassGate,
		Severity:  SeverityError,
		Message:   fmt.Sprintf("phase %q prerequisite violated: %s", phaseID, reason),
		PhaseID:   phaseID,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"reason": reason},
	}
}

// NewTaskExecutionError wraps a task handler failure. These are recorded as
// data and only propagate in sequential mode without force execution.
func NewTaskExecutionError(taskID string, cause error) *RecoveryError {
	return &RecoveryError{
		Code:      ErrCodeTaskExecution,
		Class:     ErrClassExecution,
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf("task %q failed: %v", taskID, cause),
		TaskID:    taskID,
		Timestamp: time.Now(),
		Original:  cause,
	}
}

// NewTimeoutError reports an exceeded phase execution budget.
func NewTimeoutError(phaseID string, elapsed, limit time.Duration) *RecoveryError {
	return &RecoveryError{
		Code:      ErrCodeTimeout,
		Class:     ErrClassContext,
		Severity:  SeverityError,
		Message:   fmt.Sprintf("phase %q timed out after %v (limit %v)", phaseID, elapsed, limit),
		PhaseID:   phaseID,
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"elapsed": elapsed.String(),
			"limit":   limit.String(),
		},
	}
}

// NewValidationCriterionError reports a failed post-task validation
// criterion. Under force execution it is demoted to a recorded warning.
func NewValidationCriterionError(taskID, criterion string) *RecoveryError {
	return &RecoveryError{
		Code:      ErrCodeValidationCriterion,
		Class:     ErrClassGate,
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf("task %q validation criterion failed: %s", taskID, criterion),
		TaskID:    taskID,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"criterion": criterion},
	}
}

// IsPhaseNotFound reports whether err is a phase lookup failure.
func IsPhaseNotFound(err error) bool { return hasCode(err, ErrCodePhaseNotFound) }

// IsPrerequisite reports whether err is a prerequisite gate violation.
func IsPrerequisite(err error) bool { return hasCode(err, ErrCodePrerequisiteFailed) }

// IsTimeout reports whether err is a phase timeout.
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

func hasCode(err error, code ErrorCode) bool {
	var re *RecoveryError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
