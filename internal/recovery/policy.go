package recovery

// PhaseSuccessPolicy names the rule deciding when a finished phase counts
// as completed rather than failed.
type PhaseSuccessPolicy int

const (
	// AnyTaskSucceeded marks a phase completed when at least one of its
	// tasks succeeded; a phase fails only when zero tasks succeeded. This
	// is deliberately lenient: partial success still moves the session
	// forward.
	AnyTaskSucceeded PhaseSuccessPolicy = iota

	// AllTasksSucceeded requires every executed task to succeed.
	AllTasksSucceeded
)

// DefaultPhaseSuccessPolicy is the engine-wide default.
const DefaultPhaseSuccessPolicy = AnyTaskSucceeded

// PhaseSucceeded applies the policy to task counters.
func (p PhaseSuccessPolicy) PhaseSucceeded(succeeded, failed int) bool {
	switch p {
	case AllTasksSucceeded:
		return failed == 0 && succeeded > 0
	default:
		return succeeded > 0
	}
}

func (p PhaseSuccessPolicy) String() string {
	switch p {
	case AllTasksSucceeded:
		return "all_tasks_succeeded"
	default:
		return "any_task_succeeded"
	}
}
