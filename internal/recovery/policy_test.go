package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseSuccessPolicy(t *testing.T) {
	tests := []struct {
		name              string
		policy            PhaseSuccessPolicy
		succeeded, failed int
		want              bool
	}{
		{"lenient: all succeeded", AnyTaskSucceeded, 3, 0, true},
		{"lenient: partial success passes", AnyTaskSucceeded, 1, 2, true},
		{"lenient: zero successes fails", AnyTaskSucceeded, 0, 3, false},
		{"lenient: nothing ran fails", AnyTaskSucceeded, 0, 0, false},
		{"strict: all succeeded", AllTasksSucceeded, 3, 0, true},
		{"strict: partial success fails", AllTasksSucceeded, 2, 1, false},
		{"strict: nothing ran fails", AllTasksSucceeded, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.PhaseSucceeded(tt.succeeded, tt.failed))
		})
	}
}

func TestDefaultPolicyIsLenient(t *testing.T) {
	assert.Equal(t, AnyTaskSucceeded, DefaultPhaseSuccessPolicy)
	assert.Equal(t, "any_task_succeeded", DefaultPhaseSuccessPolicy.String())
	assert.Equal(t, "all_tasks_succeeded", AllTasksSucceeded.String())
}
