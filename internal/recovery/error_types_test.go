package recovery

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryErrorMessage(t *testing.T) {
	err := NewPrerequisiteError("implementation", "dependency not completed")
	assert.Contains(t, err.Error(), "implementation")
	assert.Contains(t, err.Error(), "dependency not completed")
	assert.Equal(t, ErrCodePrerequisiteFailed, err.Code)
	assert.Equal(t, ErrClassGate, err.Class)
	assert.Equal(t, "Prerequisite Failed", err.CodeString())
}

func TestRecoveryErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewTaskExecutionError("task-1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestErrorPredicates(t *testing.T) {
	prereq := NewPrerequisiteError("p", "r")
	timeout := NewTimeoutError("p", time.Second, time.Millisecond)
	notFound := NewPhaseNotFoundError("p")

	assert.True(t, IsPrerequisite(prereq))
	assert.False(t, IsPrerequisite(timeout))
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsPhaseNotFound(notFound))
	assert.False(t, IsPhaseNotFound(errors.New("plain")))
}

func TestErrorPredicatesThroughWrapping(t *testing.T) {
	inner := NewTimeoutError("stabilization", 2*time.Second, time.Second)
	wrapped := fmt.Errorf("executing phase: %w", inner)

	assert.True(t, IsTimeout(wrapped))

	var re *RecoveryError
	require.True(t, errors.As(wrapped, &re))
	assert.Equal(t, "stabilization", re.PhaseID)
}

func TestTimeoutErrorContext(t *testing.T) {
	err := NewTimeoutError("validation", 5*time.Second, time.Second)
	assert.Equal(t, "5s", err.Context["elapsed"])
	assert.Equal(t, "1s", err.Context["limit"])
}
