package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Execution limits for the task batch pool.
const (
	// DefaultMaxConcurrency bounds how many tasks of one batch run at once.
	DefaultMaxConcurrency = 4
	// MaxConcurrencyCeiling is the hard upper bound on batch width.
	MaxConcurrencyCeiling = 10
	// TaskRateLimit caps task dispatches per second across a phase.
	TaskRateLimit = 20
	// TaskRateBurst is the dispatch burst allowance.
	TaskRateBurst = 40
)

// TaskRunner executes a single task and reports its outcome. Errors are
// settled into failed results by the pool, never propagated mid-batch.
type TaskRunner func(ctx context.Context, task *RecoveryTask) (*TaskExecutionResult, error)

// PoolMetrics tracks batch pool performance.
type PoolMetrics struct {
	TotalTasks      int           `json:"total_tasks"`
	CompletedTasks  int           `json:"completed_tasks"`
	FailedTasks     int           `json:"failed_tasks"`
	RecoveredPanics int           `json:"recovered_panics"`
	BatchesRun      int           `json:"batches_run"`
	AverageTaskTime time.Duration `json:"average_task_time"`
	MaxTaskTime     time.Duration `json:"max_task_time"`
	MinTaskTime     time.Duration `json:"min_task_time"`
}

// BatchPool dispatches task batches with bounded concurrency and all-settle
// semantics: a failing or panicking task never cancels its batch siblings.
type BatchPool struct {
	maxConcurrency int
	limiter        *rate.Limiter

	mu      sync.Mutex
	metrics PoolMetrics
}

// NewBatchPool creates a pool with the given batch width. Widths outside
// [1, MaxConcurrencyCeiling] are clamped.
func NewBatchPool(maxConcurrency int) *BatchPool {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if maxConcurrency > MaxConcurrencyCeiling {
		maxConcurrency = MaxConcurrencyCeiling
	}
	return &BatchPool{
		maxConcurrency: maxConcurrency,
		limiter:        rate.NewLimiter(rate.Limit(TaskRateLimit), TaskRateBurst),
	}
}

// MaxConcurrency returns the effective batch width.
func (p *BatchPool) MaxConcurrency() int { return p.maxConcurrency }

// PartitionTasks splits tasks into order-preserving batches of at most size
// elements: N tasks yield ceil(N/size) batches.
func PartitionTasks(tasks []*RecoveryTask, size int) [][]*RecoveryTask {
	if size <= 0 {
		size = DefaultMaxConcurrency
	}
	var batches [][]*RecoveryTask
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		batches = append(batches, tasks[start:end])
	}
	return batches
}

// RunBatch dispatches one batch concurrently and waits for every member to
// settle. Results are returned in task order regardless of completion
// interleaving; a task that errored or panicked settles as a failed result.
func (p *BatchPool) RunBatch(ctx context.Context, batch []*RecoveryTask, run TaskRunner) []*TaskExecutionResult {
	results := make([]*TaskExecutionResult, len(batch))

	var wg sync.WaitGroup
	for i, task := range batch {
		wg.Add(1)
		go func(idx int, t *RecoveryTask) {
			defer wg.Done()
			results[idx] = p.runSettled(ctx, t, run)
		}(i, task)
	}
	wg.Wait()

	p.mu.Lock()
	p.metrics.BatchesRun++
	p.mu.Unlock()

	return results
}

// runSettled executes one task with rate limiting and panic recovery,
// converting every failure mode into a settled result.
func (p *BatchPool) runSettled(ctx context.Context, task *RecoveryTask, run TaskRunner) (settled *TaskExecutionResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.metrics.RecoveredPanics++
			p.mu.Unlock()
			settled = &TaskExecutionResult{
				TaskID:      task.TaskID,
				TaskType:    task.TaskType,
				Success:     false,
				ErrorOutput: fmt.Sprintf("task panicked: %v", r),
				Duration:    time.Since(start),
			}
			p.recordTask(settled.Duration, false)
		}
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		settled = &TaskExecutionResult{
			TaskID:      task.TaskID,
			TaskType:    task.TaskType,
			Success:     false,
			ErrorOutput: fmt.Sprintf("rate limit wait cancelled: %v", err),
			Duration:    time.Since(start),
		}
		p.recordTask(settled.Duration, false)
		return settled
	}

	result, err := run(ctx, task)
	duration := time.Since(start)

	if err != nil {
		settled = &TaskExecutionResult{
			TaskID:      task.TaskID,
			TaskType:    task.TaskType,
			Success:     false,
			ErrorOutput: err.Error(),
			Duration:    duration,
		}
		p.recordTask(duration, false)
		return settled
	}

	if result == nil {
		result = &TaskExecutionResult{TaskID: task.TaskID, TaskType: task.TaskType}
	}
	result.Duration = duration
	p.recordTask(duration, result.Success)
	return result
}

func (p *BatchPool) recordTask(duration time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.TotalTasks++
	if success {
		p.metrics.CompletedTasks++
	} else {
		p.metrics.FailedTasks++
	}

	if p.metrics.MinTaskTime == 0 || duration < p.metrics.MinTaskTime {
		p.metrics.MinTaskTime = duration
	}
	if duration > p.metrics.MaxTaskTime {
		p.metrics.MaxTaskTime = duration
	}
	if p.metrics.TotalTasks > 0 {
		prev := p.metrics.AverageTaskTime
		n := time.Duration(p.metrics.TotalTasks)
		p.metrics.AverageTaskTime = (prev*(n-1) + duration) / n
	}
}

// Metrics returns a snapshot of pool counters.
func (p *BatchPool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}
