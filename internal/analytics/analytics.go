package analytics

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
	"github.com/workspacedoctor/workspace-doctor/internal/recovery"
)

// Insight thresholds. Fixed values; the feedback loop depends on them being
// stable across operations.
const (
	highImprovementThreshold = 50
	fastRecoveryThreshold    = 30 * time.Second
	slowRecoveryThreshold    = 120 * time.Second
)

// Analytics maintains the operation log and per-module profiles. All access
// is serialized through one mutex: profile recomputation reads the full log
// and must not race with appends.
type Analytics struct {
	mu         sync.Mutex
	operations []*OperationRecord
	profiles   map[string]*ModuleRecoveryProfile

	store *Store
	log   *logrus.Logger
	now   func() time.Time
}

// New creates an analytics recorder. The store is optional; without one,
// history is in-memory only.
func New(store *Store, log *logrus.Logger) *Analytics {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Analytics{
		operations: make([]*OperationRecord, 0),
		profiles:   make(map[string]*ModuleRecoveryProfile),
		store:      store,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Tests use this to build deterministic
// trailing windows.
func (a *Analytics) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// RecordOperation derives metrics and insights from a completed recovery
// operation, appends it to the log, and recomputes the module's profile
// from the full log. Persistence failures are logged and swallowed:
// recording never fails the triggering recovery.
func (a *Analytics) RecordOperation(operationID, moduleID string, strategy health.Strategy, result *recovery.RecoveryResult, rctx recovery.RecoveryContext) *OperationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	record := &OperationRecord{
		OperationID:       operationID,
		ModuleID:          moduleID,
		Strategy:          strategy,
		Success:           result.Success,
		StartTime:         result.StartTime,
		ExecutionTime:     result.ExecutionTime,
		HealthImprovement: result.HealthImprovement,
		TotalErrors:       result.TotalErrors,
		PhaseCount:        len(result.Phases),
		Context:           rctx,
		Result:            result,
	}
	if record.StartTime.IsZero() {
		record.StartTime = a.now()
	}
	for _, phase := range result.Phases {
		if phase.Status == recovery.PhaseFailed {
			record.FailedPhases++
		}
	}

	record.Metrics = a.deriveMetrics(record, result)
	record.Insights = deriveInsights(record)

	a.operations = append(a.operations, record)
	a.recomputeProfile(moduleID)

	if a.store != nil {
		if err := a.store.SaveOperation(record); err != nil {
			a.log.WithError(err).WithField("operation", operationID).
				Warn("failed to persist operation record")
		}
		if profile, ok := a.profiles[moduleID]; ok {
			if err := a.store.SaveProfile(profile); err != nil {
				a.log.WithError(err).WithField("module", moduleID).
					Warn("failed to persist module profile")
			}
		}
	}

	a.log.WithFields(logrus.Fields{
		"operation": operationID,
		"module":    moduleID,
		"strategy":  strategy,
		"success":   result.Success,
	}).Info("recovery operation recorded")

	return record
}

// deriveMetrics computes the per-operation metrics, including MTTR/MTBF
// over the module's existing history. Caller holds the lock.
func (a *Analytics) deriveMetrics(record *OperationRecord, result *recovery.RecoveryResult) RecoveryMetrics {
	m := RecoveryMetrics{}

	var cumulative, total time.Duration
	firstSuccessFound := false
	for _, phase := range result.Phases {
		cumulative += phase.Duration
		total += phase.Duration
		if !firstSuccessFound && phase.Status == recovery.PhaseCompleted {
			m.TimeToFirstSuccess = cumulative
			firstSuccessFound = true
		}
	}
	if n := len(result.Phases); n > 0 {
		m.MeanPhaseDuration = total / time.Duration(n)
		m.ErrorDensity = float64(record.TotalErrors) / float64(n)
	}

	if minutes := record.ExecutionTime.Minutes(); minutes > 0 {
		m.RecoveryEfficiency = float64(record.HealthImprovement) / minutes
	}

	// MTTR: mean duration of this module's past successful operations.
	var mttrSum time.Duration
	mttrCount := 0
	for _, op := range a.operations {
		if op.ModuleID == record.ModuleID && op.Success {
			mttrSum += op.ExecutionTime
			mttrCount++
		}
	}
	if mttrCount > 0 {
		m.MTTR = mttrSum / time.Duration(mttrCount)
	}

	// MTBF: mean inter-arrival time across this module's operations,
	// including the one being recorded.
	var starts []time.Time
	for _, op := range a.operations {
		if op.ModuleID == record.ModuleID {
			starts = append(starts, op.StartTime)
		}
	}
	starts = append(starts, record.StartTime)
	if len(starts) > 1 {
		var gapSum time.Duration
		for i := 1; i < len(starts); i++ {
			gapSum += starts[i].Sub(starts[i-1])
		}
		m.MTBF = gapSum / time.Duration(len(starts)-1)
	}

	return m
}

// deriveInsights applies the fixed insight thresholds to one operation.
func deriveInsights(record *OperationRecord) []RecoveryInsight {
	insights := make([]RecoveryInsight, 0)

	if record.HealthImprovement > highImprovementThreshold {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightSuccessFactor,
			Severity: "info",
			Message: fmt.Sprintf("strategy %s improved %s health by %d points",
				record.Strategy, record.ModuleID, record.HealthImprovement),
		})
	}

	if record.ExecutionTime > 0 && record.ExecutionTime < fastRecoveryThreshold {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightPerformance,
			Severity: "info",
			Message:  fmt.Sprintf("fast recovery: completed in %v", record.ExecutionTime),
		})
	}

	if record.FailedPhases > 0 {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightFailureCause,
			Severity: "warning",
			Message:  fmt.Sprintf("%d phase(s) failed during recovery of %s", record.FailedPhases, record.ModuleID),
		})
	}

	if record.ExecutionTime > slowRecoveryThreshold {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightOptimization,
			Severity: "warning",
			Message:  fmt.Sprintf("recovery took %v; consider a lighter strategy or narrower phases", record.ExecutionTime),
		})
	}

	if record.Strategy == health.StrategyReset && record.Success {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightRisk,
			Severity: "warning",
			Message:  fmt.Sprintf("module %s required a full reset; underlying cause may persist", record.ModuleID),
		})
	}

	return insights
}

// Operations returns a copy of the operation log.
func (a *Analytics) Operations() []*OperationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*OperationRecord, len(a.operations))
	copy(out, a.operations)
	return out
}

// Profile returns the module's current profile, if any operations were
// recorded for it.
func (a *Analytics) Profile(moduleID string) (*ModuleRecoveryProfile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.profiles[moduleID]
	return p, ok
}

// moduleOperations filters the log for one module. Caller holds the lock.
func (a *Analytics) moduleOperations(moduleID string) []*OperationRecord {
	var out []*OperationRecord
	for _, op := range a.operations {
		if op.ModuleID == moduleID {
			out = append(out, op)
		}
	}
	return out
}
