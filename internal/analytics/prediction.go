package analytics

import (
	"time"

	"github.com/workspacedoctor/workspace-doctor/internal/health"
)

// Defaults applied when a (module, strategy) pair has no history.
const (
	defaultPredictedSuccessRate = 0.5
	defaultPredictedDuration    = 60000 * time.Millisecond
	defaultPredictedImprovement = 30.0
	confidenceFullHistory       = 10
)

var strategyPros = map[health.Strategy][]string{
	health.StrategyRepair:  {"fastest option", "non-destructive", "preserves local changes"},
	health.StrategyRebuild: {"refreshes build artifacts", "resolves stale output", "moderate risk"},
	health.StrategyReset:   {"restores known-good baseline", "clears accumulated drift"},
}

var strategyCons = map[health.Strategy][]string{
	health.StrategyRepair:  {"may not fix structural damage"},
	health.StrategyRebuild: {"slower than repair", "discards build cache"},
	health.StrategyReset:   {"slowest option", "discards local configuration"},
}

// PredictOutcome estimates success rate, duration, and health improvement
// for applying a strategy to a module, from the means of that module's
// operations with the same strategy. Pairs with no history fall back to
// fixed defaults with zero confidence.
func (a *Analytics) PredictOutcome(moduleID string, strategy health.Strategy) *RecoveryPrediction {
	a.mu.Lock()
	defer a.mu.Unlock()

	prediction := &RecoveryPrediction{
		ModuleID: moduleID,
		Strategy: strategy,
	}

	rate, duration, improvement, count := a.strategyMeans(moduleID, strategy)
	if count == 0 {
		prediction.PredictedSuccessRate = defaultPredictedSuccessRate
		prediction.PredictedDuration = defaultPredictedDuration
		prediction.PredictedHealthImprovement = defaultPredictedImprovement
	} else {
		prediction.PredictedSuccessRate = rate
		prediction.PredictedDuration = duration
		prediction.PredictedHealthImprovement = improvement
	}

	prediction.Confidence = float64(count) / confidenceFullHistory
	if prediction.Confidence > 1 {
		prediction.Confidence = 1
	}

	if profile, ok := a.profiles[moduleID]; ok {
		prediction.RiskFactors = append(prediction.RiskFactors, profile.RiskFactors...)
	}

	for _, alt := range health.Strategies() {
		if alt == strategy {
			continue
		}
		altRate, _, _, altCount := a.strategyMeans(moduleID, alt)
		predicted := altRate
		if altCount == 0 {
			predicted = defaultPredictedSuccessRate
		}
		prediction.Alternatives = append(prediction.Alternatives, StrategyAlternative{
			Strategy:              alt,
			PredictedSuccessRate:  predicted,
			HistoricalSuccessRate: altRate,
			OperationCount:        altCount,
			Pros:                  strategyPros[alt],
			Cons:                  strategyCons[alt],
		})
	}

	return prediction
}

// strategyMeans computes per-(module, strategy) historical means. Caller
// holds the lock.
func (a *Analytics) strategyMeans(moduleID string, strategy health.Strategy) (rate float64, duration time.Duration, improvement float64, count int) {
	successes := 0
	var durationSum time.Duration
	var improvementSum float64

	for _, op := range a.operations {
		if op.ModuleID != moduleID || op.Strategy != strategy {
			continue
		}
		count++
		if op.Success {
			successes++
		}
		durationSum += op.ExecutionTime
		improvementSum += float64(op.HealthImprovement)
	}

	if count == 0 {
		return 0, 0, 0, 0
	}
	return float64(successes) / float64(count),
		durationSum / time.Duration(count),
		improvementSum / float64(count),
		count
}
