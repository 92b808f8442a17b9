package analytics

import (
	"fmt"
	"time"

	"github.com/workspacedoctor/workspace-doctor/internal/health"
)

// Risk factor heuristic thresholds.
const (
	riskFailureRate        = 0.3
	riskResetRate          = 0.2
	riskSlowRate           = 0.5
	riskSlowOperation      = 2 * time.Minute
	riskLowImprovementRate = 0.4
	riskLowImprovement     = 20
	riskTrendWindow        = 7 * 24 * time.Hour
	riskTrendSuccessFloor  = 0.6
	riskTrendMinOperations = 3
)

// recomputeProfile rebuilds the module's profile from its full operation
// history. Recomputing twice from the same log yields the same profile.
// Caller holds the lock.
func (a *Analytics) recomputeProfile(moduleID string) {
	ops := a.moduleOperations(moduleID)
	if len(ops) == 0 {
		delete(a.profiles, moduleID)
		return
	}

	profile := &ModuleRecoveryProfile{
		ModuleID:        moduleID,
		TotalOperations: len(ops),
		LastAnalyzed:    a.now(),
	}

	var durationSum time.Duration
	var improvementSum float64
	for _, op := range ops {
		if op.Success {
			profile.SuccessfulOperations++
		}
		durationSum += op.ExecutionTime
		improvementSum += float64(op.HealthImprovement)
	}

	profile.SuccessRate = float64(profile.SuccessfulOperations) / float64(profile.TotalOperations)
	profile.AverageDuration = durationSum / time.Duration(profile.TotalOperations)
	profile.AverageHealthImprovement = improvementSum / float64(profile.TotalOperations)

	profile.MostEffectiveStrategy = mostEffectiveStrategy(ops)
	profile.RecommendedStrategy = recommendedStrategy(profile)
	profile.RiskFactors = a.riskFactors(ops)

	a.profiles[moduleID] = profile
}

// mostEffectiveStrategy picks the strategy with the highest per-strategy
// success rate. Ties keep the first strategy in the fixed enumeration order
// repair, rebuild, reset.
func mostEffectiveStrategy(ops []*OperationRecord) health.Strategy {
	type tally struct{ success, total int }
	counts := make(map[health.Strategy]*tally)
	for _, op := range ops {
		t, ok := counts[op.Strategy]
		if !ok {
			t = &tally{}
			counts[op.Strategy] = t
		}
		t.total++
		if op.Success {
			t.success++
		}
	}

	best := health.Strategy("")
	bestRate := -1.0
	for _, strategy := range health.Strategies() {
		t, ok := counts[strategy]
		if !ok || t.total == 0 {
			continue
		}
		rate := float64(t.success) / float64(t.total)
		if rate > bestRate {
			best = strategy
			bestRate = rate
		}
	}
	return best
}

// recommendedStrategy renders the free-text recovery policy line attached
// to a profile.
func recommendedStrategy(p *ModuleRecoveryProfile) string {
	if p.MostEffectiveStrategy == "" {
		return "insufficient history; start with repair"
	}
	return fmt.Sprintf("prefer %s (%.0f%% success over %d operations)",
		p.MostEffectiveStrategy, p.SuccessRate*100, p.TotalOperations)
}

// riskFactors applies the fixed heuristics over the module's history.
// Caller holds the lock.
func (a *Analytics) riskFactors(ops []*OperationRecord) []string {
	factors := make([]string, 0)
	total := len(ops)
	if total == 0 {
		return factors
	}

	failures, resets, slow, lowImprovement := 0, 0, 0, 0
	for _, op := range ops {
		if !op.Success {
			failures++
		}
		if op.Strategy == health.StrategyReset {
			resets++
		}
		if op.ExecutionTime > riskSlowOperation {
			slow++
		}
		if op.HealthImprovement < riskLowImprovement {
			lowImprovement++
		}
	}

	if float64(failures)/float64(total) > riskFailureRate {
		factors = append(factors, RiskHighFailureRate)
	}
	if float64(resets)/float64(total) > riskResetRate {
		factors = append(factors, RiskFrequentResets)
	}
	if float64(slow)/float64(total) > riskSlowRate {
		factors = append(factors, RiskSlowRecoveries)
	}
	if float64(lowImprovement)/float64(total) > riskLowImprovementRate {
		factors = append(factors, RiskLowImprovement)
	}

	// Trailing-window trend: at least riskTrendMinOperations recent
	// operations with a success rate below the floor.
	cutoff := a.now().Add(-riskTrendWindow)
	recentTotal, recentSuccess := 0, 0
	for _, op := range ops {
		if op.StartTime.After(cutoff) {
			recentTotal++
			if op.Success {
				recentSuccess++
			}
		}
	}
	if recentTotal >= riskTrendMinOperations &&
		float64(recentSuccess)/float64(recentTotal) < riskTrendSuccessFloor {
		factors = append(factors, RiskDecliningTrend)
	}

	return factors
}
