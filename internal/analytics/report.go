package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/workspacedoctor/workspace-doctor/internal/health"
)

// System-wide report thresholds.
const (
	reportSuccessRateFloor = 0.7
	reportSlowModule       = 2 * time.Minute
	reportUnreliableRate   = 0.5
	reportResetCeiling     = 3
)

// GenerateSystemReport filters the operation log to the trailing timeframe
// and derives summary counters, per-module daily trend series, system
// insights, recommendations, and performance extrema. The report is
// persisted as one document when a store is configured.
func (a *Analytics) GenerateSystemReport(timeframe time.Duration) *SystemReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	cutoff := now.Add(-timeframe)

	var window []*OperationRecord
	for _, op := range a.operations {
		if op.StartTime.After(cutoff) {
			window = append(window, op)
		}
	}

	report := &SystemReport{
		ReportID:        uuid.NewString(),
		GeneratedAt:     now,
		Timeframe:       timeframe,
		Summary:         summarize(window),
		Trends:          trendSeries(window),
		Insights:        a.systemInsights(window),
		Recommendations: a.recommendations(window),
		Extremes:        extremes(window),
	}

	if a.store != nil {
		if err := a.store.SaveReport(report); err != nil {
			a.log.WithError(err).WithField("report", report.ReportID).
				Warn("failed to persist system report")
		}
	}

	return report
}

func summarize(window []*OperationRecord) ReportSummary {
	summary := ReportSummary{
		StrategyUsage: make(map[health.Strategy]int),
	}
	modules := make(map[string]struct{})

	var durationSum time.Duration
	var improvementSum float64
	for _, op := range window {
		summary.TotalOperations++
		if op.Success {
			summary.SuccessfulOperations++
		} else {
			summary.FailedOperations++
		}
		summary.StrategyUsage[op.Strategy]++
		durationSum += op.ExecutionTime
		improvementSum += float64(op.HealthImprovement)
		modules[op.ModuleID] = struct{}{}
	}

	if summary.TotalOperations > 0 {
		summary.OverallSuccessRate = float64(summary.SuccessfulOperations) / float64(summary.TotalOperations)
		summary.AverageDuration = durationSum / time.Duration(summary.TotalOperations)
		summary.AverageHealthImprovement = improvementSum / float64(summary.TotalOperations)
	}
	summary.ModulesCovered = len(modules)
	return summary
}

// trendSeries buckets each module's operations by the calendar date of
// their start time, sorted ascending by date.
func trendSeries(window []*OperationRecord) map[string][]TrendPoint {
	type bucket struct {
		ops, successes int
		improvement    float64
	}
	byModule := make(map[string]map[string]*bucket)

	for _, op := range window {
		date := op.StartTime.Format("2006-01-02")
		days, ok := byModule[op.ModuleID]
		if !ok {
			days = make(map[string]*bucket)
			byModule[op.ModuleID] = days
		}
		b, ok := days[date]
		if !ok {
			b = &bucket{}
			days[date] = b
		}
		b.ops++
		if op.Success {
			b.successes++
		}
		b.improvement += float64(op.HealthImprovement)
	}

	trends := make(map[string][]TrendPoint, len(byModule))
	for moduleID, days := range byModule {
		dates := make([]string, 0, len(days))
		for date := range days {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		series := make([]TrendPoint, 0, len(dates))
		for _, date := range dates {
			b := days[date]
			series = append(series, TrendPoint{
				Date:           date,
				Operations:     b.ops,
				Successes:      b.successes,
				SuccessRate:    float64(b.successes) / float64(b.ops),
				AvgImprovement: b.improvement / float64(b.ops),
			})
		}
		trends[moduleID] = series
	}
	return trends
}

// systemInsights derives window-wide observations. Caller holds the lock.
func (a *Analytics) systemInsights(window []*OperationRecord) []RecoveryInsight {
	insights := make([]RecoveryInsight, 0)
	if len(window) == 0 {
		return insights
	}

	successes := 0
	strategyTally := make(map[health.Strategy]*struct{ success, total int })
	for _, op := range window {
		if op.Success {
			successes++
		}
		t, ok := strategyTally[op.Strategy]
		if !ok {
			t = &struct{ success, total int }{}
			strategyTally[op.Strategy] = t
		}
		t.total++
		if op.Success {
			t.success++
		}
	}

	rate := float64(successes) / float64(len(window))
	if rate < reportSuccessRateFloor {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightFailureCause,
			Severity: "warning",
			Message:  fmt.Sprintf("overall success rate %.0f%% is below %.0f%%", rate*100, reportSuccessRateFloor*100),
		})
	}

	best := health.Strategy("")
	bestRate := -1.0
	for _, strategy := range health.Strategies() {
		t, ok := strategyTally[strategy]
		if !ok || t.total == 0 {
			continue
		}
		r := float64(t.success) / float64(t.total)
		if r > bestRate {
			best = strategy
			bestRate = r
		}
	}
	if best != "" {
		insights = append(insights, RecoveryInsight{
			Kind:     InsightSuccessFactor,
			Severity: "info",
			Message:  fmt.Sprintf("best performing strategy: %s (%.0f%% success)", best, bestRate*100),
		})
	}

	return insights
}

// recommendations renders free-text guidance for problem modules. Caller
// holds the lock.
func (a *Analytics) recommendations(window []*OperationRecord) []string {
	recs := make([]string, 0)

	type moduleStats struct {
		total, successes, resets int
		durationSum              time.Duration
	}
	stats := make(map[string]*moduleStats)
	var order []string
	for _, op := range window {
		s, ok := stats[op.ModuleID]
		if !ok {
			s = &moduleStats{}
			stats[op.ModuleID] = s
			order = append(order, op.ModuleID)
		}
		s.total++
		if op.Success {
			s.successes++
		}
		if op.Strategy == health.StrategyReset {
			s.resets++
		}
		s.durationSum += op.ExecutionTime
	}

	for _, moduleID := range order {
		s := stats[moduleID]

		if profile, ok := a.profiles[moduleID]; ok && len(profile.RiskFactors) > 0 {
			recs = append(recs, fmt.Sprintf(
				"module %s carries risk factors %v; review before scheduling further recoveries",
				moduleID, profile.RiskFactors))
		}
		if avg := s.durationSum / time.Duration(s.total); avg > reportSlowModule {
			recs = append(recs, fmt.Sprintf(
				"module %s recoveries average %v; investigate slow phases", moduleID, avg))
		}
		if rate := float64(s.successes) / float64(s.total); rate < reportUnreliableRate && s.total >= 2 {
			recs = append(recs, fmt.Sprintf(
				"module %s succeeds only %.0f%% of the time; consider a rebuild", moduleID, rate*100))
		}
		if s.resets >= reportResetCeiling {
			recs = append(recs, fmt.Sprintf(
				"module %s required %d resets; its baseline structure likely needs attention",
				moduleID, s.resets))
		}
	}

	return recs
}

// extremes scans the window linearly per module; the first module scanned
// wins ties.
func extremes(window []*OperationRecord) PerformanceExtremes {
	type moduleStats struct {
		total, successes int
		durationSum      time.Duration
		improvementSum   float64
	}
	stats := make(map[string]*moduleStats)
	var order []string
	for _, op := range window {
		s, ok := stats[op.ModuleID]
		if !ok {
			s = &moduleStats{}
			stats[op.ModuleID] = s
			order = append(order, op.ModuleID)
		}
		s.total++
		if op.Success {
			s.successes++
		}
		s.durationSum += op.ExecutionTime
		s.improvementSum += float64(op.HealthImprovement)
	}

	var ex PerformanceExtremes
	var fastest, slowest time.Duration
	var mostImproved, bestRate, worstRate float64
	first := true

	for _, moduleID := range order {
		s := stats[moduleID]
		avgDuration := s.durationSum / time.Duration(s.total)
		avgImprovement := s.improvementSum / float64(s.total)
		rate := float64(s.successes) / float64(s.total)

		if first {
			ex.FastestModule, fastest = moduleID, avgDuration
			ex.SlowestModule, slowest = moduleID, avgDuration
			ex.MostImprovedModule, mostImproved = moduleID, avgImprovement
			ex.MostReliableModule, bestRate = moduleID, rate
			ex.LeastReliableModule, worstRate = moduleID, rate
			first = false
			continue
		}
		if avgDuration < fastest {
			ex.FastestModule, fastest = moduleID, avgDuration
		}
		if avgDuration > slowest {
			ex.SlowestModule, slowest = moduleID, avgDuration
		}
		if avgImprovement > mostImproved {
			ex.MostImprovedModule, mostImproved = moduleID, avgImprovement
		}
		if rate > bestRate {
			ex.MostReliableModule, bestRate = moduleID, rate
		}
		if rate < worstRate {
			ex.LeastReliableModule, worstRate = moduleID, rate
		}
	}

	return ex
}
