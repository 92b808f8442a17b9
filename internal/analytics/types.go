// Package analytics records recovery operation history, derives per-module
// recovery profiles and system-wide reports, and predicts outcomes for
// future strategy choices.
package analytics

import (
	"time"

	"github.com/workspacedoctor/workspace-doctor/internal/health"
	"github.com/workspacedoctor/workspace-doctor/internal/recovery"
)

// RecoveryMetrics are derived from a single operation's result.
type RecoveryMetrics struct {
	// TimeToFirstSuccess is the elapsed phase time until the first phase
	// completed; zero when no phase completed.
	TimeToFirstSuccess time.Duration `json:"time_to_first_success"`
	// MeanPhaseDuration averages over all executed phases.
	MeanPhaseDuration time.Duration `json:"mean_phase_duration"`
	// ErrorDensity is total errors per phase.
	ErrorDensity float64 `json:"error_density"`
	// RecoveryEfficiency is health improvement per minute of execution.
	RecoveryEfficiency float64 `json:"recovery_efficiency"`
	// MTTR is the mean duration of this module's past successful operations.
	MTTR time.Duration `json:"mttr"`
	// MTBF is the mean inter-arrival time between this module's operations.
	MTBF time.Duration `json:"mtbf"`
}

// InsightKind classifies a derived insight.
type InsightKind string

const (
	InsightSuccessFactor InsightKind = "success_factor"
	InsightPerformance   InsightKind = "performance"
	InsightFailureCause  InsightKind = "failure_cause"
	InsightOptimization  InsightKind = "optimization"
	InsightRisk          InsightKind = "risk"
)

// RecoveryInsight is one threshold-derived observation about an operation
// or about the system as a whole.
type RecoveryInsight struct {
	Kind     InsightKind `json:"kind"`
	Message  string      `json:"message"`
	Severity string      `json:"severity"`
}

// OperationRecord is the analytics view of one completed recovery
// operation, appended to the in-memory log and persisted as one document.
type OperationRecord struct {
	OperationID string          `json:"operation_id"`
	ModuleID    string          `json:"module_id"`
	Strategy    health.Strategy `json:"strategy"`
	Success     bool            `json:"success"`

	StartTime         time.Time     `json:"start_time"`
	ExecutionTime     time.Duration `json:"execution_time"`
	HealthImprovement int           `json:"health_improvement"`
	TotalErrors       int           `json:"total_errors"`
	PhaseCount        int           `json:"phase_count"`
	FailedPhases      int           `json:"failed_phases"`

	Metrics  RecoveryMetrics          `json:"metrics"`
	Insights []RecoveryInsight        `json:"insights"`
	Context  recovery.RecoveryContext `json:"context"`

	Result *recovery.RecoveryResult `json:"result,omitempty"`
}

// ModuleRecoveryProfile is the accumulated historical record for one
// module. It is recomputed in full from the operation log on every recorded
// operation; there is no incremental state to drift.
type ModuleRecoveryProfile struct {
	ModuleID             string `json:"module_id"`
	TotalOperations      int    `json:"total_operations"`
	SuccessfulOperations int    `json:"successful_operations"`

	SuccessRate              float64       `json:"success_rate"`
	AverageDuration          time.Duration `json:"average_duration"`
	AverageHealthImprovement float64       `json:"average_health_improvement"`

	MostEffectiveStrategy health.Strategy `json:"most_effective_strategy"`
	RecommendedStrategy   string          `json:"recommended_strategy"`

	RiskFactors  []string  `json:"risk_factors"`
	LastAnalyzed time.Time `json:"last_analyzed"`
}

// Risk factor tags attached by the profile heuristics.
const (
	RiskHighFailureRate = "high_failure_rate"
	RiskFrequentResets  = "frequent_resets"
	RiskSlowRecoveries  = "slow_recoveries"
	RiskLowImprovement  = "low_improvement"
	RiskDecliningTrend  = "declining_success_trend"
)

// StrategyAlternative pairs another strategy with its historical rate and
// static trade-offs.
type StrategyAlternative struct {
	Strategy              health.Strategy `json:"strategy"`
	PredictedSuccessRate  float64         `json:"predicted_success_rate"`
	HistoricalSuccessRate float64         `json:"historical_success_rate"`
	OperationCount        int             `json:"operation_count"`
	Pros                  []string        `json:"pros"`
	Cons                  []string        `json:"cons"`
}

// RecoveryPrediction estimates the outcome of applying a strategy to a
// module based on its operation history.
type RecoveryPrediction struct {
	ModuleID string          `json:"module_id"`
	Strategy health.Strategy `json:"strategy"`

	PredictedSuccessRate       float64       `json:"predicted_success_rate"`
	PredictedDuration          time.Duration `json:"predicted_duration"`
	PredictedHealthImprovement float64       `json:"predicted_health_improvement"`

	// Confidence grows with history: min(operationCount/10, 1).
	Confidence float64 `json:"confidence"`

	RiskFactors  []string              `json:"risk_factors"`
	Alternatives []StrategyAlternative `json:"alternatives"`
}

// ReportSummary holds the windowed counters of a system report.
type ReportSummary struct {
	TotalOperations          int                     `json:"total_operations"`
	SuccessfulOperations     int                     `json:"successful_operations"`
	FailedOperations         int                     `json:"failed_operations"`
	OverallSuccessRate       float64                 `json:"overall_success_rate"`
	AverageDuration          time.Duration           `json:"average_duration"`
	AverageHealthImprovement float64                 `json:"average_health_improvement"`
	StrategyUsage            map[health.Strategy]int `json:"strategy_usage"`
	ModulesCovered           int                     `json:"modules_covered"`
}

// TrendPoint is one calendar-day bucket of a module's trend series.
type TrendPoint struct {
	Date           string  `json:"date"`
	Operations     int     `json:"operations"`
	Successes      int     `json:"successes"`
	SuccessRate    float64 `json:"success_rate"`
	AvgImprovement float64 `json:"avg_improvement"`
}

// PerformanceExtremes names the modules at the edges of the distribution.
// Ties keep the first module scanned.
type PerformanceExtremes struct {
	FastestModule       string `json:"fastest_module,omitempty"`
	SlowestModule       string `json:"slowest_module,omitempty"`
	MostImprovedModule  string `json:"most_improved_module,omitempty"`
	LeastReliableModule string `json:"least_reliable_module,omitempty"`
	MostReliableModule  string `json:"most_reliable_module,omitempty"`
}

// SystemReport is the windowed system-wide analytics report.
type SystemReport struct {
	ReportID    string        `json:"report_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Timeframe   time.Duration `json:"timeframe"`

	Summary         ReportSummary           `json:"summary"`
	Trends          map[string][]TrendPoint `json:"trends"`
	Insights        []RecoveryInsight       `json:"insights"`
	Recommendations []string                `json:"recommendations"`
	Extremes        PerformanceExtremes     `json:"extremes"`
}
