// Package health assesses the structural soundness of workspace modules and
// aggregates per-module state into workspace-level health.
package health

import (
	"time"

	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

// Status bands a module's health score into an operational state.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusFailed   Status = "failed"
	StatusUnknown  Status = "unknown"
)

// DependencyHealth summarizes the state of a module's dependency tree.
type DependencyHealth string

const (
	DependenciesResolved   DependencyHealth = "resolved"
	DependenciesMissing    DependencyHealth = "missing"
	DependenciesConflicted DependencyHealth = "conflicted"
)

// Strategy selects how a module should be recovered.
type Strategy string

const (
	StrategyRepair  Strategy = "repair"
	StrategyRebuild Strategy = "rebuild"
	StrategyReset   Strategy = "reset"
)

// Strategies returns all recovery strategies in their fixed enumeration
// order. Tie-breaks across the codebase rely on this order.
func Strategies() []Strategy {
	return []Strategy{StrategyRepair, StrategyRebuild, StrategyReset}
}

// IssueImpact describes how an issue affects the module.
type IssueImpact string

const (
	ImpactBlocksFunctionality   IssueImpact = "blocks_functionality"
	ImpactDegradesFunctionality IssueImpact = "degrades_functionality"
	ImpactCosmetic              IssueImpact = "cosmetic"
)

// Issue is one finding of a structural check. ErrorID values are stable
// across releases so callers and tests can match on them.
type Issue struct {
	ErrorID string      `json:"error_id"`
	Message string      `json:"message"`
	Impact  IssueImpact `json:"impact"`
}

// Stable issue identifiers emitted by the assessor checks.
const (
	IssueModuleDirectoryMissing    = "module_directory_missing"
	IssueModuleDirectoryUnreadable = "module_directory_unreadable"
	IssueModuleDirectoryEmpty      = "module_directory_empty"
	IssueManifestMissing           = "manifest_missing"
	IssueManifestInvalid           = "manifest_invalid"
	IssueManifestMissingFields     = "manifest_missing_fields"
	IssueTypeConfigMissing         = "tsconfig_missing"
	IssueTypeConfigInvalid         = "tsconfig_invalid"
	IssueBuildConfigMissing        = "build_config_missing"
	IssueDependenciesNotInstalled  = "dependencies_not_installed"
	IssueDependencyConflict        = "dependency_conflict"
	IssueSourceRootMissing         = "source_root_missing"
	IssueIndexEntryMissing         = "index_entry_missing"
)

// RecoveryState carries the assessor's recovery recommendation.
type RecoveryState struct {
	RecoveryNeeded   bool     `json:"recovery_needed"`
	RecoveryPriority int      `json:"recovery_priority"`
	RecoveryStrategy Strategy `json:"recovery_strategy"`
}

// ModuleState is an immutable per-module assessment snapshot. Every
// AnalyzeModule call recomputes it from scratch; nothing is persisted
// incrementally.
type ModuleState struct {
	ModuleID         string             `json:"module_id"`
	Category         workspace.Category `json:"category"`
	HealthScore      int                `json:"health_score"`
	Status           Status             `json:"status"`
	PackageJSONValid bool               `json:"package_json_valid"`
	TSConfigValid    bool               `json:"tsconfig_valid"`
	BuildConfigValid bool               `json:"build_config_valid"`
	DependencyHealth DependencyHealth   `json:"dependency_health"`

	CriticalErrors    []Issue  `json:"critical_errors"`
	NonCriticalErrors []Issue  `json:"non_critical_errors"`
	Warnings          []Issue  `json:"warnings"`
	BuildWarnings     []string `json:"build_warnings"`
	Dependencies      []string `json:"dependencies"`

	Recovery       RecoveryState `json:"recovery_state"`
	LastAssessment time.Time     `json:"last_assessment"`
}

// HasStructuralError reports whether the module carries an error that makes
// in-place repair impossible (the module directory itself is unusable).
func (s *ModuleState) HasStructuralError() bool {
	for _, issue := range s.CriticalErrors {
		switch issue.ErrorID {
		case IssueModuleDirectoryMissing, IssueModuleDirectoryEmpty, IssueModuleDirectoryUnreadable:
			return true
		}
	}
	return false
}

// HasBlockingError reports whether any critical error blocks functionality.
func (s *ModuleState) HasBlockingError() bool {
	for _, issue := range s.CriticalErrors {
		if issue.Impact == ImpactBlocksFunctionality {
			return true
		}
	}
	return false
}

// WorkspaceHealth aggregates module states for one AnalyzeWorkspace call.
type WorkspaceHealth struct {
	Modules            map[string]*ModuleState `json:"modules"`
	OverallHealthScore int                     `json:"overall_health_score"`
	Recommendations    []string                `json:"recommendations"`
	CriticalIssues     []string                `json:"critical_issues"`
	AnalyzedAt         time.Time               `json:"analyzed_at"`
}

// ModulesNeedingRecovery returns ids of modules below the healthy band, in
// workspace enumeration order.
func (h *WorkspaceHealth) ModulesNeedingRecovery() []string {
	var out []string
	for _, id := range workspace.KnownModules() {
		if state, ok := h.Modules[id]; ok && state.Recovery.RecoveryNeeded {
			out = append(out, id)
		}
	}
	return out
}

// ConfigValidation is the advisory result of workspace-level configuration
// validation. It has no side effects.
type ConfigValidation struct {
	Valid           bool     `json:"valid"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}
