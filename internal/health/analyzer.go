package health

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

// AnalyzeOptions narrows or tunes a workspace analysis pass.
type AnalyzeOptions struct {
	// Modules restricts the analysis to the given ids; empty means all
	// known modules.
	Modules []string

	// UseCache serves snapshots from the analysis cache when fresh.
	UseCache bool
}

// Analyzer fans the assessor out over the workspace module set and derives
// aggregate health, recommendations, and critical issues.
type Analyzer struct {
	ws       *workspace.Workspace
	assessor *Assessor
	cache    *workspace.AnalysisCache
	log      *logrus.Logger
}

// NewAnalyzer creates a workspace analyzer. The cache is optional.
func NewAnalyzer(ws *workspace.Workspace, cache *workspace.AnalysisCache, log *logrus.Logger) *Analyzer {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Analyzer{
		ws:       ws,
		assessor: NewAssessor(ws, log),
		cache:    cache,
		log:      log,
	}
}

// AnalyzeModule assesses a single module, honoring the cache when enabled.
func (a *Analyzer) AnalyzeModule(moduleID string, useCache bool) (*ModuleState, error) {
	if useCache && a.cache != nil {
		if data, ok := a.cache.Get(moduleID); ok {
			if state, ok := data.(*ModuleState); ok {
				return state, nil
			}
		}
	}

	state, err := a.assessor.AnalyzeModule(moduleID)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		a.cache.Set(moduleID, state, 0)
	}
	return state, nil
}

// AnalyzeWorkspace assesses the requested module set and aggregates the
// snapshots into WorkspaceHealth. A module whose assessment fails yields a
// synthetic failed state instead of aborting the scan; only requesting an
// unknown module id fails the call.
func (a *Analyzer) AnalyzeWorkspace(opts AnalyzeOptions) (*WorkspaceHealth, error) {
	ids := opts.Modules
	if len(ids) == 0 {
		ids = workspace.KnownModules()
	} else {
		for _, id := range ids {
			if !workspace.IsKnownModule(id) {
				return nil, &workspace.InvalidModuleError{ModuleID: id}
			}
		}
	}

	result := &WorkspaceHealth{
		Modules:         make(map[string]*ModuleState, len(ids)),
		Recommendations: make([]string, 0),
		CriticalIssues:  make([]string, 0),
		AnalyzedAt:      time.Now(),
	}

	for _, id := range ids {
		state, err := a.AnalyzeModule(id, opts.UseCache)
		if err != nil {
			a.log.WithFields(logrus.Fields{
				"module": id,
				"error":  err,
			}).Error("module assessment failed, recording synthetic state")
			state = syntheticFailedState(id, err)
		}
		result.Modules[id] = state
	}

	result.OverallHealthScore = overallScore(result.Modules)
	a.deriveFindings(result)

	a.log.WithFields(logrus.Fields{
		"modules": len(result.Modules),
		"overall": result.OverallHealthScore,
	}).Info("workspace analyzed")

	return result, nil
}

// deriveFindings flattens critical errors across modules and applies the
// score-based recommendation heuristics.
func (a *Analyzer) deriveFindings(h *WorkspaceHealth) {
	for _, id := range workspace.KnownModules() {
		state, ok := h.Modules[id]
		if !ok {
			continue
		}

		for _, issue := range state.CriticalErrors {
			h.CriticalIssues = append(h.CriticalIssues,
				fmt.Sprintf("%s: %s", id, issue.Message))
		}

		if state.HealthScore < RepairScoreFloor {
			h.Recommendations = append(h.Recommendations,
				fmt.Sprintf("module %s needs critical recovery (score %d)", id, state.HealthScore))
		}
		if !state.PackageJSONValid {
			h.Recommendations = append(h.Recommendations,
				fmt.Sprintf("fix the package manifest of module %s", id))
		}
		if state.DependencyHealth != DependenciesResolved {
			h.Recommendations = append(h.Recommendations,
				fmt.Sprintf("resolve dependencies of module %s (%s)", id, state.DependencyHealth))
		}
	}
}

// ValidateConfiguration performs the workspace-level structural check:
// root manifest presence, declared workspace globs, required scripts, and
// type-config reference presence. Advisory only.
func (a *Analyzer) ValidateConfiguration() *ConfigValidation {
	v := &ConfigValidation{
		Valid:           true,
		Errors:          make([]string, 0),
		Warnings:        make([]string, 0),
		Recommendations: make([]string, 0),
	}

	manifest, err := a.ws.ReadWorkspaceManifest()
	if err != nil {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("workspace manifest unreadable: %v", err))
		v.Recommendations = append(v.Recommendations,
			"create a root package.json declaring the workspace packages")
		return v
	}

	if len(manifest.Workspaces) == 0 {
		v.Valid = false
		v.Errors = append(v.Errors, "workspace manifest declares no workspace globs")
		v.Recommendations = append(v.Recommendations,
			`add a "workspaces" entry covering packages/*`)
	}

	for _, script := range []string{"build", "test"} {
		if _, ok := manifest.Scripts[script]; !ok {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("workspace manifest has no %q script", script))
		}
	}

	for _, id := range workspace.KnownModules() {
		if !a.ws.ModuleDirExists(id) {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("declared module %s has no package directory", id))
			continue
		}
		if tc, err := a.ws.ReadTypeConfig(id); err == nil {
			if len(tc.References) == 0 && tc.Extends == "" {
				v.Recommendations = append(v.Recommendations,
					fmt.Sprintf("module %s tsconfig declares no project references or base config", id))
			}
		}
	}

	return v
}

// syntheticFailedState records an assessment failure as data so a workspace
// scan never aborts on one broken module.
func syntheticFailedState(moduleID string, cause error) *ModuleState {
	return &ModuleState{
		ModuleID:         moduleID,
		Category:         workspace.ModuleCategory(moduleID),
		HealthScore:      0,
		Status:           StatusFailed,
		DependencyHealth: DependenciesMissing,
		CriticalErrors: []Issue{{
			ErrorID: IssueModuleDirectoryUnreadable,
			Message: fmt.Sprintf("assessment failed: %v", cause),
			Impact:  ImpactBlocksFunctionality,
		}},
		NonCriticalErrors: make([]Issue, 0),
		Warnings:          make([]Issue, 0),
		BuildWarnings:     make([]string, 0),
		Dependencies:      make([]string, 0),
		Recovery: RecoveryState{
			RecoveryNeeded:   true,
			RecoveryPriority: 1,
			RecoveryStrategy: StrategyReset,
		},
		LastAssessment: time.Now(),
	}
}

// overallScore is the arithmetic mean of module scores, rounded half-up.
func overallScore(modules map[string]*ModuleState) int {
	if len(modules) == 0 {
		return 0
	}
	sum := 0
	for _, state := range modules {
		sum += state.HealthScore
	}
	return int(math.Round(float64(sum) / float64(len(modules))))
}
