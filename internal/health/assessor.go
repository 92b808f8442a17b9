package health

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

// Score thresholds and per-category penalties. The scoring function is
// deterministic: same filesystem state, same score.
const (
	MaxHealthScore    = 100
	HealthyThreshold  = 85
	DegradedThreshold = 60

	// RepairScoreFloor is the minimum score for in-place repair.
	RepairScoreFloor = 50
	// ResetScoreCeiling is the score below which only a full reset helps.
	ResetScoreCeiling = 25

	penaltyCriticalError    = 25
	penaltyNonCriticalError = 10
	penaltyWarning          = 5
)

// Assessor inspects one module's file and configuration state and produces
// a ModuleState snapshot.
type Assessor struct {
	ws  *workspace.Workspace
	log *logrus.Logger
}

// NewAssessor creates an assessor over the given workspace. A nil logger
// gets a warn-level default.
func NewAssessor(ws *workspace.Workspace, log *logrus.Logger) *Assessor {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &Assessor{ws: ws, log: log}
}

// AnalyzeModule recomputes the module's health snapshot from scratch.
// An unknown module id fails with *workspace.InvalidModuleError.
func (a *Assessor) AnalyzeModule(moduleID string) (*ModuleState, error) {
	if !workspace.IsKnownModule(moduleID) {
		return nil, &workspace.InvalidModuleError{ModuleID: moduleID}
	}

	state := &ModuleState{
		ModuleID:          moduleID,
		Category:          workspace.ModuleCategory(moduleID),
		Status:            StatusUnknown,
		DependencyHealth:  DependenciesResolved,
		CriticalErrors:    make([]Issue, 0),
		NonCriticalErrors: make([]Issue, 0),
		Warnings:          make([]Issue, 0),
		BuildWarnings:     make([]string, 0),
		Dependencies:      make([]string, 0),
		LastAssessment:    time.Now(),
	}

	// An absent directory short-circuits everything else: nothing below can
	// be probed and the module cannot function at all.
	if !a.ws.ModuleDirExists(moduleID) {
		state.CriticalErrors = append(state.CriticalErrors, Issue{
			ErrorID: IssueModuleDirectoryMissing,
			Message: fmt.Sprintf("module directory %s does not exist", a.ws.ModuleDir(moduleID)),
			Impact:  ImpactBlocksFunctionality,
		})
		state.HealthScore = 0
		state.Status = StatusFailed
		state.DependencyHealth = DependenciesMissing
		state.Recovery = RecoveryState{
			RecoveryNeeded:   true,
			RecoveryPriority: 1,
			RecoveryStrategy: StrategyReset,
		}
		return state, nil
	}

	empty, err := a.ws.ModuleDirEmpty(moduleID)
	if err != nil {
		state.CriticalErrors = append(state.CriticalErrors, Issue{
			ErrorID: IssueModuleDirectoryUnreadable,
			Message: fmt.Sprintf("module directory is not readable: %v", err),
			Impact:  ImpactBlocksFunctionality,
		})
	} else if empty {
		state.CriticalErrors = append(state.CriticalErrors, Issue{
			ErrorID: IssueModuleDirectoryEmpty,
			Message: "module directory exists but contains no files",
			Impact:  ImpactBlocksFunctionality,
		})
	}

	a.checkManifest(moduleID, state)
	a.checkTypeConfig(moduleID, state)
	a.checkBuildConfig(moduleID, state)
	a.checkDependencies(moduleID, state)
	a.checkSourceLayout(moduleID, state)

	state.HealthScore = scoreFromIssues(state)
	state.Status = statusForScore(state)
	state.Recovery = recoveryStateFor(state)

	a.log.WithFields(logrus.Fields{
		"module": moduleID,
		"score":  state.HealthScore,
		"status": state.Status,
	}).Debug("module assessed")

	return state, nil
}

// checkManifest validates package manifest presence and required fields.
func (a *Assessor) checkManifest(moduleID string, state *ModuleState) {
	manifest, err := a.ws.ReadManifest(moduleID)
	if err != nil {
		// Distinguish absent from malformed: both invalidate the manifest
		// but a malformed file is repairable in place.
		id := IssueManifestMissing
		msg := "package.json is missing"
		impact := ImpactBlocksFunctionality
		if manifestFilePresent(err) {
			id = IssueManifestInvalid
			msg = fmt.Sprintf("package.json is not valid JSON: %v", err)
		}
		state.CriticalErrors = append(state.CriticalErrors, Issue{
			ErrorID: id,
			Message: msg,
			Impact:  impact,
		})
		return
	}

	state.PackageJSONValid = true
	if !manifest.HasRequiredFields() {
		state.PackageJSONValid = false
		state.NonCriticalErrors = append(state.NonCriticalErrors, Issue{
			ErrorID: IssueManifestMissingFields,
			Message: "package.json is missing required fields (name, version)",
			Impact:  ImpactDegradesFunctionality,
		})
	}

	for dep := range manifest.Dependencies {
		state.Dependencies = append(state.Dependencies, dep)
	}
	sort.Strings(state.Dependencies)
}

// checkTypeConfig validates type configuration presence and shape.
func (a *Assessor) checkTypeConfig(moduleID string, state *ModuleState) {
	tc, err := a.ws.ReadTypeConfig(moduleID)
	if err != nil {
		id := IssueTypeConfigMissing
		msg := "tsconfig.json is missing"
		if manifestFilePresent(err) {
			id = IssueTypeConfigInvalid
			msg = fmt.Sprintf("tsconfig.json is not valid JSON: %v", err)
		}
		state.NonCriticalErrors = append(state.NonCriticalErrors, Issue{
			ErrorID: id,
			Message: msg,
			Impact:  ImpactDegradesFunctionality,
		})
		return
	}

	state.TSConfigValid = true
	if len(tc.CompilerOptions) == 0 && tc.Extends == "" {
		state.TSConfigValid = false
		state.NonCriticalErrors = append(state.NonCriticalErrors, Issue{
			ErrorID: IssueTypeConfigInvalid,
			Message: "tsconfig.json declares neither compilerOptions nor extends",
			Impact:  ImpactDegradesFunctionality,
		})
	}
}

// checkBuildConfig looks for any recognized build configuration file.
func (a *Assessor) checkBuildConfig(moduleID string, state *ModuleState) {
	if _, ok := a.ws.BuildConfigFile(moduleID); ok {
		state.BuildConfigValid = true
		return
	}
	state.Warnings = append(state.Warnings, Issue{
		ErrorID: IssueBuildConfigMissing,
		Message: "no recognized build configuration file found",
		Impact:  ImpactCosmetic,
	})
}

// checkDependencies probes the installed-dependency marker and looks for
// declarations that conflict between dependency sections.
func (a *Assessor) checkDependencies(moduleID string, state *ModuleState) {
	manifest, err := a.ws.ReadManifest(moduleID)
	if err != nil {
		manifest = &workspace.Manifest{}
	}

	if !a.ws.HasInstalledDependencies(moduleID) {
		state.DependencyHealth = DependenciesMissing
		state.NonCriticalErrors = append(state.NonCriticalErrors, Issue{
			ErrorID: IssueDependenciesNotInstalled,
			Message: "no installed-dependency marker (node_modules) found",
			Impact:  ImpactDegradesFunctionality,
		})
		return
	}

	var conflicts []string
	for dep := range manifest.Dependencies {
		if _, dup := manifest.DevDependencies[dep]; dup {
			conflicts = append(conflicts, dep)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		state.DependencyHealth = DependenciesConflicted
		state.NonCriticalErrors = append(state.NonCriticalErrors, Issue{
			ErrorID: IssueDependencyConflict,
			Message: fmt.Sprintf("dependencies declared in both sections: %v", conflicts),
			Impact:  ImpactDegradesFunctionality,
		})
		return
	}

	state.DependencyHealth = DependenciesResolved
}

// checkSourceLayout verifies the source root and index entry conventions.
func (a *Assessor) checkSourceLayout(moduleID string, state *ModuleState) {
	if !a.ws.HasSourceRoot(moduleID) {
		state.CriticalErrors = append(state.CriticalErrors, Issue{
			ErrorID: IssueSourceRootMissing,
			Message: "module has no src/ directory",
			Impact:  ImpactBlocksFunctionality,
		})
		return
	}
	if _, ok := a.ws.IndexEntryFile(moduleID); !ok {
		state.NonCriticalErrors = append(state.NonCriticalErrors, Issue{
			ErrorID: IssueIndexEntryMissing,
			Message: "src/ has no recognized index entry point",
			Impact:  ImpactDegradesFunctionality,
		})
	}
}

// scoreFromIssues applies the fixed per-category penalties and clamps the
// result to [0, MaxHealthScore].
func scoreFromIssues(state *ModuleState) int {
	score := MaxHealthScore
	score -= penaltyCriticalError * len(state.CriticalErrors)
	score -= penaltyNonCriticalError * len(state.NonCriticalErrors)
	score -= penaltyWarning * len(state.Warnings)

	if score < 0 {
		return 0
	}
	if score > MaxHealthScore {
		return MaxHealthScore
	}
	return score
}

// statusForScore bands the score: score zero with a blocking error is a
// failed module, not merely a critical one.
func statusForScore(state *ModuleState) Status {
	switch {
	case state.HealthScore == 0 && state.HasBlockingError():
		return StatusFailed
	case state.HealthScore >= HealthyThreshold:
		return StatusHealthy
	case state.HealthScore >= DegradedThreshold:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// recoveryStateFor selects the recovery strategy and priority for a snapshot.
func recoveryStateFor(state *ModuleState) RecoveryState {
	rs := RecoveryState{
		RecoveryNeeded: state.HealthScore < HealthyThreshold,
	}

	switch {
	case state.HasStructuralError():
		rs.RecoveryStrategy = StrategyReset
	case state.HealthScore >= RepairScoreFloor:
		rs.RecoveryStrategy = StrategyRepair
	case state.HealthScore < ResetScoreCeiling:
		rs.RecoveryStrategy = StrategyReset
	case state.DependencyHealth == DependenciesConflicted:
		rs.RecoveryStrategy = StrategyRebuild
	default:
		rs.RecoveryStrategy = StrategyRebuild
	}

	switch state.Status {
	case StatusFailed, StatusCritical:
		rs.RecoveryPriority = 1
	case StatusDegraded:
		rs.RecoveryPriority = 2
	default:
		rs.RecoveryPriority = 3
	}

	return rs
}

// manifestFilePresent distinguishes "file exists but is malformed" from
// "file is absent" based on the probe error.
func manifestFilePresent(err error) bool {
	return err != nil && !errors.Is(err, fs.ErrNotExist)
}
