package health

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workspacedoctor/workspace-doctor/internal/workspace"
)

// newTestWorkspace opens a workspace over a fresh temp root.
func newTestWorkspace(t *testing.T) (*workspace.Workspace, string) {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.Open(root)
	require.NoError(t, err)
	return ws, root
}

// writeHealthyModule lays down a structurally complete module: valid
// manifest, tsconfig, build config, installed dependencies, and source root.
func writeHealthyModule(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, "packages", id)
	files := map[string]string{
		"package.json":   `{"name":"@acme/` + id + `","version":"1.0.0"}`,
		"tsconfig.json":  `{"compilerOptions":{"strict":true}}`,
		"vite.config.ts": "export default {}",
		"src/index.ts":   "export {}",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
}

func TestAnalyzeModuleUnknownID(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	assessor := NewAssessor(ws, nil)

	_, err := assessor.AnalyzeModule("not-a-module")
	require.Error(t, err)

	var invalid *workspace.InvalidModuleError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "not-a-module", invalid.ModuleID)
}

func TestAnalyzeModuleAbsentDirectory(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	assessor := NewAssessor(ws, nil)

	state, err := assessor.AnalyzeModule("auth")
	require.NoError(t, err)

	assert.Equal(t, 0, state.HealthScore)
	assert.Equal(t, StatusFailed, state.Status)
	require.Len(t, state.CriticalErrors, 1)
	assert.Equal(t, IssueModuleDirectoryMissing, state.CriticalErrors[0].ErrorID)
	assert.Equal(t, ImpactBlocksFunctionality, state.CriticalErrors[0].Impact)
	assert.True(t, state.Recovery.RecoveryNeeded)
	assert.Equal(t, StrategyReset, state.Recovery.RecoveryStrategy)
	assert.Equal(t, 1, state.Recovery.RecoveryPriority)
}

func TestAnalyzeModuleHealthy(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeHealthyModule(t, root, "auth")
	assessor := NewAssessor(ws, nil)

	state, err := assessor.AnalyzeModule("auth")
	require.NoError(t, err)

	assert.Equal(t, MaxHealthScore, state.HealthScore)
	assert.Equal(t, StatusHealthy, state.Status)
	assert.True(t, state.PackageJSONValid)
	assert.True(t, state.TSConfigValid)
	assert.True(t, state.BuildConfigValid)
	assert.Equal(t, DependenciesResolved, state.DependencyHealth)
	assert.Empty(t, state.CriticalErrors)
	assert.False(t, state.Recovery.RecoveryNeeded)
}

func TestAnalyzeModuleDegraded(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeHealthyModule(t, root, "auth")
	// Remove the type config and installed dependencies: two non-critical
	// errors drop the score by 20 into the degraded band.
	dir := filepath.Join(root, "packages", "auth")
	require.NoError(t, os.Remove(filepath.Join(dir, "tsconfig.json")))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "node_modules")))

	assessor := NewAssessor(ws, nil)
	state, err := assessor.AnalyzeModule("auth")
	require.NoError(t, err)

	assert.Equal(t, 80, state.HealthScore)
	assert.Equal(t, StatusDegraded, state.Status)
	assert.Equal(t, DependenciesMissing, state.DependencyHealth)
	assert.True(t, state.Recovery.RecoveryNeeded)
	assert.Equal(t, StrategyRepair, state.Recovery.RecoveryStrategy)
}

func TestAnalyzeModuleMissingSourceRoot(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeHealthyModule(t, root, "auth")
	require.NoError(t, os.RemoveAll(filepath.Join(root, "packages", "auth", "src")))

	assessor := NewAssessor(ws, nil)
	state, err := assessor.AnalyzeModule("auth")
	require.NoError(t, err)

	assert.Equal(t, 75, state.HealthScore)
	require.Len(t, state.CriticalErrors, 1)
	assert.Equal(t, IssueSourceRootMissing, state.CriticalErrors[0].ErrorID)
}

func TestAnalyzeModuleMalformedManifest(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeHealthyModule(t, root, "auth")
	manifest := filepath.Join(root, "packages", "auth", "package.json")
	require.NoError(t, os.WriteFile(manifest, []byte("{broken"), 0o644))

	assessor := NewAssessor(ws, nil)
	state, err := assessor.AnalyzeModule("auth")
	require.NoError(t, err)

	assert.False(t, state.PackageJSONValid)
	found := false
	for _, issue := range state.CriticalErrors {
		if issue.ErrorID == IssueManifestInvalid {
			found = true
		}
	}
	assert.True(t, found, "malformed manifest must report manifest_invalid, not manifest_missing")
}

func TestAnalyzeModuleDependencyConflict(t *testing.T) {
	ws, root := newTestWorkspace(t)
	writeHealthyModule(t, root, "auth")
	manifest := filepath.Join(root, "packages", "auth", "package.json")
	content := `{"name":"@acme/auth","version":"1.0.0",` +
		`"dependencies":{"react":"^18.0.0"},"devDependencies":{"react":"^17.0.0"}}`
	require.NoError(t, os.WriteFile(manifest, []byte(content), 0o644))

	assessor := NewAssessor(ws, nil)
	state, err := assessor.AnalyzeModule("auth")
	require.NoError(t, err)

	assert.Equal(t, DependenciesConflicted, state.DependencyHealth)
}

func TestScoreFromIssuesClamping(t *testing.T) {
	state := &ModuleState{
		CriticalErrors: make([]Issue, 5),
	}
	assert.Equal(t, 0, scoreFromIssues(state), "score never drops below zero")

	assert.Equal(t, MaxHealthScore, scoreFromIssues(&ModuleState{}))
}

func TestScoreFromIssuesPenalties(t *testing.T) {
	tests := []struct {
		name                            string
		critical, nonCritical, warnings int
		want                            int
	}{
		{"pristine", 0, 0, 0, 100},
		{"one critical", 1, 0, 0, 75},
		{"one non-critical", 0, 1, 0, 90},
		{"one warning", 0, 0, 1, 95},
		{"mixed", 1, 2, 1, 50},
		{"overload clamps", 4, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ModuleState{
				CriticalErrors:    make([]Issue, tt.critical),
				NonCriticalErrors: make([]Issue, tt.nonCritical),
				Warnings:          make([]Issue, tt.warnings),
			}
			assert.Equal(t, tt.want, scoreFromIssues(state))
		})
	}
}

func TestRecoveryStrategySelection(t *testing.T) {
	structural := []Issue{{ErrorID: IssueModuleDirectoryEmpty, Impact: ImpactBlocksFunctionality}}

	tests := []struct {
		name  string
		state ModuleState
		want  Strategy
	}{
		{
			name:  "structural error forces reset regardless of score",
			state: ModuleState{HealthScore: 75, CriticalErrors: structural},
			want:  StrategyReset,
		},
		{
			name:  "high score repairs in place",
			state: ModuleState{HealthScore: 60},
			want:  StrategyRepair,
		},
		{
			name:  "floor score repairs in place",
			state: ModuleState{HealthScore: 50},
			want:  StrategyRepair,
		},
		{
			name:  "very low score resets",
			state: ModuleState{HealthScore: 10},
			want:  StrategyReset,
		},
		{
			name:  "mid score with conflicted deps rebuilds",
			state: ModuleState{HealthScore: 40, DependencyHealth: DependenciesConflicted},
			want:  StrategyRebuild,
		},
		{
			name:  "mid score default rebuilds",
			state: ModuleState{HealthScore: 40},
			want:  StrategyRebuild,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := recoveryStateFor(&tt.state)
			assert.Equal(t, tt.want, rs.RecoveryStrategy)
		})
	}
}

func TestStatusForScore(t *testing.T) {
	blocking := []Issue{{ErrorID: IssueModuleDirectoryMissing, Impact: ImpactBlocksFunctionality}}

	tests := []struct {
		name   string
		score  int
		issues []Issue
		want   Status
	}{
		{"healthy at threshold", 85, nil, StatusHealthy},
		{"degraded just below", 84, nil, StatusDegraded},
		{"degraded at floor", 60, nil, StatusDegraded},
		{"critical below floor", 59, nil, StatusCritical},
		{"zero without blocking error is critical", 0, nil, StatusCritical},
		{"zero with blocking error is failed", 0, blocking, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ModuleState{HealthScore: tt.score, CriticalErrors: tt.issues}
			assert.Equal(t, tt.want, statusForScore(state))
		})
	}
}

func TestStrategiesOrder(t *testing.T) {
	assert.Equal(t, []Strategy{StrategyRepair, StrategyRebuild, StrategyReset}, Strategies())
}
