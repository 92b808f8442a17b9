package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestKnownModules(t *testing.T) {
	ids := KnownModules()
	assert.Len(t, ids, 11)
	assert.Equal(t, "auth", ids[0])
	assert.Equal(t, "payments", ids[len(ids)-1])

	// Mutating the returned slice must not leak into the enumeration.
	ids[0] = "mutated"
	assert.Equal(t, "auth", KnownModules()[0])
}

func TestIsKnownModule(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"auth", true},
		{"cv-processing", true},
		{"payments", true},
		{"", false},
		{"unknown", false},
		{"AUTH", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKnownModule(tt.id))
		})
	}
}

func TestModuleCategory(t *testing.T) {
	assert.Equal(t, CategoryCore, ModuleCategory("auth"))
	assert.Equal(t, CategoryCore, ModuleCategory("workflow"))
	assert.Equal(t, CategoryFoundation, ModuleCategory("i18n"))
	assert.Equal(t, CategoryBusiness, ModuleCategory("payments"))
	assert.Equal(t, CategoryBusiness, ModuleCategory("nonexistent"))
}

func TestOpen(t *testing.T) {
	t.Run("valid root", func(t *testing.T) {
		ws, err := Open(t.TempDir())
		require.NoError(t, err)
		assert.NotNil(t, ws)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("root is a file", func(t *testing.T) {
		root := t.TempDir()
		file := filepath.Join(root, "file")
		writeFile(t, file, "x")
		_, err := Open(file)
		assert.Error(t, err)
	})
}

func TestOpenDirCustomPackagesDir(t *testing.T) {
	root := t.TempDir()
	ws, err := OpenDir(root, "modules")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "modules"), ws.PackagesDir())

	writeFile(t, filepath.Join(root, "modules", "auth", "package.json"), `{}`)
	assert.True(t, ws.ModuleDirExists("auth"))
}

func TestModuleDirProbes(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	assert.False(t, ws.ModuleDirExists("auth"))

	require.NoError(t, os.MkdirAll(ws.ModuleDir("auth"), 0o755))
	assert.True(t, ws.ModuleDirExists("auth"))

	empty, err := ws.ModuleDirEmpty("auth")
	require.NoError(t, err)
	assert.True(t, empty)

	writeFile(t, filepath.Join(ws.ModuleDir("auth"), "package.json"), `{}`)
	empty, err = ws.ModuleDirEmpty("auth")
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestReadManifest(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := ws.ReadManifest("auth")
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		writeFile(t, filepath.Join(ws.ModuleDir("auth"), "package.json"), `{not json`)
		_, err := ws.ReadManifest("auth")
		assert.Error(t, err)
	})

	t.Run("valid", func(t *testing.T) {
		writeFile(t, filepath.Join(ws.ModuleDir("auth"), "package.json"),
			`{"name":"@acme/auth","version":"1.2.0","dependencies":{"react":"^18.0.0"}}`)
		m, err := ws.ReadManifest("auth")
		require.NoError(t, err)
		assert.Equal(t, "@acme/auth", m.Name)
		assert.Equal(t, "1.2.0", m.Version)
		assert.True(t, m.HasRequiredFields())
		assert.Contains(t, m.Dependencies, "react")
	})

	t.Run("missing required fields", func(t *testing.T) {
		writeFile(t, filepath.Join(ws.ModuleDir("i18n"), "package.json"), `{"name":"@acme/i18n"}`)
		m, err := ws.ReadManifest("i18n")
		require.NoError(t, err)
		assert.False(t, m.HasRequiredFields())
	})
}

func TestReadWorkspaceManifest(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "package.json"),
		`{"name":"acme-workspace","version":"1.0.0","workspaces":["packages/*"],"scripts":{"build":"turbo build"}}`)

	m, err := ws.ReadWorkspaceManifest()
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/*"}, m.Workspaces)
	assert.Contains(t, m.Scripts, "build")
}

func TestReadTypeConfig(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	writeFile(t, filepath.Join(ws.ModuleDir("auth"), "tsconfig.json"),
		`{"extends":"../../tsconfig.base.json","compilerOptions":{"strict":true},"references":[{"path":"../i18n"}]}`)

	tc, err := ws.ReadTypeConfig("auth")
	require.NoError(t, err)
	assert.Equal(t, "../../tsconfig.base.json", tc.Extends)
	assert.Len(t, tc.References, 1)
	assert.Equal(t, true, tc.CompilerOptions["strict"])
}

func TestBuildConfigFile(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	_, ok := ws.BuildConfigFile("auth")
	assert.False(t, ok)

	writeFile(t, filepath.Join(ws.ModuleDir("auth"), "vite.config.ts"), "export default {}")
	name, ok := ws.BuildConfigFile("auth")
	require.True(t, ok)
	assert.Equal(t, "vite.config.ts", name)

	// Probe order prefers webpack over vite when both are present.
	writeFile(t, filepath.Join(ws.ModuleDir("auth"), "webpack.config.js"), "module.exports = {}")
	name, ok = ws.BuildConfigFile("auth")
	require.True(t, ok)
	assert.Equal(t, "webpack.config.js", name)
}

func TestHasInstalledDependencies(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	assert.False(t, ws.HasInstalledDependencies("auth"))

	// Hoisted root node_modules counts for every module.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	assert.True(t, ws.HasInstalledDependencies("auth"))
	assert.True(t, ws.HasInstalledDependencies("payments"))
}

func TestIndexEntryFile(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	require.NoError(t, err)

	assert.False(t, ws.HasSourceRoot("auth"))
	_, ok := ws.IndexEntryFile("auth")
	assert.False(t, ok)

	writeFile(t, filepath.Join(ws.ModuleDir("auth"), "src", "index.ts"), "export {}")
	assert.True(t, ws.HasSourceRoot("auth"))
	entry, ok := ws.IndexEntryFile("auth")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("src", "index.ts"), entry)
}
