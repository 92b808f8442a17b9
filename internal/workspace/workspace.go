// Package workspace provides the engine's view of a multi-package workspace
// on the local filesystem: the known module set, structural probing helpers,
// a TTL cache for analysis snapshots, and a change watcher.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Module categories group workspace modules by architectural role.
type Category string

const (
	CategoryCore       Category = "core"
	CategoryFoundation Category = "foundation"
	CategoryBusiness   Category = "business"
)

// knownModules is the fixed workspace module enumeration. Order matters for
// aggregate displays and must not change between releases.
var knownModules = []string{
	"auth",
	"i18n",
	"cv-processing",
	"multimedia",
	"analytics",
	"premium",
	"public-profiles",
	"recommendations",
	"admin",
	"workflow",
	"payments",
}

var moduleCategories = map[string]Category{
	"auth":            CategoryCore,
	"workflow":        CategoryCore,
	"i18n":            CategoryFoundation,
	"analytics":       CategoryFoundation,
	"multimedia":      CategoryFoundation,
	"cv-processing":   CategoryBusiness,
	"premium":         CategoryBusiness,
	"public-profiles": CategoryBusiness,
	"recommendations": CategoryBusiness,
	"admin":           CategoryBusiness,
	"payments":        CategoryBusiness,
}

// KnownModules returns the fixed module identifier set in enumeration order.
// Callers must not mutate the returned slice.
func KnownModules() []string {
	out := make([]string, len(knownModules))
	copy(out, knownModules)
	return out
}

// IsKnownModule reports whether id belongs to the workspace module set.
func IsKnownModule(id string) bool {
	_, ok := moduleCategories[id]
	return ok
}

// ModuleCategory returns the architectural category for a known module.
// Unknown ids map to CategoryBusiness.
func ModuleCategory(id string) Category {
	if c, ok := moduleCategories[id]; ok {
		return c
	}
	return CategoryBusiness
}

// InvalidModuleError indicates a module id outside the known workspace set.
type InvalidModuleError struct {
	ModuleID string
}

func (e *InvalidModuleError) Error() string {
	return fmt.Sprintf("invalid module: %q is not part of the workspace", e.ModuleID)
}

// Manifest is the parsed package manifest (package.json) of a module or of
// the workspace root.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Workspaces      []string          `json:"workspaces"`
}

// HasRequiredFields reports whether the manifest carries the fields every
// module manifest must declare.
func (m *Manifest) HasRequiredFields() bool {
	return m.Name != "" && m.Version != ""
}

// buildConfigFiles lists the build configuration files recognized inside a
// module directory, in probe order.
var buildConfigFiles = []string{
	"webpack.config.js",
	"vite.config.ts",
	"vite.config.js",
	"rollup.config.js",
	"tsup.config.ts",
}

// indexEntryFiles lists the recognized source entry points under src/.
var indexEntryFiles = []string{
	"index.ts",
	"index.tsx",
	"index.js",
}

// Workspace is a rooted filesystem client over a multi-package workspace.
// All probing helpers are read-only; mutation happens only through the
// recovery collaborators.
type Workspace struct {
	root        string
	packagesDir string
}

// Open validates the workspace root and returns a client. The packages
// directory does not have to exist yet; individual module probes report
// absence per module.
func Open(root string) (*Workspace, error) {
	return OpenDir(root, "packages")
}

// OpenDir opens a workspace whose packages live under a non-default
// directory relative to the root.
func OpenDir(root, packagesDir string) (*Workspace, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}
	if packagesDir == "" {
		packagesDir = "packages"
	}
	return &Workspace{
		root:        root,
		packagesDir: filepath.Join(root, packagesDir),
	}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// PackagesDir returns the directory holding module packages.
func (w *Workspace) PackagesDir() string { return w.packagesDir }

// ModuleDir returns the directory of a module. It does not check existence.
func (w *Workspace) ModuleDir(id string) string {
	return filepath.Join(w.packagesDir, id)
}

// ModuleDirExists reports whether the module directory is present.
func (w *Workspace) ModuleDirExists(id string) bool {
	info, err := os.Stat(w.ModuleDir(id))
	return err == nil && info.IsDir()
}

// ModuleDirEmpty reports whether the module directory contains no entries.
// An unreadable directory is reported through err.
func (w *Workspace) ModuleDirEmpty(id string) (bool, error) {
	entries, err := os.ReadDir(w.ModuleDir(id))
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// ReadManifest parses the module's package manifest.
func (w *Workspace) ReadManifest(id string) (*Manifest, error) {
	return readManifestFile(filepath.Join(w.ModuleDir(id), "package.json"))
}

// ReadWorkspaceManifest parses the workspace root manifest.
func (w *Workspace) ReadWorkspaceManifest() (*Manifest, error) {
	return readManifestFile(filepath.Join(w.root, "package.json"))
}

func readManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed manifest %s: %w", path, err)
	}
	return &m, nil
}

// TypeConfig is the parsed TypeScript configuration of a module.
type TypeConfig struct {
	Extends         string                 `json:"extends"`
	CompilerOptions map[string]interface{} `json:"compilerOptions"`
	References      []struct {
		Path string `json:"path"`
	} `json:"references"`
}

// ReadTypeConfig parses the module's tsconfig.json.
func (w *Workspace) ReadTypeConfig(id string) (*TypeConfig, error) {
	path := filepath.Join(w.ModuleDir(id), "tsconfig.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tc TypeConfig
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("malformed type config %s: %w", path, err)
	}
	return &tc, nil
}

// BuildConfigFile returns the first recognized build configuration file
// present in the module directory.
func (w *Workspace) BuildConfigFile(id string) (string, bool) {
	dir := w.ModuleDir(id)
	for _, name := range buildConfigFiles {
		if fileExists(filepath.Join(dir, name)) {
			return name, true
		}
	}
	return "", false
}

// HasInstalledDependencies reports whether an installed-dependency marker is
// present, either module-local or hoisted to the workspace root.
func (w *Workspace) HasInstalledDependencies(id string) bool {
	if dirExists(filepath.Join(w.ModuleDir(id), "node_modules")) {
		return true
	}
	return dirExists(filepath.Join(w.root, "node_modules"))
}

// HasSourceRoot reports whether the module has a src/ directory.
func (w *Workspace) HasSourceRoot(id string) bool {
	return dirExists(filepath.Join(w.ModuleDir(id), "src"))
}

// IndexEntryFile returns the module's recognized source entry point, if any.
func (w *Workspace) IndexEntryFile(id string) (string, bool) {
	src := filepath.Join(w.ModuleDir(id), "src")
	for _, name := range indexEntryFiles {
		if fileExists(filepath.Join(src, name)) {
			return filepath.Join("src", name), true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
