package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stagehand/internal/model"
)

// projectRoot returns the absolute path to the project root directory.
// It uses runtime.Caller to locate this source file, then navigates up
// from internal/manifest/. This is more robust than os.Getwd() because
// it doesn't depend on where the test runner was invoked from.
func projectRoot(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed to return file info")

	return filepath.Join(filepath.Dir(filename), "..", "..")
}

// testdataPath returns the absolute path to a testdata fixture directory.
func testdataPath(t *testing.T, fixture string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "tests", "testdata", fixture)
}

// TestLoad_TravisYAML parses the full neuroscience-package manifest
// fixture and checks every section stagehand acts on.
func TestLoad_TravisYAML(t *testing.T) {
	path := filepath.Join(testdataPath(t, "neuro-sim"), ".travis.yml")

	m, err := Load(path)
	require.NoError(t, err, "Load should succeed for a valid YAML manifest")

	assert.Equal(t, "python", m.Language)
	assert.Equal(t, "xenial", m.Dist)

	// Addons.
	require.NotNil(t, m.Addons)
	require.NotNil(t, m.Addons.Apt)
	assert.Equal(t, []string{"libopenmpi-dev", "openmpi-bin"}, []string(m.Addons.Apt.Packages))
	assert.Equal(t, []string{"libopenmpi-dev", "openmpi-bin"}, m.AptPackages())

	// Env: global + matrix mapping form.
	assert.Equal(t, []string{"OMP_NUM_THREADS=1"}, m.Env.Global)
	assert.Equal(t, []string{"PYTHON_VERSION=3.6", "PYTHON_VERSION=3.7"}, m.Env.Matrix)

	// Phase command lists.
	assert.Len(t, m.BeforeInstall, 7)
	assert.Equal(t, []string{
		"pip install flake8 pytest pytest-cov codecov",
		"pip install -e .",
	}, []string(m.Install))
	require.Len(t, m.Script, 2)
	assert.Equal(t, "flake8 --count hnn_core", m.Script[0])
	assert.Equal(t, []string{"codecov"}, []string(m.AfterSuccess))

	// Branch rules.
	require.NotNil(t, m.Branches)
	assert.Equal(t, []string{"master"}, []string(m.Branches.Only))

	assert.Empty(t, m.UnknownKeys)
	assert.True(t, filepath.IsAbs(m.Path))
}

// TestLoad_JSONC verifies JSONC manifests parse after comment and
// trailing-comma stripping.
func TestLoad_JSONC(t *testing.T) {
	path := filepath.Join(testdataPath(t, "jsonc"), ".stagehand.jsonc")

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "python", m.Language)
	assert.Equal(t, []string{"COVERAGE=1"}, m.Env.Global)
	assert.Equal(t, []string{"PYTHON_VERSION=3.8", "PYTHON_VERSION=3.9"}, m.Env.Matrix)

	// A scalar phase value normalizes to a one-element list.
	assert.Equal(t, []string{"pip install -e ."}, []string(m.Install))
	assert.Len(t, m.Script, 2)
}

// TestLoad_StringOrListNormalization covers the scalar form of phase
// fields and the plain-list form of env.
func TestLoad_StringOrListNormalization(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".stagehand.yml")
	content := `
language: python
env:
  - PYTHON_VERSION=3.6
  - PYTHON_VERSION=3.7
script: py.test
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"py.test"}, []string(m.Script))
	assert.Empty(t, m.Env.Global)
	assert.Equal(t, []string{"PYTHON_VERSION=3.6", "PYTHON_VERSION=3.7"}, m.Env.Matrix)
}

// TestLoad_UnknownKeys verifies unknown top-level keys are collected for
// lint instead of rejected.
func TestLoad_UnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".stagehand.yml")
	content := `
language: python
script: [make test]
matrix_includes: []
virtualenv: {system_site_packages: true}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"matrix_includes", "virtualenv"}, m.UnknownKeys)
}

// TestLoad_NullSections covers keys left without a value ("script:" on
// its own line), which must read as absent, not as one blank command.
func TestLoad_NullSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".stagehand.yml")
	content := `
language: python
before_install:
script:
env:
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, m.BeforeInstall)
	assert.Empty(t, m.Script)
	assert.True(t, m.Env.IsZero())
	assert.True(t, HasErrors(Lint(m)), "an empty script section lints as missing")

	// Same for JSON nulls in a JSONC manifest.
	jsonPath := filepath.Join(dir, ".stagehand.jsonc")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`{"language": "python", "script": null}`), 0o644))

	m, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Empty(t, m.Script)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), ".stagehand.yml"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitManifestNotFound, cliErr.Code)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".stagehand.yml")
	require.NoError(t, os.WriteFile(path, []byte("script: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitManifestInvalid, cliErr.Code)
}

// TestFind walks the candidate priority order.
func TestFind(t *testing.T) {
	dir := t.TempDir()

	_, err := Find(dir)
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitManifestNotFound, cliErr.Code)

	// A .travis.yml alone is found...
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".travis.yml"), []byte("script: make"), 0o644))
	path, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, ".travis.yml", filepath.Base(path))

	// ...but a .stagehand.yml takes precedence over it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stagehand.yml"), []byte("script: make"), 0o644))
	path, err = Find(dir)
	require.NoError(t, err)
	assert.Equal(t, ".stagehand.yml", filepath.Base(path))
}

// TestManifest_Steps checks the phase-to-field mapping, including the
// synthesized apt-addons phase which has no manifest command list.
func TestManifest_Steps(t *testing.T) {
	m := &Manifest{
		Install: StringList{"pip install -e ."},
		Script:  StringList{"py.test"},
	}

	assert.Equal(t, []string{"pip install -e ."}, m.Steps(model.PhaseInstall))
	assert.Equal(t, []string{"py.test"}, m.Steps(model.PhaseScript))
	assert.Nil(t, m.Steps(model.PhaseAptAddons))
	assert.Nil(t, m.Steps(model.PhaseAfterFailure))
}

// TestBranchRules_Allows covers only/except precedence and the detached
// HEAD escape hatch.
func TestBranchRules_Allows(t *testing.T) {
	var nilRules *BranchRules
	assert.True(t, nilRules.Allows("anything"))

	only := &BranchRules{Only: StringList{"master", "maint"}}
	assert.True(t, only.Allows("master"))
	assert.False(t, only.Allows("feature-x"))

	except := &BranchRules{Except: StringList{"wip"}}
	assert.False(t, except.Allows("wip"))
	assert.True(t, except.Allows("master"))

	// Except wins when both match.
	both := &BranchRules{Only: StringList{"master"}, Except: StringList{"master"}}
	assert.False(t, both.Allows("master"))

	// Detached HEAD bypasses the rules entirely.
	assert.True(t, only.Allows("HEAD"))
}
