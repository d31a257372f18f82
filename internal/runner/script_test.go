package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
)

func TestCompileScript_Layout(t *testing.T) {
	m := &manifest.Manifest{
		Install: manifest.StringList{"pip install ."},
		Script:  manifest.StringList{"py.test tests/", "flake8 ."},
	}
	job := manifest.Job{
		Number:      2,
		Env:         []manifest.EnvVar{{Name: "PYTHON_VERSION", Value: "3.7"}},
		MatrixEntry: "PYTHON_VERSION=3.7",
	}

	script := CompileScript(m, job, ScriptOptions{Git: GitInfo{Branch: "master", Commit: "abc123"}})

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, "# job 2: PYTHON_VERSION=3.7")
	assert.Contains(t, script, "STAGEHAND_RESULT=passed")

	// Exported built-ins and matrix variables.
	assert.Contains(t, script, "CI='true'\nexport CI\n")
	assert.Contains(t, script, "STAGEHAND_BRANCH='master'")
	assert.Contains(t, script, "STAGEHAND_COMMIT='abc123'")
	assert.Contains(t, script, "STAGEHAND_JOB_NUMBER='2'")
	assert.Contains(t, script, "PYTHON_VERSION='3.7'\nexport PYTHON_VERSION\n")

	// Guarded phase steps with outcome classes.
	assert.Contains(t, script, "STAGEHAND_CLASS=errored\n")
	assert.Contains(t, script,
		`if [ "$STAGEHAND_RESULT" = passed ]; then { pip install . ; } || STAGEHAND_RESULT=errored; fi`)
	assert.Contains(t, script, "STAGEHAND_CLASS=failed\n")
	assert.Contains(t, script,
		`if [ "$STAGEHAND_RESULT" = passed ]; then { py.test tests/ ; } || STAGEHAND_RESULT=failed; fi`)

	// Exit-code mapping lives in an EXIT trap so steps that exit the
	// shell directly still classify.
	assert.Contains(t, script, "trap stagehand_finish EXIT")
	assert.Contains(t, script, "passed) exit 0 ;;\n")
	assert.Contains(t, script, "failed) exit 20 ;;\n")
	assert.Contains(t, script, "*) exit 30 ;;\n")
}

func TestCompileScript_AfterPhases(t *testing.T) {
	m := &manifest.Manifest{
		Script:       manifest.StringList{"true"},
		AfterSuccess: manifest.StringList{"codecov", "echo done"},
		AfterFailure: manifest.StringList{"cat build.log"},
		AfterScript:  manifest.StringList{"rm -rf tmp"},
	}

	script := CompileScript(m, manifest.Job{Number: 1}, ScriptOptions{})

	assert.Contains(t, script, `if [ "$STAGEHAND_RESULT" = passed ]; then`)
	assert.Contains(t, script, `if [ "$STAGEHAND_RESULT" = failed ]; then`)
	assert.Contains(t, script, `if [ "$STAGEHAND_RESULT" != errored ]; then`)

	// after_* steps chain with && and discard their outcome.
	assert.Contains(t, script, "{ codecov ; } &&\n{ echo done ; } || :")
	assert.Contains(t, script, "{ cat build.log ; } || :")
}

func TestCompileScript_Addons(t *testing.T) {
	m := &manifest.Manifest{
		Script: manifest.StringList{"true"},
		Addons: &manifest.Addons{Apt: &manifest.AptAddon{
			Packages: []string{"libopenmpi-dev", "openmpi-bin"},
			Update:   true,
		}},
	}

	with := CompileScript(m, manifest.Job{Number: 1}, ScriptOptions{IncludeAddons: true})
	assert.Contains(t, with, "apt-get update -qq")
	assert.Contains(t, with, "apt-get install -y --no-install-recommends libopenmpi-dev openmpi-bin")
	// Containers run as root, so no sudo prefix is compiled in.
	assert.NotContains(t, with, "sudo")

	without := CompileScript(m, manifest.Job{Number: 1}, ScriptOptions{IncludeAddons: false})
	assert.NotContains(t, without, "apt-get")
}

// TestCompileScript_OnlyFilter verifies the phase filter applies to
// compiled scripts the same way it applies to local runs.
func TestCompileScript_OnlyFilter(t *testing.T) {
	m := &manifest.Manifest{
		Install:     manifest.StringList{"pip install ."},
		Script:      manifest.StringList{"py.test tests/"},
		AfterScript: manifest.StringList{"rm -rf tmp"},
		Addons:      &manifest.Addons{Apt: &manifest.AptAddon{Packages: []string{"libhdf5-dev"}}},
	}

	script := CompileScript(m, manifest.Job{Number: 1}, ScriptOptions{
		IncludeAddons: true,
		Only:          []model.Phase{model.PhaseScript},
	})

	assert.Contains(t, script, "py.test tests/")
	assert.NotContains(t, script, "pip install .")
	assert.NotContains(t, script, "rm -rf tmp")
	assert.NotContains(t, script, "apt-get")
}

// TestCompileScript_Quoting covers values with spaces and single quotes,
// which must round-trip through the sh single-quote idiom.
func TestCompileScript_Quoting(t *testing.T) {
	m := &manifest.Manifest{Script: manifest.StringList{"true"}}
	job := manifest.Job{
		Number: 1,
		Env:    []manifest.EnvVar{{Name: "MSG", Value: "it's a test"}},
	}

	script := CompileScript(m, job, ScriptOptions{})
	assert.Contains(t, script, `MSG='it'\''s a test'`)
}

// TestCompileScript_Executes runs a compiled script through the shell
// interpreter end to end and checks the exit-code classification.
func TestCompileScript_Executes(t *testing.T) {
	cases := []struct {
		name     string
		manifest *manifest.Manifest
		wantCode int
		want     model.BuildStatus
	}{
		{
			name:     "passed",
			manifest: &manifest.Manifest{Script: manifest.StringList{"true"}},
			wantCode: 0,
			want:     model.StatusPassed,
		},
		{
			name:     "failed",
			manifest: &manifest.Manifest{Script: manifest.StringList{"exit 5"}},
			wantCode: ScriptExitFailed,
			want:     model.StatusFailed,
		},
		{
			name: "errored",
			manifest: &manifest.Manifest{
				Install: manifest.StringList{"exit 1"},
				Script:  manifest.StringList{"true"},
			},
			wantCode: ScriptExitErrored,
			want:     model.StatusErrored,
		},
		{
			// A setup step exiting with the failed code itself must not
			// masquerade as a script failure.
			name: "setup exit with failed code",
			manifest: &manifest.Manifest{
				Install: manifest.StringList{"exit 20"},
				Script:  manifest.StringList{"true"},
			},
			wantCode: ScriptExitErrored,
			want:     model.StatusErrored,
		},
		{
			name: "after_success exit keeps the result",
			manifest: &manifest.Manifest{
				Script:       manifest.StringList{"true"},
				AfterSuccess: manifest.StringList{"exit 3"},
			},
			wantCode: 0,
			want:     model.StatusPassed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			script := CompileScript(tc.manifest, manifest.Job{Number: 1}, ScriptOptions{})

			var out strings.Builder
			s, err := NewSession(t.TempDir(), []string{"PATH=/usr/bin"}, &out, &out)
			require.NoError(t, err)

			code, err := s.Run(t.Context(), script)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.want, StatusFromScriptExit(code))
		})
	}
}

// TestCompileScript_GatingInShell verifies the compiled gating matches
// the local runner: a script failure still runs after_failure and
// after_script but not after_success.
func TestCompileScript_GatingInShell(t *testing.T) {
	m := &manifest.Manifest{
		Script:       manifest.StringList{"echo running", "false", "echo never"},
		AfterSuccess: manifest.StringList{"echo on-success"},
		AfterFailure: manifest.StringList{"echo on-failure"},
		AfterScript:  manifest.StringList{"echo on-always"},
	}
	script := CompileScript(m, manifest.Job{Number: 1}, ScriptOptions{})

	var out strings.Builder
	s, err := NewSession(t.TempDir(), []string{"PATH=/usr/bin"}, &out, &out)
	require.NoError(t, err)

	code, err := s.Run(t.Context(), script)
	require.NoError(t, err)
	assert.Equal(t, ScriptExitFailed, code)

	output := out.String()
	assert.Contains(t, output, "running")
	assert.NotContains(t, output, "never")
	assert.NotContains(t, output, "on-success")
	assert.Contains(t, output, "on-failure")
	assert.Contains(t, output, "on-always")
}
