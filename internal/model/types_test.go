package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPhaseOrder_CoversAllPhases verifies that PhaseOrder is the single
// source of truth for phase validity.
func TestPhaseOrder_CoversAllPhases(t *testing.T) {
	for _, p := range PhaseOrder {
		assert.True(t, p.IsValid(), "phase %q should be valid", p)
	}
	assert.False(t, Phase("deploy").IsValid())
	assert.False(t, Phase("").IsValid())
}

// TestPhase_Classification checks the setup/script/after split that
// drives build gating.
func TestPhase_Classification(t *testing.T) {
	setup := []Phase{PhaseAptAddons, PhaseBeforeInstall, PhaseInstall, PhaseBeforeScript}
	for _, p := range setup {
		assert.True(t, p.IsSetup(), "%q should be a setup phase", p)
		assert.False(t, p.IsAfter())
	}

	assert.False(t, PhaseScript.IsSetup())
	assert.False(t, PhaseScript.IsAfter())

	after := []Phase{PhaseAfterSuccess, PhaseAfterFailure, PhaseAfterScript}
	for _, p := range after {
		assert.True(t, p.IsAfter(), "%q should be an after phase", p)
		assert.False(t, p.IsSetup())
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("Script")
	require.NoError(t, err)
	assert.Equal(t, PhaseScript, p)

	_, err = ParsePhase("compile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown phase")
}

func TestParseBuildStatus(t *testing.T) {
	s, err := ParseBuildStatus("PASSED")
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, s)

	_, err = ParseBuildStatus("green")
	assert.Error(t, err)
}

// TestBuildResult_FirstFailure verifies that after_* phase failures are
// ignored when locating the decisive step.
func TestBuildResult_FirstFailure(t *testing.T) {
	result := &BuildResult{
		Status: StatusFailed,
		Phases: []PhaseResult{
			{Phase: PhaseInstall, Steps: []StepResult{{Command: "pip install .", ExitCode: 0}}},
			{Phase: PhaseScript, Steps: []StepResult{
				{Command: "flake8 --count pkg", ExitCode: 0},
				{Command: "py.test pkg/tests/", ExitCode: 1},
			}},
			{Phase: PhaseAfterFailure, Steps: []StepResult{{Command: "cat log", ExitCode: 2}}},
		},
	}

	phase, step := result.FirstFailure()
	require.NotNil(t, phase)
	require.NotNil(t, step)
	assert.Equal(t, PhaseScript, phase.Phase)
	assert.Equal(t, "py.test pkg/tests/", step.Command)

	passed := &BuildResult{Status: StatusPassed, Phases: []PhaseResult{
		{Phase: PhaseScript, Steps: []StepResult{{Command: "true", ExitCode: 0}}},
	}}
	phase, step = passed.FirstFailure()
	assert.Nil(t, phase)
	assert.Nil(t, step)
}

func TestBuildResult_Duration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &BuildResult{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.Duration())
}

func TestExitCodeForStatus(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCodeForStatus(StatusPassed))
	assert.Equal(t, ExitSuccess, ExitCodeForStatus(StatusSkipped))
	assert.Equal(t, ExitBuildFailed, ExitCodeForStatus(StatusFailed))
	assert.Equal(t, ExitBuildErrored, ExitCodeForStatus(StatusErrored))
	assert.Equal(t, ExitBuildErrored, ExitCodeForStatus(StatusCanceled))
}

// TestCLIError_Unwrap verifies the error wrapping convention used by the
// CLI exit-code translation.
func TestCLIError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := WrapCLIError(ExitDockerNotRunning, "Docker daemon is not responding", inner)

	assert.Equal(t, ExitDockerNotRunning, err.Code)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, inner))

	bare := NewCLIError(ExitManifestNotFound, "no manifest found")
	assert.Equal(t, "no manifest found", bare.Error())
	assert.Nil(t, bare.Unwrap())
}
