package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
)

func TestFormatJobEnv(t *testing.T) {
	assert.Equal(t, "-", formatJobEnv(manifest.Job{Number: 1}))

	job := manifest.Job{
		Number: 1,
		Env: []manifest.EnvVar{
			{Name: "OMP_NUM_THREADS", Value: "1"},
			{Name: "PYTHON_VERSION", Value: "3.7"},
		},
	}
	assert.Equal(t, "OMP_NUM_THREADS=1 PYTHON_VERSION=3.7", formatJobEnv(job))
}

func TestWorstStatus(t *testing.T) {
	outcome := func(s model.BuildStatus) jobOutcome {
		return jobOutcome{Result: &model.BuildResult{Status: s}}
	}

	assert.Equal(t, model.StatusPassed, worstStatus(nil))
	assert.Equal(t, model.StatusPassed,
		worstStatus([]jobOutcome{outcome(model.StatusPassed)}))
	assert.Equal(t, model.StatusFailed,
		worstStatus([]jobOutcome{outcome(model.StatusPassed), outcome(model.StatusFailed)}))
	// Errored outranks failed regardless of order.
	assert.Equal(t, model.StatusErrored,
		worstStatus([]jobOutcome{outcome(model.StatusErrored), outcome(model.StatusFailed)}))
}

func TestParsePhaseList(t *testing.T) {
	phases, err := parsePhaseList([]string{"script", "install"})
	require.NoError(t, err)
	assert.Equal(t, []model.Phase{model.PhaseScript, model.PhaseInstall}, phases)

	_, err = parsePhaseList([]string{"deploy"})
	assert.Error(t, err)
}

func TestBuildPhasePlan(t *testing.T) {
	m := &manifest.Manifest{
		Install: manifest.StringList{"pip install ."},
		Script:  manifest.StringList{"py.test"},
		Addons: &manifest.Addons{Apt: &manifest.AptAddon{
			Packages: []string{"libopenmpi-dev"},
			Update:   true,
		}},
	}

	plan := buildPhasePlan(m)
	require.Len(t, plan, 3)

	assert.Equal(t, "apt-addons", plan[0].Phase)
	assert.Equal(t, []string{
		"apt-get update -qq",
		"apt-get install -y --no-install-recommends libopenmpi-dev",
	}, plan[0].Steps)
	assert.Equal(t, "install", plan[1].Phase)
	assert.Equal(t, "script", plan[2].Phase)
}

// TestRunCommand_ContainerTimeoutConflict: the container path cannot
// bound individual steps, so combining the flags is rejected up front.
func TestRunCommand_ContainerTimeoutConflict(t *testing.T) {
	cmd := NewRunCommand()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"--container", "--timeout", "30s"})

	err := cmd.Execute()
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitGeneralError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "--timeout")
}

func TestSelectJobs(t *testing.T) {
	m := &manifest.Manifest{
		Script: manifest.StringList{"true"},
		Env: manifest.EnvSpec{
			Matrix: []string{"PYTHON_VERSION=3.6", "PYTHON_VERSION=3.7"},
		},
	}

	all, err := selectJobs(m, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := selectJobs(m, 2)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 2, one[0].Number)

	_, err = selectJobs(m, 5)
	assert.Error(t, err)
}
