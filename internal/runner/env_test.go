package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
)

// envValue extracts NAME's value from an os.Environ-style slice, and
// whether it is present at all.
func envValue(env []string, name string) (string, bool) {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, name+"="); ok {
			return v, true
		}
	}
	return "", false
}

func TestBuildJobEnv_Builtins(t *testing.T) {
	job := manifest.Job{Number: 3}
	env := BuildJobEnv([]string{"PATH=/usr/bin"}, job, GitInfo{Branch: "master", Commit: "abc123"})

	for name, want := range map[string]string{
		"CI":                   "true",
		"STAGEHAND":            "true",
		"STAGEHAND_BRANCH":     "master",
		"STAGEHAND_COMMIT":     "abc123",
		"STAGEHAND_JOB_NUMBER": "3",
		"PATH":                 "/usr/bin",
	} {
		got, ok := envValue(env, name)
		require.True(t, ok, "%s should be set", name)
		assert.Equal(t, want, got, name)
	}
}

// TestBuildJobEnv_Precedence verifies manifest variables override the
// process environment and matrix rows override global entries.
func TestBuildJobEnv_Precedence(t *testing.T) {
	job := manifest.Job{
		Number: 1,
		Env: []manifest.EnvVar{
			{Name: "OMP_NUM_THREADS", Value: "1"}, // global
			{Name: "OMP_NUM_THREADS", Value: "4"}, // matrix row
		},
	}

	env := BuildJobEnv([]string{"OMP_NUM_THREADS=8", "HOME=/home/u"}, job, GitInfo{})

	got, ok := envValue(env, "OMP_NUM_THREADS")
	require.True(t, ok)
	assert.Equal(t, "4", got)

	// Exactly one entry per name after deduplication.
	count := 0
	for _, kv := range env {
		if strings.HasPrefix(kv, "OMP_NUM_THREADS=") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildJobEnv_SkipsMalformedBaseEntries(t *testing.T) {
	env := BuildJobEnv([]string{"NOEQUALS", "A=1"}, manifest.Job{Number: 1}, GitInfo{})

	_, ok := envValue(env, "NOEQUALS")
	assert.False(t, ok)
	got, ok := envValue(env, "A")
	require.True(t, ok)
	assert.Equal(t, "1", got)
}
