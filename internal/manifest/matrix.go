// matrix.go expands the manifest's env section into concrete build jobs.
package manifest

import "fmt"

// Job is one concrete build derived from the manifest: the shared phases
// plus a fully resolved set of manifest-declared environment variables.
type Job struct {
	// Number is the 1-based position of the job within the matrix.
	Number int `json:"number"`

	// Env holds the job's variables in declaration order: global entries
	// first, then the job's matrix row. Later assignments to the same
	// name win when the env is applied.
	Env []EnvVar `json:"env,omitempty"`

	// MatrixEntry is the raw matrix row this job came from. Empty for
	// the single implicit job of a matrix-less manifest.
	MatrixEntry string `json:"matrixEntry,omitempty"`
}

// ExpandJobs derives the build jobs from a manifest's env section.
//
// A plain env list yields one job per entry. The mapping form yields one
// job per matrix row, each carrying the global variables first. With no
// env section (or only global variables) there is exactly one job.
//
// Returns an error if any env entry fails to parse; Lint reports the
// same problems with field context before a run gets here.
func ExpandJobs(m *Manifest) ([]Job, error) {
	global, err := parseEntries(m.Env.Global, "env.global")
	if err != nil {
		return nil, err
	}

	if len(m.Env.Matrix) == 0 {
		return []Job{{Number: 1, Env: global}}, nil
	}

	jobs := make([]Job, 0, len(m.Env.Matrix))
	for i, entry := range m.Env.Matrix {
		row, err := ParseEnvEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("env matrix entry %d: %w", i+1, err)
		}

		env := make([]EnvVar, 0, len(global)+len(row))
		env = append(env, global...)
		env = append(env, row...)

		jobs = append(jobs, Job{
			Number:      i + 1,
			Env:         env,
			MatrixEntry: entry,
		})
	}
	return jobs, nil
}

func parseEntries(entries []string, field string) ([]EnvVar, error) {
	var vars []EnvVar
	for i, entry := range entries {
		parsed, err := ParseEnvEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", field, i+1, err)
		}
		vars = append(vars, parsed...)
	}
	return vars, nil
}
