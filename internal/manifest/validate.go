// validate.go implements manifest linting: the structural and textual
// checks that can be made without executing anything. Each finding is a
// typed Issue so the CLI can render text or JSON and decide severity
// handling (--strict) uniformly.
package manifest

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/mmr-tortoise/stagehand/internal/model"
)

// Severity classifies a lint finding.
type Severity string

const (
	// SeverityError marks findings that make the manifest unrunnable
	// (malformed env entries, no script phase).
	SeverityError Severity = "error"

	// SeverityWarning marks findings a build survives but that likely
	// indicate a mistake (unknown keys, undeclared variable references).
	SeverityWarning Severity = "warning"
)

// Issue is a single lint finding.
type Issue struct {
	// Severity is error or warning.
	Severity Severity `json:"severity"`

	// Field names the manifest section the finding applies to
	// (e.g. "script", "env.matrix", "addons.apt").
	Field string `json:"field"`

	// Message is the human-readable description.
	Message string `json:"message"`
}

// String renders the issue in "severity: field: message" form.
func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Message)
}

// HasErrors reports whether any issue in the slice is an error.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// builtinVars are the variables the runner injects into every job, plus
// host variables that any shell session provides. References to these
// never warrant an undeclared-variable warning.
var builtinVars = map[string]bool{
	"CI":                   true,
	"STAGEHAND":            true,
	"STAGEHAND_BRANCH":     true,
	"STAGEHAND_COMMIT":     true,
	"STAGEHAND_JOB_NUMBER": true,
	"PATH":                 true,
	"HOME":                 true,
	"PWD":                  true,
	"USER":                 true,
	"SHELL":                true,
	"TMPDIR":               true,
}

// varRefPattern matches $NAME and ${NAME} references in shell commands.
// Positional and special parameters ($1, $?, $@) are deliberately not
// matched; they are shell-internal, not environment variables.
var varRefPattern = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// Lint checks a parsed manifest against the schema rules and returns all
// findings. An empty slice means the manifest is clean.
//
// Checks:
//   - script phase declares at least one step (error if absent)
//   - every env entry parses as NAME=VALUE assignments (error)
//   - unknown top-level keys (warning)
//   - variables referenced in steps but declared nowhere (warning)
//   - branch rules that declare neither only nor except (warning)
//   - apt addon with an empty package list (warning)
//   - cache/notifications sections, which stagehand parses but does not
//     execute (warning)
func Lint(m *Manifest) []Issue {
	var issues []Issue

	if len(m.Script) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Field:    "script",
			Message:  "no script steps declared; the build would have nothing to run",
		})
	}

	issues = append(issues, lintEnvEntries(m)...)
	issues = append(issues, lintVarReferences(m)...)

	for _, key := range m.UnknownKeys {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    key,
			Message:  "unknown top-level key, ignored",
		})
	}

	if m.Branches != nil && len(m.Branches.Only) == 0 && len(m.Branches.Except) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    "branches",
			Message:  "branches section declares neither only nor except",
		})
	}

	if m.Addons != nil && m.Addons.Apt != nil && len(m.Addons.Apt.Packages) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    "addons.apt",
			Message:  "apt addon declares no packages",
		})
	}

	if m.Cache != nil {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    "cache",
			Message:  "cache configuration is parsed but not executed locally",
		})
	}
	if m.Notifications != nil {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    "notifications",
			Message:  "notifications are parsed but not executed locally",
		})
	}

	return issues
}

// lintEnvEntries validates every global and matrix env entry.
func lintEnvEntries(m *Manifest) []Issue {
	var issues []Issue
	for i, entry := range m.Env.Global {
		if _, err := ParseEnvEntry(entry); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Field:    fmt.Sprintf("env.global[%d]", i),
				Message:  err.Error(),
			})
		}
	}
	for i, entry := range m.Env.Matrix {
		if _, err := ParseEnvEntry(entry); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Field:    fmt.Sprintf("env.matrix[%d]", i),
				Message:  err.Error(),
			})
		}
	}
	return issues
}

// lintVarReferences cross-checks $VAR references in phase steps against
// the declared env section. A reference with no declaration is only a
// warning: the variable may legitimately come from the host environment,
// but for manifest-declared toolchain pins (PYTHON_VERSION and friends)
// this catches typos between declaration and use.
func lintVarReferences(m *Manifest) []Issue {
	declared := make(map[string]bool)
	for _, entry := range append(append([]string{}, m.Env.Global...), m.Env.Matrix...) {
		vars, err := ParseEnvEntry(entry)
		if err != nil {
			continue // reported separately by lintEnvEntries
		}
		for _, v := range vars {
			declared[v.Name] = true
		}
	}

	// Exported assignments inside steps also count as declarations for
	// any later reference.
	undeclared := make(map[string]bool)
	for _, phase := range model.PhaseOrder {
		for _, step := range m.Steps(phase) {
			for _, match := range varRefPattern.FindAllStringSubmatch(step, -1) {
				name := match[1]
				if declared[name] || builtinVars[name] {
					continue
				}
				undeclared[name] = true
			}
			for _, v := range assignedInStep(step) {
				declared[v] = true
			}
		}
	}

	names := make([]string, 0, len(undeclared))
	for name := range undeclared {
		if !declared[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	issues := make([]Issue, 0, len(names))
	for _, name := range names {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Field:    "env",
			Message:  fmt.Sprintf("$%s is referenced in a step but never declared; it must come from the host environment", name),
		})
	}
	return issues
}

// assignPattern matches NAME= and export NAME= assignments in a step.
var assignPattern = regexp.MustCompile(`(?:^|[;&|]\s*|\s)(?:export\s+)?([A-Za-z_][A-Za-z0-9_]*)=`)

// assignedInStep extracts the variable names a step assigns, so later
// references to them are not flagged.
func assignedInStep(step string) []string {
	var names []string
	for _, match := range assignPattern.FindAllStringSubmatch(step, -1) {
		names = append(names, match[1])
	}
	return names
}
