// script.go compiles a build job into a standalone POSIX shell script.
//
// This is what a CI host does with a manifest before handing it to a
// worker: the phase lists become guarded command sequences in a single
// top-level shell, so that exported variables and directory changes
// persist across phases, while the gating semantics (setup errors halt,
// script failures fail, after_* never change the result) are encoded in
// the script itself. The script reports the outcome through its exit
// code, which lets a container runner classify the build without any
// channel other than the process status.
package runner

import (
	"fmt"
	"strings"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
)

// Exit codes of the compiled build script. 0 means passed; the other two
// are chosen well clear of common tool exit codes.
const (
	// ScriptExitFailed is returned when a script-phase step failed.
	ScriptExitFailed = 20

	// ScriptExitErrored is returned when a setup-phase step failed.
	ScriptExitErrored = 30
)

// StatusFromScriptExit maps a compiled script's exit code back to a
// build status.
func StatusFromScriptExit(code int) model.BuildStatus {
	switch code {
	case 0:
		return model.StatusPassed
	case ScriptExitFailed:
		return model.StatusFailed
	default:
		return model.StatusErrored
	}
}

// ScriptOptions configures script compilation.
type ScriptOptions struct {
	// IncludeAddons emits the apt-addons phase. Container images run as
	// root, so no sudo prefix is compiled in.
	IncludeAddons bool

	// Only restricts compilation to the listed phases. Empty keeps all.
	Only []model.Phase

	// Git provides the branch/commit built-in variables baked into the
	// script header.
	Git GitInfo
}

// CompileScript renders one job of a manifest as a POSIX sh script.
//
// Layout:
//   - header: set built-in and manifest variables (quoted, exported)
//   - an EXIT trap that converts the result into the exit code, so a
//     step calling exit directly still classifies correctly
//   - one block per phase, guarded on the running result so the gating
//     matches the local runner exactly
func CompileScript(m *manifest.Manifest, job manifest.Job, opts ScriptOptions) string {
	var b strings.Builder

	b.WriteString("#!/bin/sh\n")
	b.WriteString("# build script generated by stagehand; do not edit\n")
	fmt.Fprintf(&b, "# job %d", job.Number)
	if job.MatrixEntry != "" {
		fmt.Fprintf(&b, ": %s", job.MatrixEntry)
	}
	b.WriteString("\n\nSTAGEHAND_RESULT=passed\nSTAGEHAND_CLASS=errored\n\n")
	writeTrap(&b)
	b.WriteString("\n")

	writeExport(&b, "CI", "true")
	writeExport(&b, "STAGEHAND", "true")
	writeExport(&b, "STAGEHAND_BRANCH", opts.Git.Branch)
	writeExport(&b, "STAGEHAND_COMMIT", opts.Git.Commit)
	writeExport(&b, "STAGEHAND_JOB_NUMBER", fmt.Sprintf("%d", job.Number))
	for _, v := range job.Env {
		writeExport(&b, v.Name, v.Value)
	}

	for _, phase := range model.PhaseOrder {
		steps := scriptSteps(m, phase, opts)
		if len(steps) == 0 {
			continue
		}
		writePhase(&b, phase, steps)
	}

	return b.String()
}

// writeTrap emits the exit-code classification. It runs as an EXIT trap
// rather than a trailing case so that a step calling exit directly (a
// common CI idiom) still reports the outcome class of its phase, which
// STAGEHAND_CLASS tracks, instead of leaking the raw exit code.
func writeTrap(b *strings.Builder) {
	b.WriteString("stagehand_finish() {\n")
	b.WriteString("  code=$?\n")
	b.WriteString("  if [ \"$code\" -ne 0 ] && [ \"$STAGEHAND_RESULT\" = passed ]; then\n")
	b.WriteString("    STAGEHAND_RESULT=$STAGEHAND_CLASS\n")
	b.WriteString("  fi\n")
	b.WriteString("  case \"$STAGEHAND_RESULT\" in\n")
	b.WriteString("  passed) exit 0 ;;\n")
	fmt.Fprintf(b, "  failed) exit %d ;;\n", ScriptExitFailed)
	fmt.Fprintf(b, "  *) exit %d ;;\n", ScriptExitErrored)
	b.WriteString("  esac\n")
	b.WriteString("}\n")
	b.WriteString("trap stagehand_finish EXIT\n")
}

// scriptSteps mirrors Runner.stepsFor for compilation.
func scriptSteps(m *manifest.Manifest, phase model.Phase, opts ScriptOptions) []string {
	if !phaseSelected(opts.Only, phase) {
		return nil
	}
	if phase == model.PhaseAptAddons {
		if !opts.IncludeAddons {
			return nil
		}
		packages := m.AptPackages()
		if len(packages) == 0 {
			return nil
		}
		return aptCommands("", packages, m.Addons.Apt.Update)
	}
	return m.Steps(phase)
}

// writePhase emits one guarded phase block.
//
// Setup and script phases wrap every step in an if-guard that flips
// STAGEHAND_RESULT on failure, which both aborts the remaining steps of
// the phase and records the outcome class. after_* phases chain their
// steps with && (abort on failure) and discard the result with || :.
// Each block first updates STAGEHAND_CLASS so the exit trap knows which
// class a premature exit belongs to.
func writePhase(b *strings.Builder, phase model.Phase, steps []string) {
	guard := phaseGuard(phase)

	fmt.Fprintf(b, "\nSTAGEHAND_CLASS=%s\n", phaseClass(phase))
	fmt.Fprintf(b, "if %s; then\n", guard)
	fmt.Fprintf(b, "printf 'stagehand: >>> %%s\\n' %s\n", shQuote(phase.String()))

	if phase.IsAfter() {
		for i, step := range steps {
			if i > 0 {
				b.WriteString(" &&\n")
			}
			fmt.Fprintf(b, "{ %s ; }", step)
		}
		b.WriteString(" || :\n")
	} else {
		outcome := "errored"
		if phase == model.PhaseScript {
			outcome = "failed"
		}
		for _, step := range steps {
			fmt.Fprintf(b, "if [ \"$STAGEHAND_RESULT\" = passed ]; then { %s ; } || STAGEHAND_RESULT=%s; fi\n",
				step, outcome)
		}
	}

	b.WriteString("fi\n")
}

// phaseGuard returns the condition under which a phase block runs.
func phaseGuard(phase model.Phase) string {
	switch phase {
	case model.PhaseAfterSuccess:
		return `[ "$STAGEHAND_RESULT" = passed ]`
	case model.PhaseAfterFailure:
		return `[ "$STAGEHAND_RESULT" = failed ]`
	case model.PhaseAfterScript:
		return `[ "$STAGEHAND_RESULT" != errored ]`
	default:
		return `[ "$STAGEHAND_RESULT" = passed ]`
	}
}

// phaseClass is the value STAGEHAND_CLASS holds while a phase runs:
// the result a premature non-zero exit collapses to. after_* phases
// keep whatever result is already decided.
func phaseClass(phase model.Phase) string {
	switch {
	case phase.IsAfter():
		return `"$STAGEHAND_RESULT"`
	case phase == model.PhaseScript:
		return "failed"
	default:
		return "errored"
	}
}

// writeExport emits a single-quoted exported assignment.
func writeExport(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s=%s\nexport %s\n", name, shQuote(value), name)
}

// shQuote single-quotes a value for POSIX sh, escaping embedded single
// quotes with the '\'' idiom.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
