// Package runner executes the build jobs derived from a manifest.
//
// A job runs as a sequence of lifecycle phases with conventional CI host
// gating: a non-zero exit aborts the remaining steps of its phase; setup
// phase failures error the build and halt it; script phase failures fail
// the build; after_success, after_failure, and after_script are gated on
// the build outcome and never change it.
//
// Local execution uses the pure-Go POSIX shell interpreter from
// mvdan.cc/sh/v3. All steps of a job share one interpreter session, so
// exported variables and PATH extensions persist across steps exactly as
// they would in a single CI worker shell. For container execution the
// same job is compiled into a standalone build script (see script.go)
// and handed to internal/docker.
package runner
