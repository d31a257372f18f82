// Package manifest handles locating, parsing, and validating CI pipeline
// manifests.
//
// The manifest format is the Travis-style phase schema: lifecycle phase
// keys (before_install, install, script, after_success, ...) whose values
// are a single shell command or a list of them, an env section that is
// either a plain list (one build job per entry) or a global/matrix
// mapping, apt addon packages, and branch rules.
//
// Manifests are written in YAML (parsed with gopkg.in/yaml.v3) or JSONC
// (comments stripped with github.com/tidwall/jsonc, then parsed with the
// standard encoding/json library). Multi-shape fields such as
// string-or-list normalize to a single Go representation on unmarshal.
//
// Key responsibilities:
//   - Locate the manifest in its standard paths
//   - Parse YAML/JSONC into the Manifest struct
//   - Expand the env matrix into concrete build jobs
//   - Lint the manifest: recognized keys, value shapes, env consistency
package manifest
