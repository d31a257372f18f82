package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/stagehand/internal/model"
)

// candidateNames are the manifest filenames probed by Find, in priority
// order. The .travis.yml fallback lets stagehand run pipelines of
// repositories that still carry their original manifest.
var candidateNames = []string{
	".stagehand.yml",
	".stagehand.yaml",
	".stagehand.jsonc",
	".travis.yml",
}

// StringList is a manifest field that accepts either a single string or a
// list of strings. Phase command lists, apt package lists, and the os
// field all use this shape. Unmarshaling normalizes both forms to a
// plain []string, so the rest of the code never sees the distinction.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for the string-or-list shape.
// Scalar nodes are taken verbatim (node.Value), which also tolerates
// unquoted numeric scalars such as a bare version number.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		// A key with no value ("script:") is a null scalar, not an empty
		// list; read it as absent rather than as one blank command.
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("list entries must be strings: %w", err)
		}
		*l = StringList(items)
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings (line %d)", node.Line)
	}
}

// UnmarshalJSON implements json.Unmarshaler for JSONC manifests.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = StringList(items)
	return nil
}

// AptAddon declares apt packages to install before the build runs.
// This corresponds to the addons.apt section of the manifest.
type AptAddon struct {
	// Packages lists the apt package names to install.
	Packages StringList `yaml:"packages,omitempty" json:"packages,omitempty"`

	// Sources lists additional apt source aliases. Parsed for lint
	// completeness; source configuration is not executed locally.
	Sources StringList `yaml:"sources,omitempty" json:"sources,omitempty"`

	// Update requests an `apt-get update` before installation.
	Update bool `yaml:"update,omitempty" json:"update,omitempty"`
}

// Addons groups the environment add-on sections of the manifest.
// Only apt is executed; unrecognized addon kinds surface as lint warnings.
type Addons struct {
	Apt *AptAddon `yaml:"apt,omitempty" json:"apt,omitempty"`
}

// BranchRules restricts which git branches a build runs on.
// An empty rule set allows every branch.
type BranchRules struct {
	// Only lists the branches a build may run on. Empty means all.
	Only StringList `yaml:"only,omitempty" json:"only,omitempty"`

	// Except lists branches a build must not run on. Except wins over
	// Only when both match.
	Except StringList `yaml:"except,omitempty" json:"except,omitempty"`
}

// Allows reports whether a build should run for the given branch.
// A detached HEAD (reported by git as the literal branch name "HEAD")
// is always allowed, since branch rules cannot meaningfully apply.
func (r *BranchRules) Allows(branch string) bool {
	if r == nil || branch == "HEAD" {
		return true
	}
	for _, b := range r.Except {
		if b == branch {
			return false
		}
	}
	if len(r.Only) == 0 {
		return true
	}
	for _, b := range r.Only {
		if b == branch {
			return true
		}
	}
	return false
}

// Manifest is the parsed CI pipeline definition. Only the fields stagehand
// acts on are modeled; unknown top-level keys are collected for lint
// rather than rejected, matching the tolerant parsing of CI hosts.
type Manifest struct {
	// Language is the declared toolchain (e.g. "python"). Informational:
	// stagehand runs the declared shell steps regardless of language.
	Language string `yaml:"language,omitempty" json:"language,omitempty"`

	// OS and Dist describe the requested worker environment. Parsed for
	// lint and display; local runs use the host (or --image) as-is.
	OS   StringList `yaml:"os,omitempty" json:"os,omitempty"`
	Dist string     `yaml:"dist,omitempty" json:"dist,omitempty"`

	// Env declares environment variables: a plain list (one job per
	// entry) or a global/matrix mapping.
	Env EnvSpec `yaml:"env,omitempty" json:"env,omitempty"`

	// Addons declares environment add-ons such as apt packages.
	Addons *Addons `yaml:"addons,omitempty" json:"addons,omitempty"`

	// Branches gates builds by git branch.
	Branches *BranchRules `yaml:"branches,omitempty" json:"branches,omitempty"`

	// Lifecycle phase command lists.
	BeforeInstall StringList `yaml:"before_install,omitempty" json:"before_install,omitempty"`
	Install       StringList `yaml:"install,omitempty" json:"install,omitempty"`
	BeforeScript  StringList `yaml:"before_script,omitempty" json:"before_script,omitempty"`
	Script        StringList `yaml:"script,omitempty" json:"script,omitempty"`
	AfterSuccess  StringList `yaml:"after_success,omitempty" json:"after_success,omitempty"`
	AfterFailure  StringList `yaml:"after_failure,omitempty" json:"after_failure,omitempty"`
	AfterScript   StringList `yaml:"after_script,omitempty" json:"after_script,omitempty"`

	// Cache and Notifications are accepted but not executed (see the
	// lint warnings). Their shapes vary too much to model strictly.
	Cache         interface{} `yaml:"cache,omitempty" json:"cache,omitempty"`
	Notifications interface{} `yaml:"notifications,omitempty" json:"notifications,omitempty"`

	// Path is the absolute path the manifest was loaded from.
	// Not part of the schema; set by Load.
	Path string `yaml:"-" json:"-"`

	// UnknownKeys holds top-level keys present in the file but absent
	// from the schema. Set by Load, consumed by Lint.
	UnknownKeys []string `yaml:"-" json:"-"`
}

// knownKeys is the recognized top-level key set, used to report unknown
// keys without rejecting the file.
var knownKeys = map[string]bool{
	"language": true, "os": true, "dist": true, "env": true,
	"addons": true, "branches": true, "cache": true, "notifications": true,
	"before_install": true, "install": true, "before_script": true,
	"script": true, "after_success": true, "after_failure": true,
	"after_script": true,
}

// Steps returns the command list declared for the given lifecycle phase.
// The apt-addons phase is synthesized by the runner and has no manifest
// command list, so it returns nil here.
func (m *Manifest) Steps(phase model.Phase) []string {
	switch phase {
	case model.PhaseBeforeInstall:
		return m.BeforeInstall
	case model.PhaseInstall:
		return m.Install
	case model.PhaseBeforeScript:
		return m.BeforeScript
	case model.PhaseScript:
		return m.Script
	case model.PhaseAfterSuccess:
		return m.AfterSuccess
	case model.PhaseAfterFailure:
		return m.AfterFailure
	case model.PhaseAfterScript:
		return m.AfterScript
	default:
		return nil
	}
}

// AptPackages returns the declared apt addon packages, or nil when the
// manifest has no apt addon section.
func (m *Manifest) AptPackages() []string {
	if m.Addons == nil || m.Addons.Apt == nil {
		return nil
	}
	return m.Addons.Apt.Packages
}

// Find searches for a manifest file in the standard locations within dir.
// Returns the absolute path of the first candidate that exists, or a
// CLIError with ExitManifestNotFound.
func Find(dir string) (string, error) {
	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("failed to resolve manifest path: %w", err)
			}
			return abs, nil
		}
	}
	return "", model.NewCLIError(
		model.ExitManifestNotFound,
		fmt.Sprintf("no manifest found in %s (searched %s)", dir, strings.Join(candidateNames, ", ")),
	)
}

// Load reads and parses a manifest file. The format is chosen by
// extension: .jsonc and .json files are stripped of comments with
// jsonc.ToJSON and parsed as JSON; everything else is parsed as YAML.
//
// Returns a CLIError with ExitManifestNotFound if the file does not
// exist, or ExitManifestInvalid if it cannot be parsed.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitManifestNotFound,
				fmt.Sprintf("manifest not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".json":
		// Comments and trailing commas are common in hand-maintained
		// JSONC files; strip them before handing off to encoding/json.
		clean := jsonc.ToJSON(data)
		if err := json.Unmarshal(clean, &m); err != nil {
			return nil, model.WrapCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("failed to parse manifest %s", path),
				err,
			)
		}
		m.UnknownKeys = unknownJSONKeys(clean)
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, model.WrapCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("failed to parse manifest %s", path),
				err,
			)
		}
		m.UnknownKeys = unknownYAMLKeys(data)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	m.Path = abs

	return &m, nil
}

// unknownYAMLKeys re-parses the document as a generic mapping to collect
// top-level keys that the schema does not model. Parse errors are ignored
// here; Load has already parsed the same bytes successfully.
func unknownYAMLKeys(data []byte) []string {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil
	}
	return filterUnknown(generic)
}

// unknownJSONKeys is the JSON counterpart of unknownYAMLKeys. The input
// must already be comment-stripped.
func unknownJSONKeys(clean []byte) []string {
	var generic map[string]interface{}
	if err := json.Unmarshal(clean, &generic); err != nil {
		return nil
	}
	return filterUnknown(generic)
}

func filterUnknown(generic map[string]interface{}) []string {
	var unknown []string
	for key := range generic {
		if !knownKeys[key] {
			unknown = append(unknown, key)
		}
	}
	// Map iteration order is random; sort for deterministic lint output.
	sort.Strings(unknown)
	return unknown
}
