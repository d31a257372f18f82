// env.go handles the manifest's env section and the parsing of env
// entries.
//
// The env section comes in two shapes:
//
//	env:                        env:
//	  - PYTHON_VERSION=3.6        global:
//	  - PYTHON_VERSION=3.7          - COVERAGE=1
//	                              matrix:
//	                                - PYTHON_VERSION=3.6
//	                                - PYTHON_VERSION=3.7
//
// A plain list is a pure matrix: each entry describes one build job.
// The mapping form adds global variables shared by every job. Each entry
// is a space-separated sequence of NAME=VALUE assignments, with optional
// single or double quoting of values ("NAME='a b' OTHER=c").
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar is a single NAME=VALUE environment variable assignment.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// String renders the assignment in NAME=VALUE form.
func (v EnvVar) String() string {
	return v.Name + "=" + v.Value
}

// EnvSpec is the normalized env section of a manifest.
type EnvSpec struct {
	// Global holds variable entries shared by every job.
	Global []string

	// Matrix holds one entry per build job. Empty means a single job
	// with only the global variables.
	Matrix []string
}

// IsZero reports whether the manifest declared no env section at all.
func (e EnvSpec) IsZero() bool {
	return len(e.Global) == 0 && len(e.Matrix) == 0
}

// envSpecMapping mirrors the mapping form of the env section.
// "jobs" is accepted as an alias for "matrix".
type envSpecMapping struct {
	Global StringList `yaml:"global,omitempty" json:"global,omitempty"`
	Matrix StringList `yaml:"matrix,omitempty" json:"matrix,omitempty"`
	Jobs   StringList `yaml:"jobs,omitempty" json:"jobs,omitempty"`
}

func (e *EnvSpec) fromMapping(m envSpecMapping) {
	e.Global = m.Global
	e.Matrix = m.Matrix
	if len(e.Matrix) == 0 {
		e.Matrix = m.Jobs
	}
}

// UnmarshalYAML accepts the scalar, list, and mapping forms of env.
func (e *EnvSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		// "env:" with no value is a null scalar; treat it as no env
		// section at all.
		if node.Tag == "!!null" {
			return nil
		}
		e.Matrix = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var entries StringList
		if err := node.Decode(&entries); err != nil {
			return fmt.Errorf("env list entries must be strings: %w", err)
		}
		e.Matrix = entries
		return nil
	case yaml.MappingNode:
		var m envSpecMapping
		if err := node.Decode(&m); err != nil {
			return fmt.Errorf("invalid env mapping: %w", err)
		}
		e.fromMapping(m)
		return nil
	default:
		return fmt.Errorf("env must be a string, list, or global/matrix mapping (line %d)", node.Line)
	}
}

// UnmarshalJSON is the JSONC counterpart of UnmarshalYAML.
func (e *EnvSpec) UnmarshalJSON(data []byte) error {
	var list StringList
	if err := json.Unmarshal(data, &list); err == nil {
		e.Matrix = list
		return nil
	}
	var m envSpecMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("env must be a string, list, or global/matrix mapping: %w", err)
	}
	e.fromMapping(m)
	return nil
}

// ParseEnvEntry parses one env entry ("A=1 B='two words'") into its
// variable assignments, preserving declaration order.
//
// Entries follow shell-like word splitting: assignments are separated by
// unquoted whitespace, and values may be wrapped in single or double
// quotes to include spaces. Anything that is not a NAME=VALUE assignment
// is an error, surfaced to users through Lint.
func ParseEnvEntry(entry string) ([]EnvVar, error) {
	words, err := splitQuoted(entry)
	if err != nil {
		return nil, err
	}

	vars := make([]EnvVar, 0, len(words))
	for _, word := range words {
		name, value, found := strings.Cut(word, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("env entry %q: %q is not a NAME=VALUE assignment", entry, word)
		}
		if !validEnvName(name) {
			return nil, fmt.Errorf("env entry %q: invalid variable name %q", entry, name)
		}
		vars = append(vars, EnvVar{Name: name, Value: value})
	}
	return vars, nil
}

// splitQuoted splits a string on whitespace, honoring single and double
// quotes. Quote characters are removed from the result.
func splitQuoted(s string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		quote   rune // 0 when outside quotes
		inWord  bool
	)

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %q quote in %q", quote, s)
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}

// validEnvName checks the POSIX environment variable name rules:
// letters, digits, underscore, not starting with a digit.
func validEnvName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}
