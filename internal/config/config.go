// Package config loads the optional per-user runner configuration.
//
// The file lives at $XDG_CONFIG_HOME/stagehand/config.toml (per
// os.UserConfigDir) and supplies defaults for flags that are tedious to
// repeat, such as the container image. A missing file is not an error;
// every setting has a built-in default and command-line flags override
// the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mmr-tortoise/stagehand/internal/model"
)

// DefaultImage is the container image used for builds when neither the
// config file nor the --image flag names one.
const DefaultImage = "ubuntu:22.04"

// Config holds the user-level runner settings.
type Config struct {
	// Image is the default container image for containerized builds.
	Image string `toml:"image"`

	// StepTimeout bounds each build step, as a Go duration string
	// ("10m", "1h30m"). Empty means no limit.
	StepTimeout string `toml:"step_timeout"`

	// SkipAddons disables the synthesized apt-addons phase by default.
	SkipAddons bool `toml:"skip_addons"`

	// Manifest names a manifest path to use when no --manifest flag or
	// positional argument is given, bypassing the search order.
	Manifest string `toml:"manifest"`
}

// Default returns the built-in configuration used when no file exists.
func Default() Config {
	return Config{Image: DefaultImage}
}

// Path returns the location of the user configuration file.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "stagehand", "config.toml"), nil
}

// Load reads the user configuration, falling back to defaults when the
// file does not exist. A file that exists but cannot be parsed is an
// error; silently ignoring it would make typos invisible.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		// No resolvable config dir (rare, e.g. HOME unset) just means
		// defaults.
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a configuration file from an explicit path, merging
// it over the defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to read config file %q", path),
			err,
		)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("invalid config file %q", path),
			err,
		)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that are parsed lazily.
func (c Config) Validate() error {
	if c.Image == "" {
		return model.NewCLIError(model.ExitGeneralError, "config: image must not be empty")
	}
	if _, err := c.ParseStepTimeout(); err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("config: invalid step_timeout %q", c.StepTimeout),
			err,
		)
	}
	return nil
}

// ParseStepTimeout converts the step_timeout string into a duration.
// An empty string yields zero, meaning no limit.
func (c Config) ParseStepTimeout() (time.Duration, error) {
	if c.StepTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.StepTimeout)
}
