package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// EnvLibDir overrides the package root.
	EnvLibDir = "ARTHAS_LIB_DIR"
	// EnvMirror overrides the download mirror.
	EnvMirror = "ARTHAS_MIRROR"
	// EnvSkipUpdateCheck runs the installed version without asking the remote.
	EnvSkipUpdateCheck = "ARTHAS_SKIP_UPDATE_CHECK"
	// EnvConfigPath points at the settings file.
	EnvConfigPath = "ARTHAS_LAUNCHER_CONFIG"
	// EnvLogLevel overrides the log level.
	EnvLogLevel = "ARTHAS_LAUNCHER_LOG_LEVEL"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// HomeFunc has the signature of os.UserHomeDir.
type HomeFunc func() (string, error)

var errNoHomeDirectory = errors.New("unable to determine home directory")

// ApplyEnv overrides settings with the environment variables that are set and
// non-empty, then validates the result.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if v, ok := nonEmpty(lookup, EnvLibDir); ok {
		cfg.LibDir = v
	}

	if v, ok := nonEmpty(lookup, EnvMirror); ok {
		cfg.Mirror = v
	}

	if v, ok := nonEmpty(lookup, EnvLogLevel); ok {
		cfg.LogLevel = v
	}

	if v, ok := nonEmpty(lookup, EnvSkipUpdateCheck); ok {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvSkipUpdateCheck, err)
		}

		cfg.SkipUpdateCheck = skip
	}

	return Validate(cfg)
}

// Path returns the settings file location: $ARTHAS_LAUNCHER_CONFIG when set,
// otherwise <home>/.<tool>/launcher.yaml for the default tool.
func Path(lookup LookupFunc, home HomeFunc) (string, error) {
	if v, ok := nonEmpty(lookup, EnvConfigPath); ok {
		return v, nil
	}

	dir, err := homeDir(home)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "."+DefaultToolName, DefaultConfigFilename), nil
}

// PackageRoot returns the directory holding installed versions:
// cfg.LibDir when set, otherwise <home>/.<tool>/lib.
func PackageRoot(cfg *Config, home HomeFunc) (string, error) {
	if cfg == nil {
		return "", errConfigIsNotSet
	}

	if strings.TrimSpace(cfg.LibDir) != "" {
		return filepath.Clean(cfg.LibDir), nil
	}

	dir, err := homeDir(home)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "."+cfg.ToolName, "lib"), nil
}

func homeDir(home HomeFunc) (string, error) {
	dir, err := home()
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNoHomeDirectory, err)
	}

	if dir == "" {
		return "", errNoHomeDirectory
	}

	return dir, nil
}

func nonEmpty(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}

	v = strings.TrimSpace(v)

	return v, v != ""
}
