package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/arthas-launcher/internal/logger"
	"github.com/oshokin/arthas-launcher/internal/service/remote"
)

// Config holds the settings of one launch.
type Config struct {
	// ToolName names the tool package; it is the install directory name and
	// part of the default package root.
	ToolName string `yaml:"tool_name"`
	// LibDir overrides the package root. Empty means <home>/.<tool_name>/lib.
	LibDir string `yaml:"lib_dir,omitempty"`
	// LatestVersionURL returns the latest published version as plain text.
	LatestVersionURL string `yaml:"latest_version_url"`
	// DownloadURLTemplate is the archive URL with {version} and {mirror} placeholders.
	DownloadURLTemplate string `yaml:"download_url_template"`
	// Mirror is substituted for {mirror} in DownloadURLTemplate.
	Mirror string `yaml:"mirror"`
	// Timeout bounds the latest version request.
	Timeout time.Duration `yaml:"timeout"`
	// DownloadTimeout bounds the whole archive download including the body.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// MaxRedirects is the number of redirect hops followed by the archive download.
	MaxRedirects int `yaml:"max_redirects"`
	// StripComponents is the number of leading path components dropped on extraction.
	StripComponents int `yaml:"strip_components"`
	// JavaHome points at the runtime installation; empty means $JAVA_HOME, then PATH.
	JavaHome string `yaml:"java_home,omitempty"`
	// JVMOptions are passed to the runtime before the classpath.
	JVMOptions []string `yaml:"jvm_options,omitempty"`
	// BootJar is the classpath entry inside the install target.
	BootJar string `yaml:"boot_jar"`
	// EntryClass is the slash separated class holding the entry point.
	EntryClass string `yaml:"entry_class"`
	// EntryMethod is the static entry point method name.
	EntryMethod string `yaml:"entry_method"`
	// EntrySignature is the runtime descriptor of the entry point.
	EntrySignature string `yaml:"entry_signature"`
	// SkipUpdateCheck runs the highest installed version without asking the remote.
	SkipUpdateCheck bool `yaml:"skip_update_check"`
	// OfflineFallback runs the installed version when the remote is unreachable.
	OfflineFallback bool `yaml:"offline_fallback"`
	// LockStaleAfter is the age after which an install lock is considered abandoned.
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultToolName is the tool installed and launched by default.
	DefaultToolName = "arthas"

	// DefaultLatestVersionURL answers with the latest published version.
	DefaultLatestVersionURL = "https://arthas.aliyun.com/api/latest_version"

	// DefaultDownloadURLTemplate is the archive location for one version.
	DefaultDownloadURLTemplate = "https://arthas.aliyun.com/download/{version}?mirror={mirror}"

	// DefaultMirror is the default download mirror identifier.
	DefaultMirror = "aliyun"

	// DefaultTimeout is the default duration for the latest version request.
	DefaultTimeout = 10 * time.Second

	// DefaultDownloadTimeout is the default duration for an archive download.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultMaxRedirects is the redirect hop limit for archive downloads.
	DefaultMaxRedirects = 5

	// DefaultStripComponents flattens the archive's top-level folder into the install target.
	DefaultStripComponents = 1

	// DefaultBootJar is the classpath entry of the default tool.
	DefaultBootJar = "arthas-boot.jar"

	// DefaultEntryClass is the class holding the entry point of the default tool.
	DefaultEntryClass = "com/taobao/arthas/boot/Bootstrap"

	// DefaultEntryMethod is the entry point method name.
	DefaultEntryMethod = "main"

	// DefaultEntrySignature describes static void main(String[]).
	DefaultEntrySignature = "([Ljava/lang/String;)V"

	// DefaultLockStaleAfter is the default age of an abandoned install lock.
	DefaultLockStaleAfter = 10 * time.Minute

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultConfigFilename is the settings file name inside the tool home directory.
	DefaultConfigFilename = "launcher.yaml"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadToolName is returned when the tool name cannot be a single path segment.
	errBadToolName = errors.New("tool name must be a single path segment")
	// errMissingVersionPlaceholder is returned when the template cannot select a version.
	errMissingVersionPlaceholder = errors.New("download URL template has no " + remote.VersionPlaceholder + " placeholder")
	// errNegativeRedirects is returned for a negative redirect limit.
	errNegativeRedirects = errors.New("max redirects must not be negative")
	// errNegativeStrip is returned for a negative strip component count.
	errNegativeStrip = errors.New("strip components must not be negative")
	// errUnknownLogLevel is returned for an unsupported log level.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		ToolName:            DefaultToolName,
		LatestVersionURL:    DefaultLatestVersionURL,
		DownloadURLTemplate: DefaultDownloadURLTemplate,
		Mirror:              DefaultMirror,
		Timeout:             DefaultTimeout,
		DownloadTimeout:     DefaultDownloadTimeout,
		MaxRedirects:        DefaultMaxRedirects,
		StripComponents:     DefaultStripComponents,
		BootJar:             DefaultBootJar,
		EntryClass:          DefaultEntryClass,
		EntryMethod:         DefaultEntryMethod,
		EntrySignature:      DefaultEntrySignature,
		LockStaleAfter:      DefaultLockStaleAfter,
		LogLevel:            DefaultLogLevel,
	}
}

// Load reads configuration from the provided path on top of the defaults and
// validates it. A missing file is reported as an error wrapping os.ErrNotExist.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()

		return cfg, Validate(cfg)
	}

	return cfg, err
}

// Validate fills empty fields with defaults and checks the rest for correctness.
//
//nolint:cyclop // A flat list of independent field checks.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	fillDefaults(cfg)

	if strings.ContainsAny(cfg.ToolName, `/\`) || cfg.ToolName == "." || cfg.ToolName == ".." {
		return fmt.Errorf("%w: %q", errBadToolName, cfg.ToolName)
	}

	if _, err := url.ParseRequestURI(cfg.LatestVersionURL); err != nil {
		return fmt.Errorf("invalid latest version URL: %w", err)
	}

	if !strings.Contains(cfg.DownloadURLTemplate, remote.VersionPlaceholder) {
		return errMissingVersionPlaceholder
	}

	probe := strings.NewReplacer(remote.VersionPlaceholder, "0.0.0", remote.MirrorPlaceholder, "mirror").
		Replace(cfg.DownloadURLTemplate)
	if _, err := url.ParseRequestURI(probe); err != nil {
		return fmt.Errorf("invalid download URL template: %w", err)
	}

	if cfg.MaxRedirects < 0 {
		return errNegativeRedirects
	}

	if cfg.StripComponents < 0 {
		return errNegativeStrip
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, cfg.LogLevel)
	}

	return nil
}

// fillDefaults sets every empty field to its default value.
func fillDefaults(cfg *Config) {
	def := Default()

	setIfEmpty(&cfg.ToolName, def.ToolName)
	setIfEmpty(&cfg.LatestVersionURL, def.LatestVersionURL)
	setIfEmpty(&cfg.DownloadURLTemplate, def.DownloadURLTemplate)
	setIfEmpty(&cfg.Mirror, def.Mirror)
	setIfEmpty(&cfg.BootJar, def.BootJar)
	setIfEmpty(&cfg.EntryClass, def.EntryClass)
	setIfEmpty(&cfg.EntryMethod, def.EntryMethod)
	setIfEmpty(&cfg.EntrySignature, def.EntrySignature)
	setIfEmpty(&cfg.LogLevel, def.LogLevel)

	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = def.DownloadTimeout
	}

	if cfg.LockStaleAfter <= 0 {
		cfg.LockStaleAfter = def.LockStaleAfter
	}
}

func setIfEmpty(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
