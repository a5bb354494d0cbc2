package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/arthas-launcher/internal/config"
	"github.com/oshokin/arthas-launcher/internal/domain/release"
	"github.com/oshokin/arthas-launcher/internal/logger"
	"github.com/oshokin/arthas-launcher/internal/service/embedder"
	"github.com/oshokin/arthas-launcher/internal/service/installer"
	"github.com/oshokin/arthas-launcher/internal/service/remote"
	"github.com/oshokin/arthas-launcher/internal/service/resolver"
	"github.com/oshokin/arthas-launcher/internal/version"
)

// errNothingToRun is returned when the update check is skipped and nothing is installed.
var errNothingToRun = errors.New("update check is skipped and no version is installed")

// Options are inputs accepted by the launcher entry point.
type Options struct {
	// ConfigPath is the optional path to the settings file. Empty means
	// $ARTHAS_LAUNCHER_CONFIG, then <home>/.arthas/launcher.yaml.
	ConfigPath string
	// Args are forwarded to the tool unchanged.
	Args []string
	// Environ is the environment snapshot the runtime starts from; nil means os.Environ().
	Environ []string
	// LookupEnv reads launcher settings from the environment; nil means os.LookupEnv.
	LookupEnv config.LookupFunc
	// UserHome returns the home directory; nil means os.UserHomeDir.
	UserHome config.HomeFunc
	// Host runs the tool; nil means a JavaHost on the terminal's stdio.
	Host embedder.Host
}

// runner holds the collaborators of a single launch.
type runner struct {
	// cfg is the effective configuration.
	cfg *config.Config
	// root is the package root.
	root string
	// runtimeCfg is the process-scoped runtime configuration without a classpath.
	runtimeCfg *embedder.Config
	// oracle asks for the latest version.
	oracle *remote.Oracle
	// installer reconciles the package root with the wanted version.
	installer *installer.Installer
	// host runs the tool.
	host embedder.Host
}

// Run executes one launch and is the public entry point for the CLI.
// A tool that ran and exited non-zero is reported as *embedder.ExitError.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, version.Name)
	logger.DebugKV(ctx, "Launcher build", "build", version.Full())

	if opts == nil {
		opts = &Options{}
	}

	r, err := newRunner(ctx, opts)
	if err != nil {
		logFailure(ctx, "Launcher setup failed", err)
		return err
	}

	if err = r.run(ctx, opts.Args); err != nil {
		logFailure(ctx, "Launch failed", err)
		return err
	}

	return nil
}

// newRunner loads the configuration and builds the collaborators.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	home := opts.UserHome
	if home == nil {
		home = os.UserHomeDir
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	cfg, err := loadConfig(ctx, opts.ConfigPath, lookup, home)
	if err != nil {
		return nil, err
	}

	root, err := config.PackageRoot(cfg, home)
	if err != nil {
		return nil, fmt.Errorf("resolve package root: %w", err)
	}

	runtimeCfg := embedder.NewConfig(environ, cfg.JavaHome, cfg.JVMOptions)
	if len(runtimeCfg.Dropped) > 0 {
		logger.InfoKV(ctx, "Ignoring variables for the runtime", "variables", runtimeCfg.Dropped)
	}

	fetcher := remote.NewFetcher(
		remote.WithTimeout(cfg.DownloadTimeout),
		remote.WithMaxRedirects(cfg.MaxRedirects),
	)

	inst, err := installer.New(installer.Settings{
		ToolName:        cfg.ToolName,
		URLTemplate:     cfg.DownloadURLTemplate,
		Mirror:          cfg.Mirror,
		StripComponents: cfg.StripComponents,
		LockStaleAfter:  cfg.LockStaleAfter,
	}, fetcher)
	if err != nil {
		return nil, err
	}

	host := opts.Host
	if host == nil {
		host = embedder.NewJavaHost()
	}

	return &runner{
		cfg:        cfg,
		root:       root,
		runtimeCfg: runtimeCfg,
		oracle:     remote.NewOracle(cfg.LatestVersionURL, remote.WithTimeout(cfg.Timeout)),
		installer:  inst,
		host:       host,
	}, nil
}

// loadConfig reads the settings file, applies environment overrides and the log level.
func loadConfig(ctx context.Context, path string, lookup config.LookupFunc, home config.HomeFunc) (*config.Config, error) {
	if path == "" {
		var err error

		if path, err = config.Path(lookup, home); err != nil {
			return nil, fmt.Errorf("locate settings: %w", err)
		}
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if err = config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	logger.DebugKV(ctx, "Settings loaded", "path", path, "tool", cfg.ToolName)

	return cfg, nil
}

// run performs resolve, latest, install, re-resolve and invoke.
func (r *runner) run(ctx context.Context, args []string) error {
	local, err := r.highestInstalled(ctx)

	switch {
	case resolver.IsFirstRun(err):
		logger.InfoKV(ctx, "No installed version found", "root", r.root)
	case err != nil:
		return fmt.Errorf("resolve local version: %w", err)
	default:
		logger.DebugKV(ctx, "Local version", "version", local.String())
	}

	wanted, err := r.wantedVersion(ctx, local)
	if err != nil {
		return err
	}

	if _, err = r.installer.EnsureInstalled(ctx, r.root, wanted); err != nil {
		return fmt.Errorf("install %s: %w", wanted, err)
	}

	current, err := r.highestInstalled(ctx)
	if err != nil {
		return fmt.Errorf("resolve installed version: %w", err)
	}

	target := r.installer.Target(r.root, current)
	ep := embedder.EntryPoint{
		Class:     r.cfg.EntryClass,
		Method:    r.cfg.EntryMethod,
		Signature: r.cfg.EntrySignature,
	}

	logger.InfoKV(ctx, "Starting tool", "version", current.String(), "target", target)

	e := embedder.New(r.host, r.runtimeCfg.WithClasspath(filepath.Join(target, r.cfg.BootJar)))

	// Once started the tool owns the terminal, including its signals.
	return e.Invoke(context.WithoutCancel(ctx), ep, args)
}

// highestInstalled returns the highest version under the package root whose
// install completed.
func (r *runner) highestInstalled(ctx context.Context) (release.Version, error) {
	versions, err := r.installer.Completed(r.root)
	if err != nil {
		return release.Version{}, err
	}

	logger.DebugKV(ctx, "Installed versions", "root", r.root, "versions", release.Join(versions))

	highest, ok := release.Max(versions)
	if !ok {
		return release.Version{}, fmt.Errorf("%w in %s", resolver.ErrNoInstalledVersions, r.root)
	}

	return highest, nil
}

// wantedVersion asks the remote for the latest version unless the check is
// skipped or the remote fails and offline fallback allows the local version.
func (r *runner) wantedVersion(ctx context.Context, local release.Version) (release.Version, error) {
	if r.cfg.SkipUpdateCheck {
		if local.IsZero() {
			return release.Version{}, errNothingToRun
		}

		logger.InfoKV(ctx, "Update check skipped", "version", local.String())

		return local, nil
	}

	latest, err := r.oracle.Latest(ctx)
	if err == nil {
		logger.DebugKV(ctx, "Latest version", "version", latest.String())
		return latest, nil
	}

	if r.cfg.OfflineFallback && !local.IsZero() && ctx.Err() == nil {
		logger.WarnKV(ctx, "Unable to query latest version, running installed one",
			"version", local.String(), "error", err)

		return local, nil
	}

	return release.Version{}, fmt.Errorf("query latest version: %w", err)
}

// logFailure logs err once with its kind. A tool exit status is not a launcher failure.
func logFailure(ctx context.Context, message string, err error) {
	kind := Kind(err)
	if kind == KindTool {
		logger.DebugKV(ctx, "Tool exited", "error", err)
		return
	}

	if ctx.Err() != nil {
		kind = KindCanceled
	}

	logger.ErrorKV(ctx, message, "kind", kind, "error", err)
}
