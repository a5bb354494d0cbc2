package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/arthas-launcher/internal/config"
	"github.com/oshokin/arthas-launcher/internal/domain/release"
	"github.com/oshokin/arthas-launcher/internal/service/embedder"
	"github.com/oshokin/arthas-launcher/internal/service/launcher"
	"github.com/oshokin/arthas-launcher/internal/service/resolver"
)

// fakeJava records its arguments and environment, then exits with $FAKE_EXIT.
const fakeJava = `#!/bin/sh
printf '%s\n' "$@" > "$FAKE_OUT"
echo "jto=${JAVA_TOOL_OPTIONS:-unset}" >> "$FAKE_OUT"
exit "${FAKE_EXIT:-0}"
`

// publisher serves the latest version and zip archives like the public site.
type publisher struct {
	server    *httptest.Server
	downloads atomic.Int32
}

func mustVersion(t *testing.T, s string) release.Version {
	t.Helper()

	v, err := release.Parse(s)
	require.NoError(t, err)

	return v
}

func newPublisher(t *testing.T, latest string) *publisher {
	t.Helper()

	p := &publisher{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/latest_version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, latest)
	})

	// The real site redirects to the mirror before serving the archive.
	mux.HandleFunc("/download/{version}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/mirror/"+r.URL.Query().Get("mirror")+"/"+r.PathValue("version")+".zip", http.StatusFound)
	})

	mux.HandleFunc("/mirror/{mirror}/{file}", func(w http.ResponseWriter, r *http.Request) {
		p.downloads.Add(1)

		v := strings.TrimSuffix(r.PathValue("file"), ".zip")
		_, _ = w.Write(zipArchive(t, v))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	return p
}

func zipArchive(t *testing.T, v string) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, name := range []string{"arthas-boot.jar", "arthas-core.jar", "lib/libArthasJniLibrary.so"} {
		w, err := zw.Create("arthas-bin-" + v + "/" + name)
		require.NoError(t, err)

		_, err = io.WriteString(w, name+" "+v)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// setup writes a settings file and a fake JVM and returns the launch options
// together with the package root and the file the fake JVM writes to.
func setup(t *testing.T, p *publisher, exitCode int) (*launcher.Options, string, string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake JVM is a POSIX shell script")
	}

	dir := t.TempDir()
	root := filepath.Join(dir, "home", ".arthas", "lib")
	out := filepath.Join(dir, "java.out")

	javaHome := filepath.Join(dir, "jdk")
	require.NoError(t, os.MkdirAll(filepath.Join(javaHome, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(javaHome, "bin", "java"), []byte(fakeJava), 0o755))

	cfg := config.Default()
	cfg.LibDir = root
	cfg.LatestVersionURL = p.server.URL + "/api/latest_version"
	cfg.DownloadURLTemplate = p.server.URL + "/download/{version}?mirror={mirror}"
	cfg.JavaHome = javaHome
	cfg.LogLevel = "error"

	cfgPath := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Validate(cfg))

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o600))

	return &launcher.Options{
		ConfigPath: cfgPath,
		Environ: []string{
			"PATH=" + os.Getenv("PATH"),
			"FAKE_OUT=" + out,
			"FAKE_EXIT=" + fmt.Sprint(exitCode),
			"JAVA_TOOL_OPTIONS=-javaagent:/tmp/agent.jar",
		},
		LookupEnv: func(string) (string, bool) { return "", false },
		UserHome:  func() (string, error) { return dir, nil },
		Host:      embedder.NewJavaHost(embedder.WithStdio(nil, io.Discard, io.Discard)),
	}, root, out
}

// TestLauncher_FirstRun installs the latest version into an empty root and
// starts the JVM with the forwarded arguments.
func TestLauncher_FirstRun(t *testing.T) {
	t.Parallel()

	p := newPublisher(t, "3.7.2")
	opts, root, out := setup(t, p, 0)
	opts.Args = []string{"--target-ip", "0.0.0.0", "4242"}

	require.NoError(t, launcher.Run(context.Background(), opts))

	v, err := resolver.Resolve(root)
	require.NoError(t, err)
	require.Equal(t, mustVersion(t, "3.7.2"), v)
	require.EqualValues(t, 1, p.downloads.Load())

	target := filepath.Join(root, "3.7.2", "arthas")
	require.FileExists(t, filepath.Join(target, "arthas-core.jar"))
	require.FileExists(t, filepath.Join(target, "lib", "libArthasJniLibrary.so"))

	recorded, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, []string{
		"-cp", filepath.Join(target, "arthas-boot.jar"),
		"com.taobao.arthas.boot.Bootstrap",
		"--target-ip", "0.0.0.0", "4242",
		"jto=unset",
	}, strings.Split(strings.TrimSpace(string(recorded)), "\n"))
}

// TestLauncher_SecondRunIsOffline reuses the install without downloading again.
func TestLauncher_SecondRunIsOffline(t *testing.T) {
	t.Parallel()

	p := newPublisher(t, "3.7.2")
	opts, root, _ := setup(t, p, 0)

	require.NoError(t, launcher.Run(context.Background(), opts))
	require.NoError(t, launcher.Run(context.Background(), opts))
	require.EqualValues(t, 1, p.downloads.Load())

	versions, err := resolver.Installed(root)
	require.NoError(t, err)
	require.Equal(t, "3.7.2", release.Join(versions))
}

// TestLauncher_ToolExitCode surfaces the JVM's exit status.
func TestLauncher_ToolExitCode(t *testing.T) {
	t.Parallel()

	p := newPublisher(t, "3.7.2")
	opts, _, _ := setup(t, p, 3)

	err := launcher.Run(context.Background(), opts)

	var exitErr *embedder.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.Code)
}

// TestLauncher_ConcurrentFirstRuns lets two launchers race on one root; the
// install lock makes exactly one of them download.
func TestLauncher_ConcurrentFirstRuns(t *testing.T) {
	t.Parallel()

	p := newPublisher(t, "3.7.2")
	opts, root, _ := setup(t, p, 0)

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			runOpts := *opts
			runOpts.Host = embedder.NewJavaHost(embedder.WithStdio(nil, io.Discard, io.Discard))
			errs[i] = launcher.Run(context.Background(), &runOpts)
		}()
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, p.downloads.Load())
	require.DirExists(t, filepath.Join(root, "3.7.2", "arthas"))
	require.NoFileExists(t, root+".lock")
}
