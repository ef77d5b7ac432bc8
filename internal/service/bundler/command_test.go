package bundler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexuspro/nexus-bundler/internal/config"
)

// fakeRunner satisfies toolchain.Runner and lets tests script command outcomes.
type fakeRunner struct {
	calls   [][]string
	lookErr error
	onRun   func(name string, args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))

	if f.onRun != nil {
		return f.onRun(name, args)
	}

	return nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookErr != nil {
		return "", f.lookErr
	}

	return "/usr/bin/" + name, nil
}

// isBundlerCall reports whether a recorded invocation is the PyInstaller run.
func isBundlerCall(call []string) bool {
	for _, arg := range call {
		if arg == "PyInstaller" {
			return true
		}
	}

	return false
}

// stage creates the minimal source tree the pipeline expects.
func stage(t *testing.T, cfg *config.Config) {
	t.Helper()

	require.NoError(t, os.WriteFile(cfg.EntryScript, []byte("print('hi')\n"), 0o600))
	require.NoError(t, os.MkdirAll(cfg.ModelDir(), 0o755))
	require.NoError(t, os.WriteFile(cfg.ModelManifest(), []byte("FROM model.gguf\n"), 0o600))
}

// TestPipeline_MissingInterpreterIsFatal stops before touching anything else.
func TestPipeline_MissingInterpreterIsFatal(t *testing.T) {
	chdir(t, t.TempDir())

	runner := &fakeRunner{lookErr: errors.New("not found")}
	p := newPipeline(config.Default(), runner)

	err := p.Run(context.Background())
	require.Error(t, err)
	require.Empty(t, runner.calls)
}

// TestPipeline_MissingModelDirIsFatal verifies the diagnostic names the path
// and that the bundler is never invoked.
func TestPipeline_MissingModelDirIsFatal(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	require.NoError(t, os.WriteFile(cfg.EntryScript, []byte(""), 0o600))

	runner := &fakeRunner{}
	p := newPipeline(cfg, runner)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, errModelDirMissing)
	require.Contains(t, err.Error(), cfg.ModelDir())

	for _, call := range runner.calls {
		require.False(t, isBundlerCall(call))
	}
}

// TestPipeline_MissingModelfileIsFatal covers a model dir without its manifest.
func TestPipeline_MissingModelfileIsFatal(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	require.NoError(t, os.WriteFile(cfg.EntryScript, []byte(""), 0o600))
	require.NoError(t, os.MkdirAll(cfg.ModelDir(), 0o755))

	p := newPipeline(cfg, &fakeRunner{})

	err := p.Run(context.Background())
	require.ErrorIs(t, err, errModelfileMissing)
	require.Contains(t, err.Error(), cfg.ModelManifest())
}

// TestPipeline_SuccessWithoutIcon runs the pipeline end to end with a fake
// toolchain. The icon script is absent, so no icon flag reaches the bundler.
func TestPipeline_SuccessWithoutIcon(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	stage(t, cfg)

	runner := &fakeRunner{}
	runner.onRun = func(_ string, args []string) error {
		if isBundlerCall(args) {
			return os.MkdirAll(cfg.BundlePath(), 0o755)
		}

		return nil
	}

	p := newPipeline(cfg, runner)
	require.NoError(t, p.Run(context.Background()))

	// Bundle path is resolved to an absolute location.
	require.True(t, filepath.IsAbs(p.bundleAbs))
	require.True(t, strings.HasSuffix(p.bundleAbs, cfg.AppName+".app"))

	// The bundler was invoked exactly once and without an icon flag.
	var bundlerCalls [][]string

	for _, call := range runner.calls {
		if isBundlerCall(call) {
			bundlerCalls = append(bundlerCalls, call)
		}
	}

	require.Len(t, bundlerCalls, 1)
	require.NotContains(t, bundlerCalls[0], "--icon")

	// A manifest was written for the verified build.
	_, err := os.Stat("nexus-bundler-manifest.yaml")
	require.NoError(t, err)
}

// TestPipeline_IconFailureIsSoft keeps the build green when icon generation fails.
func TestPipeline_IconFailureIsSoft(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	stage(t, cfg)
	require.NoError(t, os.WriteFile(cfg.IconScript, []byte("raise SystemExit(1)\n"), 0o600))

	runner := &fakeRunner{}
	runner.onRun = func(_ string, args []string) error {
		switch {
		case len(args) > 0 && args[0] == cfg.IconScript:
			return errors.New("exit status 1")
		case isBundlerCall(args):
			return os.MkdirAll(cfg.BundlePath(), 0o755)
		}

		return nil
	}

	p := newPipeline(cfg, runner)
	require.NoError(t, p.Run(context.Background()))
	require.False(t, p.iconReady)
}

// TestPipeline_IconSuccessAddsFlag passes the icon to the bundler when produced.
func TestPipeline_IconSuccessAddsFlag(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	stage(t, cfg)
	require.NoError(t, os.WriteFile(cfg.IconScript, []byte("pass\n"), 0o600))

	runner := &fakeRunner{}
	runner.onRun = func(_ string, args []string) error {
		switch {
		case len(args) > 0 && args[0] == cfg.IconScript:
			return os.WriteFile(cfg.IconFile, []byte("icns"), 0o600)
		case isBundlerCall(args):
			return os.MkdirAll(cfg.BundlePath(), 0o755)
		}

		return nil
	}

	p := newPipeline(cfg, runner)
	require.NoError(t, p.Run(context.Background()))
	require.True(t, p.iconReady)

	last := runner.calls[len(runner.calls)-1]
	require.Contains(t, last, "--icon")
	require.Contains(t, last, cfg.IconFile)
}

// TestPipeline_BundlerFailureAborts stops before verification on a non-zero exit.
func TestPipeline_BundlerFailureAborts(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	stage(t, cfg)

	wantErr := errors.New("exit status 1")
	runner := &fakeRunner{}
	runner.onRun = func(_ string, args []string) error {
		if isBundlerCall(args) {
			return wantErr
		}

		return nil
	}

	p := newPipeline(cfg, runner)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, wantErr)

	// No bundle was verified and no manifest written.
	require.Empty(t, p.bundleAbs)

	_, err = os.Stat("nexus-bundler-manifest.yaml")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestPipeline_MissingBundleFailsVerification covers a bundler that exits zero
// without producing the expected output.
func TestPipeline_MissingBundleFailsVerification(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	stage(t, cfg)

	p := newPipeline(cfg, &fakeRunner{})

	err := p.Run(context.Background())
	require.ErrorIs(t, err, errBundleMissing)
	require.Contains(t, err.Error(), cfg.BundlePath())
}

// TestPipeline_CleanIsIdempotent wipes stale artifacts on every run.
func TestPipeline_CleanIsIdempotent(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	stage(t, cfg)

	// Stale artifacts from a previous run.
	stale := filepath.Join(cfg.DistDir, "leftover.txt")
	require.NoError(t, os.MkdirAll(cfg.BuildDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.DistDir, 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))
	require.NoError(t, os.WriteFile(cfg.AppName+".spec", []byte("old spec"), 0o600))

	p := newPipeline(cfg, &fakeRunner{})
	ctx := context.Background()

	require.NoError(t, p.cleanOutputs(ctx))
	require.NoError(t, p.cleanOutputs(ctx))

	_, err := os.Stat(stale)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(cfg.AppName + ".spec")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestBundlerArgs_SetupAssetsConditional includes the assets directive only
// when the optional directory exists.
func TestBundlerArgs_SetupAssetsConditional(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := config.Default()
	p := newPipeline(cfg, &fakeRunner{})

	args := p.bundlerArgs()
	require.NotContains(t, args, cfg.SetupAssetsDir+":"+cfg.SetupAssetsDir)

	require.NoError(t, os.MkdirAll(cfg.SetupAssetsDir, 0o755))

	args = p.bundlerArgs()
	require.Contains(t, args, cfg.SetupAssetsDir+":"+cfg.SetupAssetsDir)

	// Identity and mode flags are always present; entry script comes last.
	require.Contains(t, args, "--windowed")
	require.Contains(t, args, cfg.BundleID)
	require.Equal(t, cfg.EntryScript, args[len(args)-1])
}

// chdir switches the working directory for the test's duration and restores
// the previous one on cleanup. Stand-in for testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(prev))
	})
}
