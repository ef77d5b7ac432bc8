package bundler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexuspro/nexus-bundler/internal/config"
	"github.com/nexuspro/nexus-bundler/internal/logger"
	"github.com/nexuspro/nexus-bundler/internal/service/manifest"
	"github.com/nexuspro/nexus-bundler/internal/toolchain"
)

var (
	errBuildAlreadyRunning = errors.New("another build is already running")
	errModelDirMissing     = errors.New("bundled model directory not found")
	errModelfileMissing    = errors.New("model manifest not found")
	errEntryScriptMissing  = errors.New("entry script not found")
	errBundleMissing       = errors.New("expected bundle was not produced")
)

// Options are inputs accepted by the bundler entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// pipeline holds the state for a single build execution.
// It is intentionally unexported—call Run(ctx, Options) from callers.
type pipeline struct {
	cfg       *config.Config    // Build configuration loaded from YAML (or defaults).
	tools     toolchain.Runner  // Subprocess runner, replaceable in tests.
	python    *toolchain.Python // Resolved interpreter, set by checkPreconditions.
	iconReady bool              // Whether the icon phase produced a usable icon.
	bundleAbs string            // Absolute path of the verified bundle.
}

// Run executes the bundling workflow and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "nexus-bundler")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	p := newPipeline(cfg, toolchain.NewExecRunner())

	if IsBuildRunningNow(ctx) {
		return errBuildAlreadyRunning
	}

	buildMarker, err := os.Create(MarkerFilename)
	if err != nil {
		return fmt.Errorf("create build marker: %w", err)
	}

	if err = buildMarker.Close(); err != nil {
		return fmt.Errorf("close build marker: %w", err)
	}

	defer func() {
		_ = os.Remove(MarkerFilename)
	}()

	if err = p.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Build failed", "error", err)
		return err
	}

	logger.InfoKV(ctx, "Build completed successfully", "bundle", p.bundleAbs)

	return nil
}

// newPipeline creates a pipeline with the provided configuration and runner.
func newPipeline(cfg *config.Config, tools toolchain.Runner) *pipeline {
	return &pipeline{
		cfg:   cfg,
		tools: tools,
	}
}

// Run executes the phases of this pipeline instance in order:
// 1) Verify the interpreter and the bundled assets.
// 2) Install Python dependencies.
// 3) Generate the application icon (best effort).
// 4) Remove prior build output.
// 5) Invoke the bundler.
// 6) Verify the produced bundle.
// 7) Write the build manifest (advisory).
func (p *pipeline) Run(ctx context.Context) error {
	logger.Info(ctx, "Verifying build preconditions")

	if err := p.checkPreconditions(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Installing Python dependencies")

	if err := p.installDependencies(ctx); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}

	logger.Info(ctx, "Generating application icon")

	p.generateIcon(ctx)

	logger.Info(ctx, "Removing previous build output")

	if err := p.cleanOutputs(ctx); err != nil {
		return fmt.Errorf("clean build output: %w", err)
	}

	logger.Info(ctx, "Invoking bundler")

	if err := p.runBundler(ctx); err != nil {
		return fmt.Errorf("bundler: %w", err)
	}

	logger.Info(ctx, "Verifying bundler output")

	if err := p.verifyOutput(ctx); err != nil {
		return err
	}

	p.writeManifest(ctx)

	return nil
}

// checkPreconditions resolves the interpreter and verifies the bundled
// assets exist. All failures here are fatal misconfigurations.
func (p *pipeline) checkPreconditions(ctx context.Context) error {
	python, err := toolchain.FindPython(p.tools, p.cfg.Python)
	if err != nil {
		return err
	}

	p.python = python
	logger.InfoKV(ctx, "Resolved interpreter", "path", python.Path())

	if _, err = os.Stat(p.cfg.EntryScript); err != nil {
		return fmt.Errorf("%w: %s", errEntryScriptMissing, p.cfg.EntryScript)
	}

	modelDir := p.cfg.ModelDir()

	info, err := os.Stat(modelDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", errModelDirMissing, modelDir)
	}

	modelManifest := p.cfg.ModelManifest()
	if _, err = os.Stat(modelManifest); err != nil {
		return fmt.Errorf("%w: %s", errModelfileMissing, modelManifest)
	}

	logger.InfoKV(ctx, "Bundled model present", "model", p.cfg.ModelName, "dir", modelDir)

	return nil
}

// installDependencies upgrades pip and installs the required package set.
// The optional set is installed best-effort: a failure there is logged and
// deferred to runtime instead of failing the build.
func (p *pipeline) installDependencies(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.python.UpgradePip(runCtx); err != nil {
		return fmt.Errorf("upgrade pip: %w", err)
	}

	if err := p.python.PipInstall(runCtx, p.cfg.RequiredPackages...); err != nil {
		return fmt.Errorf("install required packages: %w", err)
	}

	if len(p.cfg.OptionalPackages) == 0 {
		return nil
	}

	if err := p.python.PipInstall(runCtx, p.cfg.OptionalPackages...); err != nil {
		logger.WarnKV(ctx, "Optional packages failed to install, continuing",
			"packages", p.cfg.OptionalPackages, "error", err)
	}

	return nil
}

// generateIcon runs the icon script and checks for its expected output.
// This is the only soft-fail branch: a missing or failing icon step only
// costs the bundle its icon.
func (p *pipeline) generateIcon(ctx context.Context) {
	if p.cfg.IconScript == "" || p.cfg.IconFile == "" {
		logger.Info(ctx, "No icon script configured, building without icon")
		return
	}

	if _, err := os.Stat(p.cfg.IconScript); err != nil {
		logger.WarnKV(ctx, "Icon script not found, building without icon", "script", p.cfg.IconScript)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.python.RunScript(runCtx, p.cfg.IconScript); err != nil {
		logger.WarnKV(ctx, "Icon generation failed, building without icon", "error", err)
		return
	}

	if _, err := os.Stat(p.cfg.IconFile); err != nil {
		logger.WarnKV(ctx, "Icon script produced no icon, building without icon", "expected", p.cfg.IconFile)
		return
	}

	p.iconReady = true
	logger.InfoKV(ctx, "Icon ready", "path", p.cfg.IconFile)
}

// cleanOutputs removes prior build artifacts so stale files never leak
// into the new bundle. Removal is idempotent.
func (p *pipeline) cleanOutputs(ctx context.Context) error {
	for _, dir := range []string{p.cfg.BuildDir, p.cfg.DistDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}

	// The bundler regenerates its spec file; a stale one overrides flags.
	specFile := p.cfg.AppName + ".spec"
	if err := os.Remove(specFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", specFile, err)
	}

	logger.InfoKV(ctx, "Cleaned output directories", "dirs", []string{p.cfg.BuildDir, p.cfg.DistDir})

	return nil
}

// runBundler assembles the flag list and invokes the bundler once.
// A non-zero exit aborts the build before verification.
func (p *pipeline) runBundler(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	return p.python.RunModule(runCtx, "PyInstaller", p.bundlerArgs()...)
}

// bundlerArgs builds the PyInstaller argument list: identity metadata,
// hidden-import hints and data-inclusion directives. The setup-assets
// directive is emitted only when the directory exists, and the icon flag
// only when the icon phase succeeded.
func (p *pipeline) bundlerArgs() []string {
	cfg := p.cfg

	args := []string{
		"--noconfirm",
		"--clean",
		"--windowed",
		"--name", cfg.AppName,
		"--osx-bundle-identifier", cfg.BundleID,
		"--distpath", cfg.DistDir,
		"--workpath", cfg.BuildDir,
	}

	for _, imp := range cfg.HiddenImports {
		args = append(args, "--hidden-import", imp)
	}

	args = append(args, "--add-data", cfg.ModelDir()+":"+filepath.Join(cfg.ModelsDir, cfg.ModelName))

	if info, err := os.Stat(cfg.SetupAssetsDir); err == nil && info.IsDir() {
		args = append(args, "--add-data", cfg.SetupAssetsDir+":"+cfg.SetupAssetsDir)
	}

	if p.iconReady {
		args = append(args, "--icon", cfg.IconFile)
	}

	return append(args, cfg.EntryScript)
}

// verifyOutput checks the expected bundle exists and records its absolute path.
func (p *pipeline) verifyOutput(ctx context.Context) error {
	bundlePath := p.cfg.BundlePath()

	if _, err := os.Stat(bundlePath); err != nil {
		return fmt.Errorf("%w: %s", errBundleMissing, bundlePath)
	}

	absolutePath, err := filepath.Abs(bundlePath)
	if err != nil {
		return fmt.Errorf("resolve bundle path: %w", err)
	}

	p.bundleAbs = absolutePath
	logger.InfoKV(ctx, "Bundle verified", "path", absolutePath)

	return nil
}

// writeManifest records checksums of the staged inputs next to the bundle.
// The manifest is advisory metadata; failing to write it only warns.
func (p *pipeline) writeManifest(ctx context.Context) {
	desc, err := manifest.Build(p.cfg, p.bundleAbs)
	if err != nil {
		logger.WarnKV(ctx, "Unable to assemble build manifest", "error", err)
		return
	}

	if err = manifest.Save(manifest.Filename, desc); err != nil {
		logger.WarnKV(ctx, "Unable to write build manifest", "error", err)
		return
	}

	logger.InfoKV(ctx, "Build manifest written", "path", manifest.Filename, "files", len(desc.Files))
}
