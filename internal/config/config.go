package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the build parameters for producing the application bundle.
type Config struct {
	// AppName is the bundle name; the output lands in <dist_dir>/<app_name>.app.
	AppName string `yaml:"app_name"`
	// BundleID is the macOS bundle identifier passed to the bundler.
	BundleID string `yaml:"bundle_id"`
	// EntryScript is the application entry point handed to the bundler.
	EntryScript string `yaml:"entry_script"`
	// Python is the interpreter executable resolved on PATH.
	Python string `yaml:"python"`
	// ModelName is the bundled model staged into the bundle resources.
	ModelName string `yaml:"model_name"`
	// ModelsDir is the directory holding one subdirectory per bundled model.
	ModelsDir string `yaml:"models_dir"`
	// SetupAssetsDir is an optional directory of first-run setup assets.
	// It is staged into the bundle only when present on disk.
	SetupAssetsDir string `yaml:"setup_assets_dir"`
	// IconScript generates the application icon; failures are tolerated.
	IconScript string `yaml:"icon_script"`
	// IconFile is the icon artifact the script is expected to produce.
	IconFile string `yaml:"icon_file"`
	// BuildDir and DistDir are wiped before every build.
	BuildDir string `yaml:"build_dir"`
	DistDir  string `yaml:"dist_dir"`
	// RequiredPackages are pip packages the build cannot proceed without.
	RequiredPackages []string `yaml:"required_packages"`
	// OptionalPackages are installed best-effort; failures only warn.
	OptionalPackages []string `yaml:"optional_packages"`
	// HiddenImports are modules the bundler cannot discover statically.
	HiddenImports []string `yaml:"hidden_imports"`
	// Timeout bounds every subprocess the pipeline launches.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for build settings.
	DefaultConfigFilename = "nexus-bundler.yaml"

	// DefaultTimeout bounds a single toolchain invocation. Dependency
	// installs and the bundler itself can legitimately run for minutes.
	DefaultTimeout = 30 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// ModelManifestFilename is the file that must exist inside the model
	// directory for the model to be considered stageable.
	ModelManifestFilename = "Modelfile"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errAppNameRequired is returned when the bundle name is missing.
	errAppNameRequired = errors.New("application name must be provided")
	// errEntryScriptRequired is returned when no entry point is configured.
	errEntryScriptRequired = errors.New("entry script must be provided")
)

// Default returns the configuration matching the stock application layout.
// Every field can be overridden through the YAML settings file.
func Default() *Config {
	return &Config{
		AppName:        "NexusPro",
		BundleID:       "com.nexuspro.desktop",
		EntryScript:    "nexus_pro_mac.py",
		Python:         "python3",
		ModelName:      "qwen2.5-coder:7b",
		ModelsDir:      "bundled_models",
		SetupAssetsDir: "ollama_setup_assets",
		IconScript:     "create_icon.py",
		IconFile:       "app_icon.icns",
		BuildDir:       "build",
		DistDir:        "dist",
		RequiredPackages: []string{
			"pyinstaller",
			"flask",
			"requests",
			"pywebview",
		},
		OptionalPackages: []string{
			"pyobjc-framework-Cocoa",
			"pyobjc-framework-WebKit",
		},
		HiddenImports: []string{
			"webview",
			"webview.platforms.cocoa",
			"flask",
			"requests",
		},
		Timeout: DefaultTimeout,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: the stock defaults are returned, because the
// tool is expected to run unconfigured from the application source directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults for optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.AppName == "" {
		return errAppNameRequired
	}

	if cfg.EntryScript == "" {
		return errEntryScriptRequired
	}

	if cfg.Python == "" {
		cfg.Python = "python3"
	}

	if cfg.BuildDir == "" {
		cfg.BuildDir = "build"
	}

	if cfg.DistDir == "" {
		cfg.DistDir = "dist"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}

// ModelDir returns the directory holding the staged model's files.
func (c *Config) ModelDir() string {
	return filepath.Join(c.ModelsDir, c.ModelName)
}

// ModelManifest returns the path of the model manifest that must exist
// before a build is attempted.
func (c *Config) ModelManifest() string {
	return filepath.Join(c.ModelDir(), ModelManifestFilename)
}

// BundlePath returns the relative path of the expected bundler output.
func (c *Config) BundlePath() string {
	return filepath.Join(c.DistDir, c.AppName+".app")
}
