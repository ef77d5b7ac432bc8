package manifest

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexuspro/nexus-bundler/internal/config"
	"github.com/nexuspro/nexus-bundler/internal/version"

	// Ensure SHA512 is available for checksum calculation.
	_ "crypto/sha512"
)

var errHashUnavailable = errors.New("hash function unavailable")

const (
	// Filename is where the build manifest is written after a verified build.
	Filename = "nexus-bundler-manifest.yaml"

	// DefaultFileMode is used for the produced manifest.
	DefaultFileMode os.FileMode = 0o644

	// DefaultChecksumFunction is used to calculate staged-input hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// defaultMapCapacity is the default initial capacity for the file map.
	defaultMapCapacity = 16
)

// Description records what went into a build and where the bundle landed.
type Description struct {
	// VersionNumber is the tool version that produced the bundle.
	VersionNumber string `yaml:"version"`
	// BundlePath is the absolute path of the verified bundle.
	BundlePath string `yaml:"bundle_path"`
	// BuiltAt is the UTC completion timestamp.
	BuiltAt time.Time `yaml:"built_at"`
	// BuiltBy identifies the machine and user that produced the bundle.
	BuiltBy *Builder `yaml:"built_by,omitempty"`
	// Files maps staged input paths to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// Builder identifies who produced a bundle, for release audit trails.
type Builder struct {
	// Hostname of the build machine.
	Hostname string `yaml:"hostname"`
	// Username of the invoking user.
	Username string `yaml:"username"`
}

// New produces a Description initialized with defaults.
// Builder detection is best-effort; an anonymous manifest is still valid.
func New() *Description {
	return &Description{
		VersionNumber: version.Short(),
		BuiltAt:       time.Now().UTC(),
		BuiltBy:       detectBuilder(),
		Files:         make(map[string]string, defaultMapCapacity),
	}
}

// detectBuilder gathers host and user information for the audit trail.
func detectBuilder() *Builder {
	hostname, err := os.Hostname()
	if err != nil {
		return nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil
	}

	return &Builder{
		Hostname: hostname,
		Username: currentUser.Username,
	}
}

// Build assembles a Description covering the entry script and every file
// under the staged model directory.
func Build(cfg *config.Config, bundlePath string) (*Description, error) {
	desc := New()
	desc.BundlePath = bundlePath

	if err := desc.addFile(cfg.EntryScript); err != nil {
		return nil, err
	}

	modelDir := cfg.ModelDir()

	err := filepath.WalkDir(modelDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		return desc.addFile(path)
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", modelDir, err)
	}

	return desc, nil
}

// Save writes the manifest to the provided path.
func Save(path string, desc *Description) error {
	contents, err := yaml.Marshal(desc)
	if err != nil {
		return err
	}

	return os.WriteFile(path, contents, DefaultFileMode)
}

// addFile records the checksum of a single file.
func (d *Description) addFile(path string) error {
	checksum, err := FileChecksum(path)
	if err != nil {
		return err
	}

	d.Files[path] = base64.StdEncoding.EncodeToString(checksum)

	return nil
}

// FileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func FileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
