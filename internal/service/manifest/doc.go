// Package manifest records the inputs of a verified build.
//
// After the bundle is verified, a YAML manifest is written next to it with
// the tool version, the bundle's absolute path and SHA-512 checksums of the
// entry script and staged model files. The manifest is advisory: it lets a
// release be audited against the exact assets that were packaged.
package manifest
