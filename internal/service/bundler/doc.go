// Package bundler implements the build pipeline that turns the application
// source tree into a macOS .app bundle.
//
// The pipeline is strictly linear: precondition checks, dependency
// installation, icon generation, output cleanup, one bundler invocation and
// output verification. Icon generation and the optional dependency group are
// the only best-effort steps; everything else fails the build. A marker file
// guards against concurrent builds sharing the same output directories.
package bundler
