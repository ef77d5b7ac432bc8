// Package config defines build settings for the bundling pipeline and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the bundle identity, toolchain, asset locations and
// dependency lists. Defaults match the stock application layout, so running
// without a settings file is fully supported.
package config
