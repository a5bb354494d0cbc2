// Package config defines launcher settings and provides helpers to load,
// validate and save them in YAML format.
//
// Settings come from an optional YAML file and are then overridden by
// environment variables such as ARTHAS_LIB_DIR. PackageRoot resolves the
// directory holding installed tool versions.
package config
