// Package version holds build-time version information, injected via
// -ldflags at build time. Version defaults to "dev" for local builds.
package version

var Version = "dev"
