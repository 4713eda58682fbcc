// Package version reports the meshflow build.
//
// Version, commit, branch and build time are stamped at link time:
//
//	go build -ldflags "-X github.com/kbukum/meshflow/version.Version=0.4.0"
//
// Unstamped builds fall back to the VCS settings the Go toolchain records.
package version
