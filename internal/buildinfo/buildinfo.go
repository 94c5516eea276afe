// Package buildinfo carries version data stamped at link time, e.g.
//
//	go build -ldflags "-X routeopt/internal/buildinfo.Version=v1.2.0"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamped values. An empty Commit falls back to the VCS
// revision recorded by the Go toolchain.
func Info() map[string]string {
	commit := Commit
	goVersion := ""
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
		if commit == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	return map[string]string{
		"version":   Version,
		"commit":    commit,
		"builtAt":   BuiltAt,
		"goVersion": goVersion,
	}
}
