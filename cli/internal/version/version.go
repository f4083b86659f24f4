// Package version reports build information for the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/satishbabariya/schemadelta/cli/internal/version.Version=...".
var (
	// Version is recorded in the history table with every applied migration.
	Version   = "0.1.0"
	BuildDate = ""
	GitCommit = ""
)

// Providers lists the databases this build can migrate.
var Providers = []string{"postgres", "mysql", "sqlite"}

// Info describes the running binary.
type Info struct {
	Version   string
	BuildDate string
	GitCommit string
	Modified  bool
	GoVersion string
	Platform  string
	Providers []string
}

// Get returns the build information, falling back to the VCS stamp the Go
// toolchain embeds when the linker flags were not set.
func Get() Info {
	info := Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Providers: Providers,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fromBuildSettings(bi.Settings)
	}
	return info
}

func (i *Info) fromBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == "" {
				i.GitCommit = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

func (i Info) String() string {
	return fmt.Sprintf("schemadelta %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString is the multi-line form printed by "schemadelta version".
func (i Info) FullString() string {
	commit := orUnknown(i.GitCommit)
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += " (modified)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "schemadelta %s\n", i.Version)
	fmt.Fprintf(&b, "  commit:    %s\n", commit)
	fmt.Fprintf(&b, "  built:     %s\n", orUnknown(i.BuildDate))
	fmt.Fprintf(&b, "  go:        %s %s\n", i.GoVersion, i.Platform)
	fmt.Fprintf(&b, "  providers: %s", strings.Join(i.Providers, ", "))
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
