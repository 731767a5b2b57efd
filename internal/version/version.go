// Package version reports the build version of juno.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/juno"

// buildVersion is set via -ldflags "-X pkt.systems/juno/internal/version.buildVersion=...".
var buildVersion = ""

var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Module    string
	Version   string
	Revision  string
	Modified  bool
	GoVersion string
}

// Read collects build information for the running binary.
func Read() Info {
	out := Info{Module: defaultModule, GoVersion: runtime.Version()}
	info, ok := readBuildInfo()
	if ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.modified":
				out.Modified = setting.Value == "true"
			}
		}
	}
	out.Version = resolve(info, ok)
	return out
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

func (i Info) String() string {
	var extra []string
	if rev := shortRevision(i.Revision); rev != "" {
		if i.Modified {
			rev += "+dirty"
		}
		extra = append(extra, rev)
	}
	if i.GoVersion != "" {
		extra = append(extra, i.GoVersion)
	}
	if len(extra) == 0 {
		return fmt.Sprintf("%s %s", i.Module, i.Version)
	}
	return fmt.Sprintf("%s %s (%s)", i.Module, i.Version, strings.Join(extra, ", "))
}

func resolve(info *debug.BuildInfo, ok bool) string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	if ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		if v := pseudoFromBuildInfo(info); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func pseudoFromBuildInfo(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	var revision, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}
	if revision == "" || vcsTime == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return ""
	}
	return "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + shortRevision(revision)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
