// Package version reports the build revision shown in the startup banner.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Unknown is reported when the binary carries no VCS stamp.
const Unknown = "Unknown"

// revision may be set at link time:
//
//	go build -ldflags "-X github.com/retrotk/rtk-go/pkg/version.revision=abc123"
var revision string

// Revision returns the build revision: the link-time value if set, else
// the VCS revision recorded by the Go toolchain, else Unknown. A "+dirty"
// suffix marks builds from a modified tree.
func Revision() string {
	if revision != "" {
		return revision
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Unknown
	}
	return fromSettings(info.Settings)
}

func fromSettings(settings []debug.BuildSetting) string {
	var rev string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return Unknown
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "+dirty"
	}
	return rev
}

// Banner returns the startup title for the named program.
func Banner(name string) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, " %s\n", name)
	fmt.Fprintf(&b, " revision: %s\n", Revision())
	b.WriteString(line + "\n")
	return b.String()
}
