package app

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// AppName is used in logs and the CLI.
const AppName = "rolebuttons"

// Version is set at build time with
// -ldflags "-X github.com/small-frappuccino/rolebuttons/pkg/app.Version=v1.2.3".
var Version = ""

// AppVersion returns Version, falling back to the module build info.
func AppVersion() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func formatStartupMessage(appName, version, goVersion string) string {
	appName = strings.TrimSpace(appName)
	version = strings.TrimSpace(version)
	goVersion = strings.TrimSpace(goVersion)

	msg := "Starting " + appName
	if version != "" {
		msg += " " + version
	}
	if goVersion != "" {
		msg += fmt.Sprintf(" (%s)", goVersion)
	}
	return msg + "..."
}
