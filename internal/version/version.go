package version

import (
	"fmt"
	"runtime/debug"
)

// APIVersion is the version of the HTTP API, clients
// announce the versions they support with Accept-Version.
const APIVersion = "1.0.0"

var (
	Version = "unknown"
	Commit  = "unknown"
)

var FullVersion = ""

func init() {
	if Version == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}

	FullVersion = fmt.Sprintf("%s-%s", Version, Commit)
}
