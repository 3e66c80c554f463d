// LinkMesh - CLI client for the internal linking analysis engine.
package main

import (
	"github.com/linkmesh/linkmesh/internal/cli"
	"github.com/linkmesh/linkmesh/internal/version"
)

// Version information, overridable via LDFLAGS.
var (
	Version   = "v1.0.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime
	cli.Version = Version
	cli.BuildTime = BuildTime

	cli.Execute()
}
