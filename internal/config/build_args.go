package config

import "fmt"

// ModuleName is the service identifier used in logs and the CLI
const ModuleName = "go-hardware-signer"

// build arguments, injected via -ldflags at compile time
var (
	Commit    = "local"
	BuildDate = "unknown"
)

// GetFormattedBuildArgs returns "<module> @ <commit> (<build date>)"
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
