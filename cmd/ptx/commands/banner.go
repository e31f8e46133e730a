package commands

import (
	"fmt"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/version"
)

// printStartupBanner prints the server startup summary
func printStartupBanner(verbosity int, dbPath string, port int, cfg *am.Config) {
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╔═══════════════════════════════════╗\n")
	fmt.Printf("   ║    ██████  ████████ ██   ██       ║\n")
	fmt.Printf("   ║    ██   ██    ██     ██ ██        ║\n")
	fmt.Printf("   ║    ██████     ██      ███         ║\n")
	fmt.Printf("   ║    ██         ██     ██ ██        ║\n")
	fmt.Printf("   ║    ██         ██    ██   ██       ║\n")
	fmt.Printf("   ║                                   ║\n")
	fmt.Printf("   ║    prompt template explorer       ║\n")
	fmt.Printf("   ╚═══════════════════════════════════╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ PTX Info ──────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, versionInfo.Version, versionInfo.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, versionInfo.BuildTime)
	fmt.Printf("%s│%s Log level: %s\n", green, reset, logger.VerbosityToLevel(verbosity))
	fmt.Printf("%s│%s Database:  %s\n", green, reset, dbPath)
	fmt.Printf("%s│%s Model:     %s %s\n", green, reset, cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("%s│%s Workers:   %d\n", green, reset, cfg.Jobs.Workers)
	fmt.Printf("%s│%s Sink:      %s\n", green, reset, cfg.Sink.Type)
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s➜ http://localhost:%d%s (a nearby port is used if taken)\n", yellow, bold, port, reset)
	fmt.Printf("%sPress Ctrl+C to stop%s\n\n", blue, reset)
}
