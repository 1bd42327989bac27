package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/wikibot/cmd/wikibot/commands"
	"github.com/dyluth/wikibot/internal/fault"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()

	// Errors are printed by the commands; the exit code tells the workflow
	// whether a re-run can help (1), the input is bad (2) or the lock timed out (3).
	os.Exit(fault.ExitCode(err))
}
