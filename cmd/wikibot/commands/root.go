package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wikibot",
	Short: "wikibot - publishes wiki contributions from issues and pull requests",
	Long: `wikibot turns "[Contribute]" issues into wiki articles and merges pull
requests that only touch articles.

It runs once per webhook event, typically from a GitHub Actions workflow.
All content changes are serialized by a lock stored in issue #1 (or Redis),
which the site rebuild releases with "wikibot lock release".`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	// Errors are printed by the printer package.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./wikibot.yml if present)")
}
