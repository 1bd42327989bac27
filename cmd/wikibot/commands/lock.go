package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/wikibot/internal/config"
	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/hosting"
	"github.com/dyluth/wikibot/internal/printer"
	"github.com/dyluth/wikibot/pkg/lockcell"
)

var (
	lockRepo         string
	lockIfHolder     string
	lockOutputFormat string
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or release the contribution lock",
	Long: `Inspect or release the lock that serializes content changes.

The bot never releases the lock itself. The site rebuild calls
"wikibot lock release" once the published content has been picked up.`,
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current lock holder",
	RunE:  runLockStatus,
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Clear the lock",
	Long: `Clear the lock so the next waiting bot run can proceed.

Examples:
  # Unconditional release after the site rebuild
  wikibot lock release --repo baipiao-bot/wiki

  # Only release if run 1658821493 still holds it
  wikibot lock release --if-holder 1658821493`,
	RunE: runLockRelease,
}

var lockWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream lock claims and releases (redis backend)",
	Long: `Stream lock claim and release events as they happen.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing`,
	RunE: runLockWatch,
}

func init() {
	lockCmd.PersistentFlags().StringVarP(&lockRepo, "repo", "r", "", "Repository as owner/name (default: $GITHUB_REPOSITORY)")
	lockReleaseCmd.Flags().StringVar(&lockIfHolder, "if-holder", "", "Only release when this run id holds the lock")
	lockWatchCmd.Flags().StringVarP(&lockOutputFormat, "output", "o", "default", "Output format (default or json)")

	lockCmd.AddCommand(lockStatusCmd, lockReleaseCmd, lockWatchCmd)
	rootCmd.AddCommand(lockCmd)
}

// lockTarget resolves the configuration, repository and cell for a lock command.
func lockTarget(cmd *cobra.Command, p *printer.Printer) (*config.Config, event.Repository, lockcell.ReleasableCell, func(), error) {
	cfg, err := loadConfig(p)
	if err != nil {
		return nil, event.Repository{}, nil, nil, err
	}

	full := lockRepo
	if full == "" {
		full = os.Getenv("GITHUB_REPOSITORY")
	}
	repo, err := event.ParseRepository(full)
	if err != nil {
		return nil, event.Repository{}, nil, nil, p.Error("no repository", err.Error(),
			[]string{"Pass --repo owner/name or set GITHUB_REPOSITORY."})
	}

	var client hosting.Client
	if cfg.Lock.Backend == config.BackendIssue {
		if err := cfg.RequireToken(); err != nil {
			return nil, event.Repository{}, nil, nil, p.Error("no token", err.Error(), nil)
		}
		if client, err = newHostingClient(cmd.Context(), cfg.Token); err != nil {
			return nil, event.Repository{}, nil, nil, p.Error("failed to create hosting client", err.Error(), nil)
		}
	}

	cell, closeCell, err := openCell(cmd.Context(), cfg, client, repo)
	if err != nil {
		return nil, event.Repository{}, nil, nil, p.ErrorWithContext("failed to open lock", err.Error(),
			map[string]string{"Backend": cfg.Lock.Backend, "Repository": repo.String()}, nil)
	}
	return cfg, repo, cell, closeCell, nil
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd)
	cfg, repo, cell, closeCell, err := lockTarget(cmd, p)
	if err != nil {
		return err
	}
	defer closeCell()

	holder, held, err := cell.Read(cmd.Context())
	if err != nil {
		p.Fault(err)
		return err
	}
	if !held {
		p.Success("Lock for %s is free (%s backend)\n", repo, cfg.Lock.Backend)
		return nil
	}
	p.Info("Lock for %s is held by run %s (%s backend)\n", repo, holder, cfg.Lock.Backend)
	return nil
}

func runLockRelease(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd)
	_, repo, cell, closeCell, err := lockTarget(cmd, p)
	if err != nil {
		return err
	}
	defer closeCell()

	if lockIfHolder != "" {
		want, err := lockcell.ParseToken(lockIfHolder)
		if err != nil {
			return p.Error("invalid --if-holder", err.Error(), nil)
		}
		holder, held, err := cell.Read(cmd.Context())
		if err != nil {
			p.Fault(err)
			return err
		}
		if !held || holder != want {
			p.Warning("Lock for %s is not held by run %s, leaving it alone\n", repo, want)
			return nil
		}
	}

	if err := cell.Release(cmd.Context()); err != nil {
		p.Fault(err)
		return err
	}
	p.Success("Released lock for %s\n", repo)
	return nil
}

func runLockWatch(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd)
	if lockOutputFormat != "default" && lockOutputFormat != "json" {
		return p.Error("invalid output format", fmt.Sprintf("Unknown format: %s", lockOutputFormat),
			[]string{"Valid formats: default, json"})
	}

	cfg, repo, cell, closeCell, err := lockTarget(cmd, p)
	if err != nil {
		return err
	}
	defer closeCell()

	redisCell, ok := cell.(*lockcell.RedisCell)
	if !ok {
		return p.ErrorWithContext("watch needs the redis backend",
			"Issue-backed locks publish no events.",
			map[string]string{"Backend": cfg.Lock.Backend}, []string{"Set lock.backend: redis"})
	}

	sub, err := redisCell.SubscribeEvents(cmd.Context())
	if err != nil {
		return p.Error("subscription failed", err.Error(), nil)
	}
	defer sub.Close()

	p.Step("Watching lock for %s (Ctrl-C to stop)\n", repo)
	return streamLockEvents(cmd.Context(), sub, lockOutputFormat, cmd.OutOrStdout())
}

// streamLockEvents writes events until ctx is done or the subscription ends.
func streamLockEvents(ctx context.Context, sub *lockcell.Subscription, format string, w io.Writer) error {
	enc := json.NewEncoder(w)
	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "warning: %v\n", err)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if format == "json" {
				if err := enc.Encode(ev); err != nil {
					return fmt.Errorf("failed to encode event: %w", err)
				}
				continue
			}
			fmt.Fprintln(w, formatLockEvent(ev))
		}
	}
}

func formatLockEvent(ev *lockcell.Event) string {
	ts := time.UnixMilli(ev.TimestampMs).UTC().Format("15:04:05")
	switch ev.Type {
	case lockcell.EventClaimed:
		return fmt.Sprintf("[%s] 🔒 %s claimed by run %s", ts, ev.Repository, ev.Holder)
	case lockcell.EventReleased:
		return fmt.Sprintf("[%s] 🔓 %s released", ts, ev.Repository)
	default:
		return fmt.Sprintf("[%s] %s %s", ts, ev.Type, ev.Repository)
	}
}
