package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/wikibot/internal/config"
	"github.com/dyluth/wikibot/internal/content"
	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/hosting"
	"github.com/dyluth/wikibot/internal/printer"
	"github.com/dyluth/wikibot/pkg/lockcell"
)

// Constructors for external collaborators; tests replace them.
var (
	newHostingClient = func(ctx context.Context, token string) (hosting.Client, error) {
		return hosting.NewGitHub(ctx, token)
	}

	newOpener = func(cfg *config.Config, repo event.Repository) content.Opener {
		return content.NewGitOpener(repo, cfg.Workdir, cfg.Branch, cfg.Git.Username, cfg.Token)
	}
)

// openCell connects the configured lock backend for repo. client is only
// used by the issue backend and may be nil for redis.
func openCell(ctx context.Context, cfg *config.Config, client hosting.Client, repo event.Repository) (lockcell.ReleasableCell, func(), error) {
	switch cfg.Lock.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Lock.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		cell, err := lockcell.NewRedisCell(opts, repo.Owner, repo.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Redis lock cell: %w", err)
		}
		if err := cell.Ping(ctx); err != nil {
			cell.Close()
			return nil, nil, fmt.Errorf("could not connect to Redis: %w", err)
		}
		return cell, func() { cell.Close() }, nil

	default:
		if client == nil {
			return nil, nil, fmt.Errorf("the %s lock backend needs a hosting client", cfg.Lock.Backend)
		}
		return hosting.NewIssueCell(client, repo, cfg.Lock.Issue), func() {}, nil
	}
}

func newPrinter(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// loadConfig loads the configuration, printing a formatted error on failure.
func loadConfig(p *printer.Printer) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, p.Error("invalid configuration", err.Error(),
			[]string{"Check wikibot.yml and the WIKIBOT_* environment variables."})
	}
	return cfg, nil
}
