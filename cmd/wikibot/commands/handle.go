package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/wikibot/internal/content"
	"github.com/dyluth/wikibot/internal/contribution"
	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/lock"
)

var handleEventFile string

var handleCmd = &cobra.Command{
	Use:   "handle",
	Short: "Handle one webhook event",
	Long: `Handle one webhook event payload (the Actions "github" context as JSON).

The payload is read from --event (a file, or "-" for stdin), otherwise from
the WIKIBOT_EVENT or JSON environment variable.

Exit codes:
  0  handled or ignored
  1  hosting or repository failure (the lock may still be held)
  2  malformed event or issue body
  3  lock acquisition gave up (lock.max_attempts / lock.deadline)

Examples:
  # In a workflow step
  JSON='${{ toJson(github) }}' wikibot handle

  # Replay a saved payload
  wikibot handle --event payload.json`,
	RunE: runHandle,
}

func init() {
	handleCmd.Flags().StringVarP(&handleEventFile, "event", "e", "", "Event payload file, or - for stdin")
	rootCmd.AddCommand(handleCmd)
}

func runHandle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p := newPrinter(cmd)

	cfg, err := loadConfig(p)
	if err != nil {
		return err
	}

	payload, err := readPayload(cmd.InOrStdin(), handleEventFile, cfg.Event)
	if err != nil {
		return p.Error("no event payload", err.Error(), []string{
			"Pass --event <file>, or set WIKIBOT_EVENT (or JSON) to the event payload.",
		})
	}

	ev, err := event.NewClassifier(cfg.Marker).Classify(payload)
	if err != nil {
		p.Fault(err)
		return err
	}
	if ev.Kind == event.Ignored {
		log.Printf("[INFO] Ignoring event on %s: %s", ev.Repository, ev.Reason)
		return nil
	}
	log.Printf("[INFO] Handling %s on %s (run %d)", ev.Kind, ev.Repository, ev.RunningInfo.RunID)

	if err := cfg.RequireToken(); err != nil {
		return p.Error("no token", err.Error(), nil)
	}
	client, err := newHostingClient(ctx, cfg.Token)
	if err != nil {
		return p.Error("failed to create hosting client", err.Error(), nil)
	}

	cell, closeCell, err := openCell(ctx, cfg, client, ev.Repository)
	if err != nil {
		return p.Error("failed to open lock", err.Error(), nil)
	}
	defer closeCell()

	writer := content.NewWriter(newOpener(cfg, ev.Repository), cfg.Branch, cfg.DefaultBranch, cfg.CommitterSignature())
	handler := contribution.NewHandler(
		lock.NewCoordinator(cell, cfg.Policy()),
		client,
		writer,
		contribution.WithMarker(cfg.Marker),
		contribution.WithReviewer(cfg.Reviewer),
	)

	if err := handler.Handle(ctx, ev); err != nil {
		log.Printf("[ERROR] %s on %s failed: %v", ev.Kind, ev.Repository, err)
		p.Fault(err)
		return err
	}
	return nil
}

// readPayload prefers the --event flag over the configured payload.
func readPayload(stdin io.Reader, file, configured string) ([]byte, error) {
	switch file {
	case "":
		if configured == "" {
			return nil, fmt.Errorf("no event payload provided")
		}
		return []byte(configured), nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read event file: %w", err)
		}
		return data, nil
	}
}
