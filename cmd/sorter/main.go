// Command sorter executes a single sorting run from the terminal. With
// -dry-run it prints the plan summary without touching any document.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhduong/docsorter/internal/bootstrap"
	"github.com/mhduong/docsorter/internal/config"
	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
	"github.com/mhduong/docsorter/internal/observability/logging"
)

func main() {
	var (
		dryRun    = flag.Bool("dry-run", false, "plan only, do not move documents")
		email     = flag.String("email", "", "account email the profile belongs to")
		profileID = flag.String("profile", "", "profile id (default profile when empty)")
	)
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: sorter -email <account> [-profile <id>] [-dry-run]")
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.NewJSONLogger("sorter", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	req := ports.RunRequest{
		Email:     *email,
		ProfileID: *profileID,
		OwnerHash: domain.OwnerHash(*email),
	}

	if *dryRun {
		result, err := app.Runs.StartDryRun(ctx, req)
		if err != nil {
			log.Fatalf("dry run failed: %v", err)
		}
		printSummary(result.RunID, result.Summary)
		return
	}

	result, err := app.Runs.StartRun(ctx, req)
	if err != nil {
		log.Fatalf("run failed to start: %v", err)
	}
	logger.Info("run started", "run_id", result.RunID)

	rec, err := waitForTerminal(ctx, app.Runs, result.RunID)
	if err != nil {
		log.Fatalf("run did not finish: %v", err)
	}
	if rec.State == domain.RunFailed {
		log.Fatalf("run failed: %s", rec.Error)
	}
	printSummary(rec.RunID, rec.Summary)
}

func waitForTerminal(ctx context.Context, runs ports.RunService, runID string) (*domain.RunRecord, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			rec, err := runs.GetStatus(ctx, runID)
			if err != nil {
				return nil, err
			}
			if rec.State.Terminal() {
				return rec, nil
			}
		}
	}
}

func printSummary(runID string, summary *domain.Summary) {
	out := map[string]any{"run_id": runID, "summary": summary}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("encode summary: %v", err)
	}
	fmt.Println(string(encoded))
}
