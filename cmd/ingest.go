package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/cardsage/cardsage/internal/app"
	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/config"
	"github.com/cardsage/cardsage/internal/ingest"
)

// runIngest loads card price records from a CSV file or a listing page
// and indexes them into the catalog.
func runIngest() error {
	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestFlags.SetOutput(os.Stderr)

	csvPath := ingestFlags.String("csv", "", "Path to a card price CSV file")
	pageURL := ingestFlags.String("url", "", "URL of a card price listing page")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := ingestFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ingest flags: %w", err)
	}

	if (*csvPath == "") == (*pageURL == "") {
		return errors.New("exactly one of --csv or --url is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	docs, err := loadDocuments(*csvPath, *pageURL, logger)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		logger.Info("no card records to index")
		return nil
	}

	indexer := ingest.NewIndexer(a.Catalog, "", logger)
	if err := indexer.Index(ctx, docs); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	logger.Info("ingest complete", "documents", len(docs))
	return nil
}

func loadDocuments(csvPath, pageURL string, logger *slog.Logger) ([]catalog.Document, error) {
	if csvPath != "" {
		docs, err := ingest.LoadCSV(csvPath)
		if err != nil {
			return nil, fmt.Errorf("loading CSV: %w", err)
		}
		return docs, nil
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", pageURL)
	}
	fetcher := ingest.NewFetcher(u.Hostname(), logger)
	docs, err := fetcher.Fetch(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}
	return docs, nil
}
