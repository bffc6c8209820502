package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
)

// ErrIngestRunning is returned when another ingest process holds the lock.
var ErrIngestRunning = errors.New("another ingest run is in progress")

// lockFileName lives under the user's cache dir so concurrent ingest
// runs on the same machine exclude each other.
const lockFileName = "cardsage-ingest.lock"

// Adder is the subset of the catalog store the indexer needs.
type Adder interface {
	Add(ctx context.Context, doc catalog.Document) error
}

// Indexer writes documents into the catalog one at a time, under a
// process-level file lock.
type Indexer struct {
	store    Adder
	lockPath string
	logger   log.Logger
}

// NewIndexer creates an Indexer. lockDir of empty string uses the OS
// temp directory.
func NewIndexer(store Adder, lockDir string, logger log.Logger) *Indexer {
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{
		store:    store,
		lockPath: filepath.Join(lockDir, lockFileName),
		logger:   logger,
	}
}

// Index embeds and upserts all documents. The run is aborted on the
// first failure so a partial ingest is visible in the error rather
// than silently dropped rows.
func (ix *Indexer) Index(ctx context.Context, docs []catalog.Document) error {
	lock := flock.New(ix.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !locked {
		return ErrIngestRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			ix.logger.Warn("failed to release ingest lock", "error", err)
		}
	}()

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest cancelled after %d of %d documents: %w", i, len(docs), err)
		}
		if err := ix.store.Add(ctx, doc); err != nil {
			return fmt.Errorf("index document %s (%d of %d): %w", doc.ID, i+1, len(docs), err)
		}
		if (i+1)%100 == 0 {
			ix.logger.Info("ingest progress", "indexed", i+1, "total", len(docs))
		}
	}

	ix.logger.Info("ingest complete", "documents", len(docs))
	return nil
}
