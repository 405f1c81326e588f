package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelworks/kestrel/internal/knowledge"
)

// ingestTimeout bounds one whole ingest run, embeddings included.
const ingestTimeout = 10 * time.Minute

// runIngest loads a text or markdown file into the knowledge base and
// exits. The agent only ever reads the knowledge store; this is the
// write path.
func runIngest(logger *slog.Logger, store *knowledge.Store, path, source string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if source == "" {
		source = filepath.Base(path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	start := time.Now()
	n, err := store.Ingest(ctx, source, string(data))
	if err != nil {
		return fmt.Errorf("ingest %s (%d chunks stored): %w", source, n, err)
	}
	logger.Info("ingest complete",
		"source", source,
		"chunks", n,
		"duration", time.Since(start),
	)
	return nil
}
