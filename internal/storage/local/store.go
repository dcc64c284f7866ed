// Package local persists record datasets as JSON files on disk.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/scrape"
)

// Store writes each dataset to <dir>/<name>.json, pretty printed so the
// output stays diffable between runs.
type Store struct {
	dir    string
	logger *zap.Logger
}

// New creates a Store rooted at dir. The directory is created on first save.
func New(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// SaveRecords marshals the records and writes them atomically via a temp file
// so a crash mid-write never leaves a truncated dataset behind.
func (s *Store) SaveRecords(ctx context.Context, name string, records []scrape.CompanyRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create output dir %s: %w", s.dir, err)
	}

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}

	s.logger.Info("dataset written",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return nil
}
