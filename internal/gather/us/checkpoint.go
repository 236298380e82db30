package us

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockvault/internal/domain"
)

// CheckpointStore persists the backfill position: the first day of the
// earliest month not yet loaded. The file holds a single YYYY-MM-DD line.
type CheckpointStore struct {
	path    string
	initial time.Time
}

// NewCheckpointStore creates a store at path. initialReference seeds the
// position when no file exists; its month is the first one loaded.
func NewCheckpointStore(path string, initialReference time.Time) *CheckpointStore {
	return &CheckpointStore{path: path, initial: domain.FirstOfMonth(initialReference)}
}

// Path returns the checkpoint file path.
func (c *CheckpointStore) Path() string { return c.path }

// Load returns the next month to load, normalized to its first day. A
// missing file yields the initial reference month; an unreadable or
// unparsable file is domain.ErrCheckpointCorrupt.
func (c *CheckpointStore) Load() (time.Time, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.initial, nil
		}
		return time.Time{}, fmt.Errorf("%w: reading %s: %w", domain.ErrCheckpointCorrupt, c.path, err)
	}

	line := strings.TrimSpace(string(data))
	t, err := time.Parse(domain.DateLayout, line)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s holds %q", domain.ErrCheckpointCorrupt, c.path, line)
	}
	return domain.FirstOfMonth(t), nil
}

// Advance records that the month starting at committed has been loaded, so
// the next Load returns the month before it. The write is atomic.
func (c *CheckpointStore) Advance(committed time.Time) error {
	next := domain.FirstOfMonth(committed).AddDate(0, -1, 0)
	return c.write(next)
}

func (c *CheckpointStore) write(t time.Time) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(t.Format(domain.DateLayout) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}
