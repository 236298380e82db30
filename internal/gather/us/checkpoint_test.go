package us

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockvault/internal/domain"
	"stockvault/internal/gather"
)

func TestCheckpointInitialReference(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), ".backfill_checkpoint"), day("2026-02-06"))

	month, err := cp.Load()
	require.NoError(t, err)
	assert.Equal(t, day("2026-02-01"), month)
	assert.Equal(t, "[2026-02-01, 2026-03-01)", gather.MonthWindow(month).String())
}

func TestCheckpointAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".backfill_checkpoint")
	cp := NewCheckpointStore(path, day("2026-02-06"))

	require.NoError(t, cp.Advance(day("2026-02-01")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01\n", string(data))

	month, err := cp.Load()
	require.NoError(t, err)
	assert.Equal(t, day("2026-01-01"), month)

	// Crossing a year boundary.
	require.NoError(t, cp.Advance(month))
	month, err = cp.Load()
	require.NoError(t, err)
	assert.Equal(t, day("2025-12-01"), month)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestCheckpointNormalizesToMonthStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp")
	require.NoError(t, os.WriteFile(path, []byte("  2025-07-19\n"), 0o644))

	month, err := NewCheckpointStore(path, day("2026-02-06")).Load()
	require.NoError(t, err)
	assert.Equal(t, day("2025-07-01"), month)
}

func TestCheckpointCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp")
	require.NoError(t, os.WriteFile(path, []byte("not a date"), 0o644))

	cp := NewCheckpointStore(path, day("2026-02-06"))
	_, err := cp.Load()
	assert.ErrorIs(t, err, domain.ErrCheckpointCorrupt)
	assert.Equal(t, path, cp.Path())
}
