package domain

import "errors"

// Error categories. Components wrap the underlying cause with one of these so
// that callers can decide between skip-and-continue and abort.
var (
	// ErrProviderFetch marks a network, timeout or malformed-response failure
	// from the market-data provider. Recovered locally: the symbol or batch is
	// skipped and the cycle continues.
	ErrProviderFetch = errors.New("provider fetch failed")

	// ErrStorage marks a database failure. Fatal for the current job; the
	// backfill checkpoint is not advanced.
	ErrStorage = errors.New("storage unavailable")

	// ErrCheckpointCorrupt marks a checkpoint file that cannot be parsed.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	// ErrConfiguration marks missing or inconsistent configuration, detected
	// before any network or database work begins.
	ErrConfiguration = errors.New("invalid configuration")
)
