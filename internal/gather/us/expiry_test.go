package us

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestExpiration(t *testing.T) {
	exps := []time.Time{day("2026-03-20"), day("2026-02-13"), day("2026-02-20"), day("2026-02-06")}

	got := NearestExpiration(exps, time.Date(2026, 2, 9, 15, 30, 0, 0, time.UTC))
	require.True(t, got.Valid)
	assert.Equal(t, day("2026-02-13"), got.Time)

	// An expiration on the reference date qualifies.
	got = NearestExpiration(exps, day("2026-02-06"))
	assert.Equal(t, day("2026-02-06"), got.Time)

	assert.False(t, NearestExpiration(exps, day("2026-04-01")).Valid)
	assert.False(t, NearestExpiration(nil, day("2026-04-01")).Valid)
}

func TestExpiryLookup(t *testing.T) {
	p := &fakeProvider{
		expirations: map[string][]time.Time{
			"SPY":   {day("2026-02-13"), day("2026-02-20")},
			"BRK-B": {day("2026-01-16")},
		},
		expiryErr: map[string]error{"BAD": errBoom},
	}

	got, err := NewExpiryLookup(p).Lookup(context.Background(), instruments("SPY", "BAD", "brk.b"), day("2026-02-09"))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "SPY", got[0].Symbol)
	assert.Equal(t, day("2026-02-13"), got[0].Expiry.Time)

	assert.ErrorIs(t, got[1].Err, errBoom)
	assert.False(t, got[1].Expiry.Valid)

	assert.Equal(t, "brk.b", got[2].Symbol)
	assert.NoError(t, got[2].Err)
	assert.False(t, got[2].Expiry.Valid)
}

func TestExpiryLookupCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := NewExpiryLookup(&fakeProvider{}).Lookup(ctx, instruments("SPY"), day("2026-02-09"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}
