package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNow_ReturnsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Now().Location())
}

func TestParseDate(t *testing.T) {
	// Gateway timestamps carry a KST offset; storage is UTC.
	parsed, err := ParseDate(time.RFC3339, "2026-03-02T12:00:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), parsed)

	_, err = ParseDate(time.RFC3339, "not-a-date")
	assert.Error(t, err)

	_, err = ParseDate(time.RFC3339, "")
	assert.Error(t, err)
}

func TestToUTC(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	local := time.Date(2026, 3, 2, 12, 0, 0, 0, kst)

	converted := ToUTC(local)

	assert.Equal(t, time.UTC, converted.Location())
	assert.True(t, local.Equal(converted))
}
