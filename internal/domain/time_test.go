package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstantLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01T12:00:00Z", "2024-03-01T13:00:00+01:00", "2024-03-01 12:00:00", "1709294400000"} {
		got, err := ParseInstant(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s: %v", s, got)
	}
}

func TestParseInstantRejectsUnstorableYears(t *testing.T) {
	for _, s := range []string{"", "soon", "300000000000000", "-70000000000000", "0000-01-01T00:30:00+01:00"} {
		_, err := ParseInstant(s)
		assert.Error(t, err, s)
	}
	got, err := ParseInstant("0000-01-01")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Year())
}
