package timewindow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/timewindow"
)

// TestTimeBlockedOnWrongDay is scenario 3: Saturday falls outside mon-fri.
func TestTimeBlockedOnWrongDay(t *testing.T) {
	gate := timewindow.Gate{
		Enabled:   true,
		StartTime: "09:00:00",
		EndTime:   "17:00:00",
		Days:      []string{"mon", "tue", "wed", "thu", "fri"},
	}
	ok, err := timewindow.ShouldProcessByTime("2025-01-18 10:00:00", gate)
	require.NoError(t, err)
	assert.False(t, ok, "2025-01-18 is a Saturday")
}

func TestTimeAllowedWithinWindow(t *testing.T) {
	gate := timewindow.Gate{
		Enabled:   true,
		StartTime: "09:00:00",
		EndTime:   "17:00:00",
		Days:      []string{"mon", "tue", "wed", "thu", "fri"},
	}
	ok, err := timewindow.ShouldProcessByTime("2025-01-17 10:00:00", gate) // Friday
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDisabledGateAlwaysBlocks(t *testing.T) {
	gate := timewindow.Gate{Enabled: false}
	ok, err := timewindow.ShouldProcessByTime("2025-01-17 10:00:00", gate)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoBoundsMeansAnyTimeOfDay(t *testing.T) {
	gate := timewindow.Gate{Enabled: true}
	ok, err := timewindow.ShouldProcessByTime("2025-01-17 23:59:59", gate)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParsesTSeparatorAndSpaceSeparatorIdentically(t *testing.T) {
	gate := timewindow.Gate{Enabled: true, StartTime: "00:00:00", EndTime: "23:59:59"}
	okSpace, err := timewindow.ShouldProcessByTime("2025-01-17 12:00:00", gate)
	require.NoError(t, err)
	okT, err := timewindow.ShouldProcessByTime("2025-01-17T12:00:00", gate)
	require.NoError(t, err)
	assert.Equal(t, okSpace, okT)
}

func TestBoundaryTimesAreInclusive(t *testing.T) {
	gate := timewindow.Gate{Enabled: true, StartTime: "09:00:00", EndTime: "17:00:00"}
	okStart, err := timewindow.ShouldProcessByTime("2025-01-17 09:00:00", gate)
	require.NoError(t, err)
	assert.True(t, okStart)

	okEnd, err := timewindow.ShouldProcessByTime("2025-01-17 17:00:00", gate)
	require.NoError(t, err)
	assert.True(t, okEnd)

	okAfter, err := timewindow.ShouldProcessByTime("2025-01-17 17:00:01", gate)
	require.NoError(t, err)
	assert.False(t, okAfter)
}
