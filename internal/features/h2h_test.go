package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-features/internal/models"
)

func TestHeadToHead_UsesOnlyLastWindowMeetings(t *testing.T) {
	// Seven meetings from A's perspective: L, L, W, W, W, D, L, then an eighth.
	goals := [][2]float64{{0, 1}, {0, 2}, {1, 0}, {2, 1}, {3, 0}, {1, 1}, {0, 1}, {2, 2}}
	var matches []models.MatchRecord
	for i, g := range goals {
		home, away := "A", "B"
		hg, ag := g[0], g[1]
		if i%2 == 1 {
			home, away = "B", "A"
			hg, ag = ag, hg
		}
		matches = append(matches, fixture(int64(i+1), "EPL", "2023", i, home, away, hg, ag))
	}
	rows := ExpandAll(withSeq(matches))

	rates := HeadToHead(rows, 5)
	require.Len(t, rates, len(rows))

	// The eighth meeting is fixture index 7, played away by A (odd index).
	aRow := rows[2*7+1]
	require.Equal(t, "A", aRow.Team)
	got := rates[2*7+1]
	assert.InDelta(t, 0.6, got.Win, 1e-9)
	assert.InDelta(t, 0.2, got.Draw, 1e-9)
	assert.InDelta(t, 0.2, got.Loss, 1e-9)

	mirror := rates[2*7]
	require.Equal(t, "B", rows[2*7].Team)
	assert.InDelta(t, 0.2, mirror.Win, 1e-9)
	assert.InDelta(t, 0.6, mirror.Loss, 1e-9)
}

func TestHeadToHead_FirstMeetingUndefined(t *testing.T) {
	rows := ExpandAll(withSeq([]models.MatchRecord{
		fixture(1, "EPL", "2023", 1, "A", "B", 1, 0),
		fixture(2, "Cup", "2023", 2, "B", "A", 1, 1),
	}))

	rates := HeadToHead(rows, 5)
	assert.False(t, rates[0].Defined())
	assert.False(t, rates[1].Defined())
	assert.Equal(t, H2HRates{Win: DefaultH2HWinRate, Draw: DefaultH2HDrawRate, Loss: DefaultH2HLossRate}, rates[0].WithDefaults())

	// Meetings in other competitions still count.
	assert.Equal(t, H2HRates{Win: 0, Draw: 0, Loss: 1}, rates[2])
	assert.Equal(t, H2HRates{Win: 1, Draw: 0, Loss: 0}, rates[3])
}

func TestH2HIndex_IgnoresUnknownResults(t *testing.T) {
	idx := NewH2HIndex(3)
	idx.Record("A", "B", models.ResultUnknown)
	assert.False(t, idx.Lookup("A", "B").Defined())

	idx.Record("A", "B", models.ResultDraw)
	assert.Equal(t, H2HRates{Win: 0, Draw: 1, Loss: 0}, idx.Lookup("A", "B"))
	assert.False(t, idx.Lookup("B", "A").Defined())
}
