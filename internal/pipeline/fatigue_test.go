package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-features/internal/encoding"
	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

func appearance(player int64, fixture int64, position string, passes, duels, accuracy float64) models.PlayerFixtureStats {
	return models.PlayerFixtureStats{
		PlayerID:         player,
		PlayerName:       "player",
		FixtureID:        fixture,
		Team:             "A",
		Position:         position,
		SquadNumber:      8,
		Minutes:          90,
		Rating:           7,
		ShotsTotal:       2,
		ShotsOn:          1,
		PassesTotal:      passes,
		PassesKey:        2,
		PassesAccuracy:   accuracy,
		TacklesTotal:     3,
		DuelsTotal:       duels,
		DuelsWon:         duels / 2,
		DribblesAttempts: 4,
		DribblesSuccess:  2,
		FoulsCommitted:   1,
		CardsYellow:      nan(),
		CardsRed:         nan(),
	}
}

// tiredMidfielder plays five steady fixtures, then one at half the passes and
// 55% of the duels.
func tiredMidfielder(lastAccuracy float64) []models.PlayerFixtureStats {
	var stats []models.PlayerFixtureStats
	for f := int64(1); f <= 5; f++ {
		stats = append(stats, appearance(1, f, "M", 50, 20, 0.9))
	}
	return append(stats, appearance(1, 6, "M", 25, 11, lastAccuracy))
}

func defender() []models.PlayerFixtureStats {
	stats := []models.PlayerFixtureStats{
		appearance(2, 1, "D", 30, 15, 0.85),
		appearance(2, 2, "D", 30, 15, 0.85),
		appearance(2, 3, "D", 30, 15, 0.85),
	}
	benched := appearance(2, 4, "D", 0, 0, 0)
	benched.SquadNumber = nan()
	return append(stats, benched)
}

func TestFatigueSignals_Threshold(t *testing.T) {
	steady := FatigueSignals{Passes: 0.5, Duels: 0.55, Accuracy: 0.9}
	assert.Equal(t, 2, steady.Score())
	assert.True(t, IsFatigued(steady.Score(), 1))
	assert.False(t, IsFatigued(steady.Score(), 0))

	sloppy := FatigueSignals{Passes: 0.5, Duels: 0.55, Accuracy: 0.79}
	assert.Equal(t, 3, sloppy.Score())
	assert.True(t, IsFatigued(sloppy.Score(), 0))

	assert.Equal(t, 0, FatigueSignals{Passes: 0.6, Duels: 0.6, Accuracy: 0.8}.Score())
}

func TestFatigueProcessor_Fit(t *testing.T) {
	p := NewFatigueProcessor(features.DefaultPolicy(), testLog())
	stats := append(tiredMidfielder(0.81), defender()...)

	tbl, enc, err := p.Fit(bg(), stats)
	require.NoError(t, err)

	// Only the midfielder's sixth fixture has five prior appearances.
	require.Equal(t, 1, tbl.Rows())
	assert.Equal(t, []string{"D", "M"}, enc.Classes)
	assert.Equal(t, FatigueFeatureColumns(), tbl.ColumnsByRole(features.RoleFeature))
	assert.Equal(t, []string{FatigueLabel}, tbl.ColumnsByRole(features.RoleLabel))

	assert.Equal(t, 6.0, value(t, tbl, "fixture_id", 0))
	assert.Equal(t, 50.0, value(t, tbl, "passes_total_avg5", 0))
	assert.Equal(t, 0.0, value(t, tbl, "cards_yellow_avg5", 0))
	assert.Equal(t, -25.0, value(t, tbl, "passes_trend", 0))
	assert.Equal(t, 1.0, value(t, tbl, "position", 0))
	assert.InDelta(t, 0.5, value(t, tbl, "passes_drop_ratio", 0), 1e-4)
	assert.InDelta(t, 0.55, value(t, tbl, "duels_drop_ratio", 0), 1e-4)
	assert.InDelta(t, 0.9, value(t, tbl, "accuracy_drop_ratio", 0), 1e-4)

	assert.Equal(t, 2.0, value(t, tbl, "fatigue_score", 0))
	assert.Equal(t, 0.0, value(t, tbl, "group_fatigue_score", 0))
	assert.Equal(t, 0.0, value(t, tbl, FatigueLabel, 0))
}

func TestFatigueProcessor_AccuracyDropTipsLabel(t *testing.T) {
	p := NewFatigueProcessor(features.DefaultPolicy(), testLog())

	tbl, _, err := p.Fit(bg(), tiredMidfielder(0.7))
	require.NoError(t, err)

	require.Equal(t, 1, tbl.Rows())
	assert.Equal(t, 3.0, value(t, tbl, "fatigue_score", 0))
	assert.Equal(t, 1.0, value(t, tbl, FatigueLabel, 0))
}

func TestFatigueProcessor_GroupScoreTipsLabel(t *testing.T) {
	p := NewFatigueProcessor(features.DefaultPolicy(), testLog())

	// A busier midfielder doubles the group's passing rate.
	stats := tiredMidfielder(0.81)
	for f := int64(1); f <= 6; f++ {
		busy := appearance(3, f, "M", 100, 11, 0.81)
		stats = append(stats, busy)
	}

	tbl, _, err := p.Fit(bg(), stats)
	require.NoError(t, err)

	require.Equal(t, 2, tbl.Rows())
	assert.Equal(t, 1.0, value(t, tbl, "player_id", 0))
	assert.Equal(t, 2.0, value(t, tbl, "fatigue_score", 0))
	assert.Equal(t, 1.0, value(t, tbl, "group_fatigue_score", 0))
	assert.Equal(t, 1.0, value(t, tbl, FatigueLabel, 0))

	assert.Equal(t, 3.0, value(t, tbl, "player_id", 1))
	assert.Equal(t, 0.0, value(t, tbl, FatigueLabel, 1))
}

func TestFatigueProcessor_TransformUnknownPosition(t *testing.T) {
	p := NewFatigueProcessor(features.DefaultPolicy(), testLog())
	enc := encoding.FitLabelEncoder("position", []string{"D"})

	_, err := p.Transform(bg(), tiredMidfielder(0.81), enc)

	var unknown *models.UnknownCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "position", unknown.Column)
	assert.Equal(t, "M", unknown.Value)
}

func TestFatigueProcessor_NoFullBaseline(t *testing.T) {
	p := NewFatigueProcessor(features.DefaultPolicy(), testLog())

	_, _, err := p.Fit(bg(), defender())
	assert.ErrorIs(t, err, models.ErrNoMatches)
}
