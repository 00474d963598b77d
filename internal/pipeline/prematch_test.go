package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

func TestPreMatchProcessor_Shape(t *testing.T) {
	p := NewPreMatchProcessor(features.DefaultPolicy(), testLog())

	tbl, report, err := p.Process(bg(), history())
	require.NoError(t, err)

	assert.Equal(t, 8, tbl.Rows())
	assert.Equal(t, []string{"fixture_id", "date"}, tbl.ColumnsByRole(features.RoleKey))
	assert.Equal(t, []string{PreMatchLabel}, tbl.ColumnsByRole(features.RoleLabel))
	// Seven context columns, fourteen form, standings and head-to-head columns, 22 rolling averages.
	assert.Len(t, tbl.ColumnsByRole(features.RoleFeature), 7+14+22)

	labels, err := tbl.String(PreMatchLabel)
	require.NoError(t, err)
	assert.Equal(t, "Win", labels[rowOf(t, tbl, 4, "A")])
	assert.Equal(t, "Loss", labels[rowOf(t, tbl, 4, "C")])
	assert.Equal(t, "Draw", labels[rowOf(t, tbl, 2, "C")])

	dates, err := tbl.String("date")
	require.NoError(t, err)
	assert.IsNonDecreasing(t, dates)

	assert.Equal(t, 3, report.Defaulted()["recent_win_rate"])
	assert.Equal(t, 6, report.Defaulted()["h2h_win_rate"])
}

func TestPreMatchProcessor_Values(t *testing.T) {
	p := NewPreMatchProcessor(features.DefaultPolicy(), testLog())
	tbl, _, err := p.Process(bg(), history())
	require.NoError(t, err)

	a := rowOf(t, tbl, 4, "A")
	assert.Equal(t, 0.75, value(t, tbl, "recent_win_rate", a))
	assert.Equal(t, 1.5, value(t, tbl, "avg_goals_for", a))
	assert.Equal(t, 0.5, value(t, tbl, "avg_goals_against", a))
	assert.Equal(t, 1.0, value(t, tbl, "goal_difference", a))
	assert.Equal(t, 0.75, value(t, tbl, "opponent_recent_win_rate", a))
	assert.Equal(t, 11.5, value(t, tbl, "team_shots_avg", a))
	assert.Equal(t, 11.0, value(t, tbl, "opponent_shots_avg", a))

	// A and C both have 4 points; the tie goes to the smaller team id.
	assert.Equal(t, 4.0, value(t, tbl, "team_points", a))
	assert.Equal(t, 4.0, value(t, tbl, "opponent_points", a))
	assert.Equal(t, 1.0, value(t, tbl, "team_rank", a))
	assert.Equal(t, 2.0, value(t, tbl, "opponent_rank", a))

	assert.Equal(t, 0.0, value(t, tbl, "h2h_win_rate", a))
	assert.Equal(t, 1.0, value(t, tbl, "h2h_draw_rate", a))
	assert.Equal(t, 0.0, value(t, tbl, "h2h_loss_rate", a))
}

func TestPreMatchProcessor_FirstMatchDefaults(t *testing.T) {
	p := NewPreMatchProcessor(features.DefaultPolicy(), testLog())
	tbl, _, err := p.Process(bg(), history())
	require.NoError(t, err)

	for _, team := range []string{"A", "B"} {
		r := rowOf(t, tbl, 1, team)
		assert.Equal(t, features.DefaultFormWinRate, value(t, tbl, "recent_win_rate", r))
		assert.Equal(t, features.DefaultRollingValue, value(t, tbl, "avg_goals_for", r))
		assert.Equal(t, features.DefaultRollingValue, value(t, tbl, "team_corners_avg", r))
		assert.Equal(t, features.DefaultH2HWinRate, value(t, tbl, "h2h_win_rate", r))
		assert.Equal(t, features.DefaultH2HDrawRate, value(t, tbl, "h2h_draw_rate", r))
		assert.Equal(t, features.DefaultH2HLossRate, value(t, tbl, "h2h_loss_rate", r))
		assert.Equal(t, 0.0, value(t, tbl, "team_points", r))
	}
	assert.Equal(t, 1.0, value(t, tbl, "team_rank", rowOf(t, tbl, 1, "A")))
	assert.Equal(t, 2.0, value(t, tbl, "team_rank", rowOf(t, tbl, 1, "B")))
}

func TestPreMatchProcessor_OwnResultNeverLeaks(t *testing.T) {
	p := NewPreMatchProcessor(features.DefaultPolicy(), testLog())
	base, _, err := p.Process(bg(), history())
	require.NoError(t, err)

	changed := history()
	changed[3].Home.Goals, changed[3].Away.Goals = 0, 5
	mutated, _, err := p.Process(bg(), changed)
	require.NoError(t, err)

	for _, team := range []string{"A", "C"} {
		rb, rm := rowOf(t, base, 4, team), rowOf(t, mutated, 4, team)
		for _, name := range base.ColumnsByRole(features.RoleFeature) {
			col, _ := base.Column(name)
			if col.IsCategorical() {
				want, _ := base.String(name)
				got, _ := mutated.String(name)
				assert.Equal(t, want[rb], got[rm], "%s for %s", name, team)
				continue
			}
			assert.Equal(t, value(t, base, name, rb), value(t, mutated, name, rm), "%s for %s", name, team)
		}
	}
}

func TestPreMatchProcessor_Empty(t *testing.T) {
	p := NewPreMatchProcessor(features.DefaultPolicy(), testLog())
	_, _, err := p.Process(bg(), nil)
	assert.ErrorIs(t, err, models.ErrNoMatches)
}
