package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-features/internal/artifacts"
	"github.com/stitts-dev/match-features/internal/encoding"
	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

func fitLive(t *testing.T) (*features.Table, *encoding.Artifacts) {
	t.Helper()
	p := NewLiveProcessor(features.DefaultPolicy(), testLog())
	tbl, arts, err := p.Fit(bg(), history())
	require.NoError(t, err)
	return tbl, arts
}

// unscaled reverses the persisted scaler for one column.
func unscaled(t *testing.T, arts *encoding.Artifacts, tbl *features.Table, column string, row int) float64 {
	t.Helper()
	for i, name := range arts.Scaler.Columns {
		if name == column {
			return value(t, tbl, column, row)*arts.Scaler.Scale[i] + arts.Scaler.Mean[i]
		}
	}
	t.Fatalf("column %s is not scaled", column)
	return 0
}

func snapshot(home, away string, homeGoals, awayGoals float64) models.LiveSnapshot {
	m := played(99, 10, home, away, homeGoals, awayGoals)
	return models.LiveSnapshot{Match: m, Timestamp: "2023-08-11T15:45:00Z"}
}

func TestLiveProcessor_Fit(t *testing.T) {
	tbl, arts := fitLive(t)

	assert.Equal(t, 8, tbl.Rows())
	assert.Equal(t, LiveFeatureColumns(), tbl.ColumnsByRole(features.RoleFeature))
	assert.Equal(t, LiveFeatureColumns(), arts.Schema.Features)
	assert.Equal(t, LiveLabel, arts.Schema.Label)
	assert.Equal(t, LiveScaledColumns(), arts.Scaler.Columns)
	assert.Equal(t, []string{"A", "B", "C"}, arts.Team.Classes)
	assert.Equal(t, []string{"3-5-2", "4-3-3", "4-4-2"}, arts.TeamFormation.Classes)

	labels, err := tbl.Float(LiveLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 1, 1, 0}, labels)

	teams, err := tbl.Float("team")
	require.NoError(t, err)
	assert.Equal(t, 0.0, teams[rowOf(t, tbl, 1, "A")])
	assert.Equal(t, 2.0, teams[rowOf(t, tbl, 2, "C")])

	// Before fixture 4, A has two results behind it and the 4-3-3 side one prior win
	// and one draw.
	a := rowOf(t, tbl, 4, "A")
	assert.InDelta(t, 1.0, unscaled(t, arts, tbl, "recent_wins", a), 1e-9)
	assert.InDelta(t, 1.0, unscaled(t, arts, tbl, "recent_draws", a), 1e-9)
	assert.InDelta(t, 0.5, unscaled(t, arts, tbl, "team_form_win_rate", a), 1e-9)
	assert.InDelta(t, 4.0, unscaled(t, arts, tbl, "team_points", a), 1e-9)
	assert.InDelta(t, 0.0, unscaled(t, arts, tbl, "team_points_dif", a), 1e-9)
	assert.InDelta(t, 0.8, unscaled(t, arts, tbl, "team_pass_accuracy", a), 1e-9)
}

func TestLiveAdapter_Transform(t *testing.T) {
	_, trained := fitLive(t)
	store := artifacts.NewMemoryStore()
	require.NoError(t, trained.Save(bg(), store))
	arts, err := encoding.LoadArtifacts(bg(), store)
	require.NoError(t, err)

	adapter := NewLiveAdapter(features.DefaultPolicy(), arts, testLog())
	out, err := adapter.Transform(bg(), []models.LiveSnapshot{snapshot("A", "B", 1, 0)}, history(), nil)
	require.NoError(t, err)

	require.Equal(t, 2, out.Rows())
	assert.Equal(t, arts.Schema.Features, out.ColumnsByRole(features.RoleFeature))
	assert.Empty(t, out.ColumnsByRole(features.RoleLabel))
	assert.Equal(t, []string{"fixture_id", "timestamp"}, out.ColumnsByRole(features.RoleKey))

	a := rowOf(t, out, 99, "A")
	b := rowOf(t, out, 99, "B")
	assert.InDelta(t, 2.0, unscaled(t, arts, out, "recent_wins", a), 1e-9)
	assert.InDelta(t, 1.0, unscaled(t, arts, out, "recent_draws", a), 1e-9)
	assert.InDelta(t, 2.0, unscaled(t, arts, out, "recent_losses", b), 1e-9)

	// Final table: A 7, C 4, B 0.
	assert.InDelta(t, 7.0, unscaled(t, arts, out, "team_points", a), 1e-9)
	assert.InDelta(t, 1.0, unscaled(t, arts, out, "team_rank", a), 1e-9)
	assert.InDelta(t, 3.0, unscaled(t, arts, out, "opponent_rank", a), 1e-9)
	assert.InDelta(t, -2.0, unscaled(t, arts, out, "team_rank_dif", a), 1e-9)

	// 4-3-3 won two of three; sides facing 4-4-2 won both.
	assert.InDelta(t, 2.0/3.0, unscaled(t, arts, out, "team_form_win_rate", a), 1e-9)
	assert.InDelta(t, 0.0, unscaled(t, arts, out, "opponent_form_win_rate", a), 1e-9)
}

func TestLiveAdapter_StandingOverrides(t *testing.T) {
	_, arts := fitLive(t)
	adapter := NewLiveAdapter(features.DefaultPolicy(), arts, testLog())

	overrides := map[string]models.TeamStanding{"B": {Rank: 1, Points: 30}}
	out, err := adapter.Transform(bg(), []models.LiveSnapshot{snapshot("A", "B", 0, 0)}, history(), overrides)
	require.NoError(t, err)

	a := rowOf(t, out, 99, "A")
	assert.InDelta(t, 30.0, unscaled(t, arts, out, "opponent_points", a), 1e-9)
	assert.InDelta(t, 7.0, unscaled(t, arts, out, "team_points", a), 1e-9)
}

func TestLiveAdapter_UnknownCategories(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   func() models.LiveSnapshot
		adjust     func(arts *encoding.Artifacts)
		wantColumn string
		wantValue  string
	}{
		{
			name:       "unseen team",
			snapshot:   func() models.LiveSnapshot { return snapshot("A", "Z", 0, 0) },
			wantColumn: "team",
			wantValue:  "Z",
		},
		{
			name:       "unseen opponent",
			snapshot:   func() models.LiveSnapshot { return snapshot("A", "C", 0, 0) },
			adjust:     func(arts *encoding.Artifacts) { arts.Opponent = encoding.FitLabelEncoder("opponent", []string{"A", "B"}) },
			wantColumn: "opponent",
			wantValue:  "C",
		},
		{
			name: "unseen team formation",
			snapshot: func() models.LiveSnapshot {
				s := snapshot("A", "B", 0, 0)
				s.Match.Home.Formation = "5-4-1"
				return s
			},
			wantColumn: "team_formation",
			wantValue:  "5-4-1",
		},
		{
			name:     "unseen opponent formation",
			snapshot: func() models.LiveSnapshot { return snapshot("A", "C", 0, 0) },
			adjust: func(arts *encoding.Artifacts) {
				arts.OpponentFormation = encoding.FitLabelEncoder("opponent_formation", []string{"4-3-3", "4-4-2"})
			},
			wantColumn: "opponent_formation",
			wantValue:  "3-5-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, arts := fitLive(t)
			if tt.adjust != nil {
				tt.adjust(arts)
			}
			adapter := NewLiveAdapter(features.DefaultPolicy(), arts, testLog())

			_, err := adapter.Transform(bg(), []models.LiveSnapshot{tt.snapshot()}, history(), nil)

			var unknown *models.UnknownCategoryError
			require.True(t, errors.As(err, &unknown), "got %v", err)
			assert.Equal(t, tt.wantColumn, unknown.Column)
			assert.Equal(t, tt.wantValue, unknown.Value)
		})
	}
}

func TestLiveAdapter_ScalerColumnDrift(t *testing.T) {
	tests := []struct {
		name           string
		adjust         func(s *encoding.StandardScaler)
		wantMissing    []string
		wantUnexpected []string
	}{
		{
			name: "scaler lost its last column",
			adjust: func(s *encoding.StandardScaler) {
				n := len(s.Columns) - 1
				s.Columns, s.Mean, s.Scale = s.Columns[:n], s.Mean[:n], s.Scale[:n]
			},
			wantUnexpected: []string{LiveScaledColumns()[len(LiveScaledColumns())-1]},
		},
		{
			name: "scaler carries a retired column",
			adjust: func(s *encoding.StandardScaler) {
				s.Columns = append(append([]string{}, s.Columns...), "team_expected_goals")
				s.Mean = append(append([]float64{}, s.Mean...), 50)
				s.Scale = append(append([]float64{}, s.Scale...), 1)
			},
			wantMissing: []string{"team_expected_goals"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, arts := fitLive(t)
			tt.adjust(arts.Scaler)
			adapter := NewLiveAdapter(features.DefaultPolicy(), arts, testLog())

			out, err := adapter.Transform(bg(), []models.LiveSnapshot{snapshot("A", "B", 1, 0)}, history(), nil)

			assert.Nil(t, out)
			var mismatch *models.ColumnMismatchError
			require.True(t, errors.As(err, &mismatch), "got %v", err)
			assert.Equal(t, "scaler", mismatch.Context)
			assert.Equal(t, tt.wantMissing, mismatch.Missing)
			assert.Equal(t, tt.wantUnexpected, mismatch.Unexpected)
		})
	}
}

func TestLiveAdapter_Empty(t *testing.T) {
	_, arts := fitLive(t)
	adapter := NewLiveAdapter(features.DefaultPolicy(), arts, testLog())

	_, err := adapter.Transform(bg(), nil, history(), nil)
	assert.ErrorIs(t, err, models.ErrNoMatches)
}
