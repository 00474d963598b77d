package pipeline

import (
	"context"
	"math"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

const dateLayout = "2006-01-02"

// sideStat names a per-side statistic and reads it.
type sideStat struct {
	name string
	get  func(models.SideStats) float64
}

// matchStats are the per-side statistics carried through the pre-match and live pipelines.
var matchStats = []sideStat{
	{"shots", func(s models.SideStats) float64 { return s.Shots }},
	{"shots_on_target", func(s models.SideStats) float64 { return s.ShotsOnTarget }},
	{"goalkeeper_saves", func(s models.SideStats) float64 { return s.GoalkeeperSaves }},
	{"possession", func(s models.SideStats) float64 { return s.Possession }},
	{"corners", func(s models.SideStats) float64 { return s.Corners }},
	{"fouls", func(s models.SideStats) float64 { return s.Fouls }},
	{"yellow_cards", func(s models.SideStats) float64 { return s.YellowCards }},
	{"red_cards", func(s models.SideStats) float64 { return s.RedCards }},
	{"offsides", func(s models.SideStats) float64 { return s.Offsides }},
	{"attempted_passes", func(s models.SideStats) float64 { return s.AttemptedPasses }},
	{"successful_passes", func(s models.SideStats) float64 { return s.SuccessfulPasses }},
}

func teamGroup(r features.TeamMatchRow) string {
	return features.GroupKey(r.League, r.Season, r.Team)
}

func opponentGroup(r features.TeamMatchRow) string {
	return features.GroupKey(r.League, r.Season, r.Opponent)
}

func observe(rows []features.TeamMatchRow, group func(features.TeamMatchRow) string, value func(features.TeamMatchRow) float64) []features.Observation {
	obs := make([]features.Observation, len(rows))
	for i, r := range rows {
		obs[i] = features.Observation{Group: group(r), Date: r.Date, Seq: r.Seq, Value: value(r), Fixture: r.FixtureID}
	}
	return obs
}

func rolling(ctx context.Context, spec features.RollingWindowSpec, rows []features.TeamMatchRow, workers int,
	group func(features.TeamMatchRow) string, value func(features.TeamMatchRow) float64) ([]float64, error) {
	return spec.Apply(ctx, observe(rows, group, value), workers)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
