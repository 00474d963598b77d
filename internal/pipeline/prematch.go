package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/metrics"
	"github.com/stitts-dev/match-features/internal/models"
)

// PreMatchLabel is the outcome column of the pre-match table.
const PreMatchLabel = "team_result"

// PreMatchCategorical are the categorical feature columns of the pre-match table.
var PreMatchCategorical = []string{
	"league", "season", "team_name", "opponent_name", "team_formation", "opponent_formation",
}

// PreMatchProcessor builds one causal feature row per team per fixture.
type PreMatchProcessor struct {
	policy features.Policy
	log    *logrus.Entry
}

func NewPreMatchProcessor(policy features.Policy, log *logrus.Entry) *PreMatchProcessor {
	return &PreMatchProcessor{policy: policy, log: log.WithField("pipeline", "prematch")}
}

// Process cleans and expands matches and derives every pre-match feature. The
// returned table is in chronological order.
func (p *PreMatchProcessor) Process(ctx context.Context, matches []models.MatchRecord) (*features.Table, *features.HistoryReport, error) {
	if len(matches) == 0 {
		return nil, nil, models.ErrNoMatches
	}
	start := time.Now()
	workers := p.policy.Workers
	report := features.NewHistoryReport()

	cleaned := CleanMatches(matches)
	rows := features.ExpandAll(cleaned)
	n := len(rows)

	form := features.RollingWindowSpec{Window: p.policy.FormWindow, MinPeriods: 1, Agg: features.AggMean}
	winRate, err := rolling(ctx, form, rows, workers, teamGroup, func(r features.TeamMatchRow) float64 { return r.Result.Score() })
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute recent win rate: %w", err)
	}
	goalsFor, err := rolling(ctx, form, rows, workers, teamGroup, func(r features.TeamMatchRow) float64 { return r.Own.Goals })
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute average goals for: %w", err)
	}
	goalsAgainst, err := rolling(ctx, form, rows, workers, teamGroup, func(r features.TeamMatchRow) float64 { return r.Opp.Goals })
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute average goals against: %w", err)
	}
	goalDiff := make([]float64, n)
	for i := range rows {
		goalDiff[i] = goalsFor[i] - goalsAgainst[i]
	}
	report.FillDefault("recent_win_rate", winRate, features.DefaultFormWinRate)
	report.FillDefault("avg_goals_for", goalsFor, features.DefaultRollingValue)
	report.FillDefault("avg_goals_against", goalsAgainst, features.DefaultRollingValue)
	report.FillDefault("goal_difference", goalDiff, features.DefaultRollingValue)

	oppWinRate := make([]float64, n)
	oppGoalsFor := make([]float64, n)
	oppGoalDiff := make([]float64, n)
	for i, r := range rows {
		oppWinRate[i] = winRate[r.Pair]
		oppGoalsFor[i] = goalsFor[r.Pair]
		oppGoalDiff[i] = goalDiff[r.Pair]
	}

	standings, err := features.SimulateStandings(ctx, cleaned, workers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to simulate standings: %w", err)
	}
	teamPoints := make([]float64, n)
	oppPoints := make([]float64, n)
	teamRank := make([]float64, n)
	oppRank := make([]float64, n)
	for i, r := range rows {
		teamPoints[i], teamRank[i], oppPoints[i], oppRank[i] = standings[i/2].Side(r.IsHome)
	}

	h2h := features.HeadToHead(rows, p.policy.H2HWindow)
	h2hWin := make([]float64, n)
	h2hDraw := make([]float64, n)
	h2hLoss := make([]float64, n)
	for i, rates := range h2h {
		h2hWin[i], h2hDraw[i], h2hLoss[i] = rates.Win, rates.Draw, rates.Loss
	}
	report.FillDefault("h2h_win_rate", h2hWin, features.DefaultH2HWinRate)
	report.FillDefault("h2h_draw_rate", h2hDraw, features.DefaultH2HDrawRate)
	report.FillDefault("h2h_loss_rate", h2hLoss, features.DefaultH2HLossRate)

	t := features.NewTable(n)
	t.AddNumeric("fixture_id", features.RoleKey, mapRows(rows, func(r features.TeamMatchRow) float64 { return float64(r.FixtureID) }))
	t.AddCategorical("date", features.RoleKey, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Date.Format(dateLayout) }))
	t.AddCategorical("league", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.League }))
	t.AddCategorical("season", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Season }))
	t.AddCategorical("team_name", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Team }))
	t.AddCategorical("opponent_name", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Opponent }))
	t.AddCategorical("team_formation", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Own.Formation }))
	t.AddCategorical("opponent_formation", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Opp.Formation }))
	t.AddNumeric("is_home", features.RoleFeature, mapRows(rows, func(r features.TeamMatchRow) float64 { return boolFloat(r.IsHome) }))
	t.AddNumeric("recent_win_rate", features.RoleFeature, winRate)
	t.AddNumeric("avg_goals_for", features.RoleFeature, goalsFor)
	t.AddNumeric("avg_goals_against", features.RoleFeature, goalsAgainst)
	t.AddNumeric("goal_difference", features.RoleFeature, goalDiff)
	t.AddNumeric("opponent_recent_win_rate", features.RoleFeature, oppWinRate)
	t.AddNumeric("opponent_avg_goals_for", features.RoleFeature, oppGoalsFor)
	t.AddNumeric("opponent_goal_difference", features.RoleFeature, oppGoalDiff)
	t.AddNumeric("team_points", features.RoleFeature, teamPoints)
	t.AddNumeric("opponent_points", features.RoleFeature, oppPoints)
	t.AddNumeric("team_rank", features.RoleFeature, teamRank)
	t.AddNumeric("opponent_rank", features.RoleFeature, oppRank)
	t.AddNumeric("h2h_win_rate", features.RoleFeature, h2hWin)
	t.AddNumeric("h2h_draw_rate", features.RoleFeature, h2hDraw)
	t.AddNumeric("h2h_loss_rate", features.RoleFeature, h2hLoss)

	// Team statistics roll per team; opponent statistics roll per opponent faced.
	for _, stat := range matchStats {
		get := stat.get
		teamAvg, err := rolling(ctx, form, rows, workers, teamGroup, func(r features.TeamMatchRow) float64 { return get(r.Own) })
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compute team_%s_avg: %w", stat.name, err)
		}
		oppAvg, err := rolling(ctx, form, rows, workers, opponentGroup, func(r features.TeamMatchRow) float64 { return get(r.Opp) })
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compute opponent_%s_avg: %w", stat.name, err)
		}
		report.FillDefault("team_"+stat.name+"_avg", teamAvg, features.DefaultRollingValue)
		report.FillDefault("opponent_"+stat.name+"_avg", oppAvg, features.DefaultRollingValue)
		t.AddNumeric("team_"+stat.name+"_avg", features.RoleFeature, teamAvg)
		t.AddNumeric("opponent_"+stat.name+"_avg", features.RoleFeature, oppAvg)
	}

	t.AddCategorical(PreMatchLabel, features.RoleLabel, mapRowStrings(rows, func(r features.TeamMatchRow) string { return string(r.Result) }))

	out := t.Take(features.Chronological(rows))

	report.Log(p.log)
	metrics.RecordHistory("prematch", report.Defaulted(), report.Dropped())
	metrics.RowsProduced.WithLabelValues("prematch").Add(float64(out.Rows()))
	p.log.WithFields(logrus.Fields{
		"matches":  len(matches),
		"rows":     out.Rows(),
		"features": len(out.ColumnsByRole(features.RoleFeature)),
		"duration": time.Since(start),
	}).Info("Built pre-match feature table")

	return out, report, nil
}

func mapRows(rows []features.TeamMatchRow, f func(features.TeamMatchRow) float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return out
}

func mapRowStrings(rows []features.TeamMatchRow, f func(features.TeamMatchRow) string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return out
}
