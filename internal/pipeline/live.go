package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/encoding"
	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/metrics"
	"github.com/stitts-dev/match-features/internal/models"
)

// LiveLabel is 1 when the team is ahead at the snapshot, 0 otherwise.
const LiveLabel = "team_win"

// liveSideColumns are the per-side in-play statistics, prefixed team_ or opponent_.
var liveSideColumns = []sideStat{
	{"shots_on_target", func(s models.SideStats) float64 { return s.ShotsOnTarget }},
	{"shots", func(s models.SideStats) float64 { return s.Shots }},
	{"fouls", func(s models.SideStats) float64 { return s.Fouls }},
	{"corners", func(s models.SideStats) float64 { return s.Corners }},
	{"offsides", func(s models.SideStats) float64 { return orZero(s.Offsides) }},
	{"possession", func(s models.SideStats) float64 { return s.Possession }},
	{"yellow_cards", func(s models.SideStats) float64 { return orZero(s.YellowCards) }},
	{"red_cards", func(s models.SideStats) float64 { return orZero(s.RedCards) }},
	{"saves", func(s models.SideStats) float64 { return orZero(s.GoalkeeperSaves) }},
	{"pass_accuracy", func(s models.SideStats) float64 {
		return features.SafeRatio(s.SuccessfulPasses, orZero(s.AttemptedPasses))
	}},
}

// encodedColumns are label-encoded with persisted encoders.
var encodedColumns = []string{"team", "opponent", "team_formation", "opponent_formation"}

// LiveScaledColumns are standardized with the persisted scaler, in this order.
func LiveScaledColumns() []string {
	cols := []string{"team_form_win_rate", "opponent_form_win_rate"}
	for _, prefix := range []string{"team_", "opponent_"} {
		for _, c := range liveSideColumns {
			cols = append(cols, prefix+c.name)
		}
	}
	return append(cols,
		"recent_wins", "recent_draws", "recent_losses",
		"team_rank", "opponent_rank", "team_points", "opponent_points",
		"team_rank_dif", "opponent_rank_dif", "team_points_dif", "opponent_points_dif",
	)
}

// LiveFeatureColumns is the ordered feature list handed to the live model.
func LiveFeatureColumns() []string {
	cols := []string{"season", "league", "game_week", "team", "opponent", "is_home", "team_formation", "opponent_formation"}
	return append(cols, LiveScaledColumns()...)
}

// sideStanding is a row's rank and points for both participants.
type sideStanding struct {
	teamRank, teamPoints, oppRank, oppPoints float64
}

// liveInputs carries the per-row derived values of a live table.
type liveInputs struct {
	rows       []features.TeamMatchRow
	standings  []sideStanding
	teamForm   []float64
	oppForm    []float64
	wins       []float64
	draws      []float64
	losses     []float64
	timestamps []string
	withLabel  bool
}

// buildLiveTable assembles the unencoded, unscaled live table.
func buildLiveTable(in liveInputs) *features.Table {
	rows := in.rows
	n := len(rows)
	t := features.NewTable(n)

	t.AddNumeric("fixture_id", features.RoleKey, mapRows(rows, func(r features.TeamMatchRow) float64 { return float64(r.FixtureID) }))
	if in.timestamps != nil {
		t.AddCategorical("timestamp", features.RoleKey, in.timestamps)
	} else {
		t.AddCategorical("date", features.RoleKey, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Date.Format(dateLayout) }))
	}
	t.AddCategorical("team_name", features.RoleAudit, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Team }))
	t.AddCategorical("opponent_name", features.RoleAudit, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Opponent }))

	t.AddCategorical("season", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Season }))
	t.AddCategorical("league", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.League }))
	t.AddNumeric("game_week", features.RoleFeature, mapRows(rows, func(r features.TeamMatchRow) float64 { return r.GameWeek }))
	t.AddCategorical("team", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Team }))
	t.AddCategorical("opponent", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return r.Opponent }))
	t.AddNumeric("is_home", features.RoleFeature, mapRows(rows, func(r features.TeamMatchRow) float64 { return boolFloat(r.IsHome) }))
	t.AddCategorical("team_formation", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return formationOf(r.Own) }))
	t.AddCategorical("opponent_formation", features.RoleFeature, mapRowStrings(rows, func(r features.TeamMatchRow) string { return formationOf(r.Opp) }))

	t.AddNumeric("team_form_win_rate", features.RoleFeature, in.teamForm)
	t.AddNumeric("opponent_form_win_rate", features.RoleFeature, in.oppForm)
	for _, c := range liveSideColumns {
		get := c.get
		t.AddNumeric("team_"+c.name, features.RoleFeature, mapRows(rows, func(r features.TeamMatchRow) float64 { return get(r.Own) }))
		t.AddNumeric("opponent_"+c.name, features.RoleFeature, mapRows(rows, func(r features.TeamMatchRow) float64 { return get(r.Opp) }))
	}
	t.AddNumeric("recent_wins", features.RoleFeature, in.wins)
	t.AddNumeric("recent_draws", features.RoleFeature, in.draws)
	t.AddNumeric("recent_losses", features.RoleFeature, in.losses)

	teamRank := make([]float64, n)
	oppRank := make([]float64, n)
	teamPoints := make([]float64, n)
	oppPoints := make([]float64, n)
	rankDif := make([]float64, n)
	oppRankDif := make([]float64, n)
	pointsDif := make([]float64, n)
	oppPointsDif := make([]float64, n)
	for i, s := range in.standings {
		teamRank[i], oppRank[i] = s.teamRank, s.oppRank
		teamPoints[i], oppPoints[i] = s.teamPoints, s.oppPoints
		rankDif[i] = s.teamRank - s.oppRank
		oppRankDif[i] = -rankDif[i]
		pointsDif[i] = s.teamPoints - s.oppPoints
		oppPointsDif[i] = -pointsDif[i]
	}
	t.AddNumeric("team_rank", features.RoleFeature, teamRank)
	t.AddNumeric("opponent_rank", features.RoleFeature, oppRank)
	t.AddNumeric("team_points", features.RoleFeature, teamPoints)
	t.AddNumeric("opponent_points", features.RoleFeature, oppPoints)
	t.AddNumeric("team_rank_dif", features.RoleFeature, rankDif)
	t.AddNumeric("opponent_rank_dif", features.RoleFeature, oppRankDif)
	t.AddNumeric("team_points_dif", features.RoleFeature, pointsDif)
	t.AddNumeric("opponent_points_dif", features.RoleFeature, oppPointsDif)

	if in.withLabel {
		t.AddNumeric(LiveLabel, features.RoleLabel, mapRows(rows, teamWin))
	}
	return t
}

func formationOf(s models.SideStats) string {
	if s.Formation == "" {
		return UnknownFormation
	}
	return s.Formation
}

// teamWin is 1 when the team leads, 0 otherwise, NaN without a score.
func teamWin(r features.TeamMatchRow) float64 {
	if math.IsNaN(r.Own.Goals) || math.IsNaN(r.Opp.Goals) {
		return math.NaN()
	}
	return boolFloat(r.Own.Goals > r.Opp.Goals)
}

// applyArtifacts encodes, scales and orders a raw live table.
func applyArtifacts(t *features.Table, arts *encoding.Artifacts) (*features.Table, error) {
	encoders := map[string]*encoding.LabelEncoder{
		"team":               arts.Team,
		"opponent":           arts.Opponent,
		"team_formation":     arts.TeamFormation,
		"opponent_formation": arts.OpponentFormation,
	}
	for _, name := range encodedColumns {
		values, err := t.String(name)
		if err != nil {
			return nil, err
		}
		codes, err := encoders[name].Transform(values)
		if err != nil {
			return nil, err
		}
		t.AddNumeric(name, features.RoleFeature, codes)
	}

	if err := arts.Scaler.CheckColumns(LiveScaledColumns()); err != nil {
		return nil, err
	}
	scaled, err := arts.Scaler.Transform(t)
	if err != nil {
		return nil, err
	}

	keep := append(scaled.ColumnsByRole(features.RoleKey), scaled.ColumnsByRole(features.RoleAudit)...)
	keep = append(keep, arts.Schema.Features...)
	keep = append(keep, scaled.ColumnsByRole(features.RoleLabel)...)
	out, err := scaled.Select(keep...)
	if err != nil {
		return nil, err
	}
	if err := models.CompareColumns("live feature", arts.Schema.Features, out.ColumnsByRole(features.RoleFeature)); err != nil {
		return nil, err
	}
	return out, nil
}

// recentForm counts wins, draws and losses over each team's last window fixtures.
func recentForm(ctx context.Context, obsFor func(want models.Result) []features.Observation, window, workers int) (wins, draws, losses []float64, err error) {
	spec := features.RollingWindowSpec{Window: window, MinPeriods: 0, Agg: features.AggSum}
	counts := make([][]float64, 3)
	for i, want := range []models.Result{models.ResultWin, models.ResultDraw, models.ResultLoss} {
		counts[i], err = spec.Apply(ctx, obsFor(want), workers)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to compute recent %s count: %w", want, err)
		}
	}
	return counts[0], counts[1], counts[2], nil
}

// LiveProcessor builds the live training table and fits its artifacts.
type LiveProcessor struct {
	policy features.Policy
	log    *logrus.Entry
}

func NewLiveProcessor(policy features.Policy, log *logrus.Entry) *LiveProcessor {
	return &LiveProcessor{policy: policy, log: log.WithField("pipeline", "live")}
}

// Fit derives causal live features from completed matches, fits the encoders and
// the scaler on the complete rows, and returns the transformed table.
func (p *LiveProcessor) Fit(ctx context.Context, matches []models.MatchRecord) (*features.Table, *encoding.Artifacts, error) {
	if len(matches) == 0 {
		return nil, nil, models.ErrNoMatches
	}
	start := time.Now()
	workers := p.policy.Workers
	rows := features.ExpandAll(matches)
	report := features.NewHistoryReport()

	standings, err := features.SimulateStandings(ctx, matches, workers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to simulate standings: %w", err)
	}
	sides := make([]sideStanding, len(rows))
	for i, r := range rows {
		var s sideStanding
		s.teamPoints, s.teamRank, s.oppPoints, s.oppRank = standings[i/2].Side(r.IsHome)
		sides[i] = s
	}

	// Formation win rates are expanding means over earlier fixtures only.
	expanding := features.RollingWindowSpec{Window: 0, MinPeriods: 1, Agg: features.AggMean}
	teamForm, err := rolling(ctx, expanding, rows, workers,
		func(r features.TeamMatchRow) string { return formationOf(r.Own) }, teamWin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute formation win rate: %w", err)
	}
	oppForm, err := rolling(ctx, expanding, rows, workers,
		func(r features.TeamMatchRow) string { return formationOf(r.Opp) }, teamWin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute opponent formation win rate: %w", err)
	}
	for i, v := range oppForm {
		oppForm[i] = 1 - v
	}
	report.FillDefault("team_form_win_rate", teamForm, features.DefaultFormWinRate)
	report.FillDefault("opponent_form_win_rate", oppForm, features.DefaultFormWinRate)

	wins, draws, losses, err := recentForm(ctx, func(want models.Result) []features.Observation {
		return observe(rows, func(r features.TeamMatchRow) string { return r.Team },
			func(r features.TeamMatchRow) float64 { return r.Result.Indicator(want) })
	}, p.policy.FormWindow, workers)
	if err != nil {
		return nil, nil, err
	}

	raw := buildLiveTable(liveInputs{
		rows: rows, standings: sides, teamForm: teamForm, oppForm: oppForm,
		wins: wins, draws: draws, losses: losses, withLabel: true,
	})
	ordered := raw.Take(features.Chronological(rows))
	complete := ordered.Filter(ordered.CompleteRows(append(LiveFeatureColumns(), LiveLabel)...))
	report.AddDropped(ordered.Rows() - complete.Rows())
	if complete.Rows() == 0 {
		return nil, nil, fmt.Errorf("no complete live rows: %w", models.ErrNoMatches)
	}

	arts := &encoding.Artifacts{Schema: &encoding.FeatureSchema{Features: LiveFeatureColumns(), Label: LiveLabel}}
	targets := []struct {
		column string
		dst    **encoding.LabelEncoder
	}{
		{"team", &arts.Team},
		{"opponent", &arts.Opponent},
		{"team_formation", &arts.TeamFormation},
		{"opponent_formation", &arts.OpponentFormation},
	}
	for _, tgt := range targets {
		values, err := complete.String(tgt.column)
		if err != nil {
			return nil, nil, err
		}
		*tgt.dst = encoding.FitLabelEncoder(tgt.column, values)
	}
	arts.Scaler, err = encoding.FitScaler(complete, LiveScaledColumns())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit scaler: %w", err)
	}

	out, err := applyArtifacts(complete, arts)
	if err != nil {
		return nil, nil, err
	}

	report.Log(p.log)
	metrics.RecordHistory("live", report.Defaulted(), report.Dropped())
	metrics.RowsProduced.WithLabelValues("live").Add(float64(out.Rows()))
	p.log.WithFields(logrus.Fields{
		"matches":  len(matches),
		"rows":     out.Rows(),
		"dropped":  report.Dropped(),
		"teams":    len(arts.Team.Classes),
		"duration": time.Since(start),
	}).Info("Built live training table")

	return out, arts, nil
}

// LiveAdapter reshapes in-play snapshots into the live training schema using
// persisted artifacts. It never refits an encoder or the scaler.
type LiveAdapter struct {
	policy    features.Policy
	artifacts *encoding.Artifacts
	log       *logrus.Entry
}

func NewLiveAdapter(policy features.Policy, arts *encoding.Artifacts, log *logrus.Entry) *LiveAdapter {
	return &LiveAdapter{policy: policy, artifacts: arts, log: log.WithField("pipeline", "live")}
}

// Transform builds the feature table for snapshots against the historical matches.
// Standings come from the history's final table for the snapshot's league season;
// overrides, keyed by team, take precedence.
func (a *LiveAdapter) Transform(ctx context.Context, snapshots []models.LiveSnapshot, history []models.MatchRecord, overrides map[string]models.TeamStanding) (*features.Table, error) {
	if len(snapshots) == 0 {
		return nil, models.ErrNoMatches
	}
	workers := a.policy.Workers

	live := make([]models.MatchRecord, len(snapshots))
	timestamps := make([]string, 0, 2*len(snapshots))
	for i, s := range snapshots {
		live[i] = s.Match
		live[i].Seq = len(history) + i
		timestamps = append(timestamps, s.Timestamp, s.Timestamp)
	}
	rows := features.ExpandAll(live)
	histRows := features.ExpandAll(history)

	tables, err := features.FinalStandings(ctx, history, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to compute standings: %w", err)
	}
	lookup := func(r features.TeamMatchRow, team string) models.TeamStanding {
		if s, ok := overrides[team]; ok {
			return s
		}
		return tables[features.Partition{League: r.League, Season: r.Season}].Lookup(team)
	}
	sides := make([]sideStanding, len(rows))
	for i, r := range rows {
		team, opp := lookup(r, r.Team), lookup(r, r.Opponent)
		sides[i] = sideStanding{teamRank: team.Rank, teamPoints: team.Points, oppRank: opp.Rank, oppPoints: opp.Points}
	}

	teamRates, oppRates := formationWinRates(histRows)
	teamForm := make([]float64, len(rows))
	oppForm := make([]float64, len(rows))
	for i, r := range rows {
		teamForm[i] = rateOrDefault(teamRates, formationOf(r.Own))
		oppForm[i] = rateOrDefault(oppRates, formationOf(r.Opp))
	}

	// Snapshot rows are probes: they see the history but never enter it.
	wins, draws, losses, err := recentForm(ctx, func(want models.Result) []features.Observation {
		byTeam := func(r features.TeamMatchRow) string { return r.Team }
		value := func(r features.TeamMatchRow) float64 { return r.Result.Indicator(want) }
		obs := observe(histRows, byTeam, value)
		for _, o := range observe(rows, byTeam, value) {
			o.Probe = true
			obs = append(obs, o)
		}
		return obs
	}, a.policy.FormWindow, workers)
	if err != nil {
		return nil, err
	}
	offset := len(histRows)
	wins, draws, losses = wins[offset:], draws[offset:], losses[offset:]

	raw := buildLiveTable(liveInputs{
		rows: rows, standings: sides, teamForm: teamForm, oppForm: oppForm,
		wins: wins, draws: draws, losses: losses, timestamps: timestamps,
	})
	out, err := applyArtifacts(raw, a.artifacts)
	if err != nil {
		return nil, err
	}

	metrics.RowsProduced.WithLabelValues("live_inference").Add(float64(out.Rows()))
	a.log.WithFields(logrus.Fields{
		"snapshots": len(snapshots),
		"history":   len(history),
		"rows":      out.Rows(),
	}).Info("Adapted live snapshots")
	return out, nil
}

// formationWinRates returns, over all of history, the team win rate by team
// formation and one minus the team win rate by opponent formation.
func formationWinRates(rows []features.TeamMatchRow) (team, opponent map[string]float64) {
	type acc struct{ sum, n float64 }
	byTeam := make(map[string]*acc)
	byOpp := make(map[string]*acc)
	add := func(m map[string]*acc, key string, v float64) {
		a, ok := m[key]
		if !ok {
			a = &acc{}
			m[key] = a
		}
		a.sum += v
		a.n++
	}
	for _, r := range rows {
		w := teamWin(r)
		if math.IsNaN(w) {
			continue
		}
		add(byTeam, formationOf(r.Own), w)
		add(byOpp, formationOf(r.Opp), w)
	}

	team = make(map[string]float64, len(byTeam))
	for k, a := range byTeam {
		team[k] = a.sum / a.n
	}
	opponent = make(map[string]float64, len(byOpp))
	for k, a := range byOpp {
		opponent[k] = 1 - a.sum/a.n
	}
	return team, opponent
}

func rateOrDefault(rates map[string]float64, formation string) float64 {
	if v, ok := rates[formation]; ok {
		return v
	}
	return features.DefaultFormWinRate
}
