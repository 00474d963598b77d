package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/match-features/internal/encoding"
	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/metrics"
	"github.com/stitts-dev/match-features/internal/models"
)

// FatigueLabel is 1 when enough fatigue signals fire for a player fixture.
const FatigueLabel = "is_fatigued"

// UnknownPosition replaces a missing position.
const UnknownPosition = "Unknown"

// Signal thresholds. A ratio below its threshold counts as one hit.
const (
	PassDropThreshold     = 0.6
	DuelDropThreshold     = 0.6
	AccuracyDropThreshold = 0.8

	// FatiguedThreshold is the number of hits, over both scores, that marks fatigue.
	FatiguedThreshold = 3
)

// FatigueSignals are a player's current values relative to a reference level.
type FatigueSignals struct {
	Passes   float64
	Duels    float64
	Accuracy float64
}

// Score counts the signals below their thresholds.
func (s FatigueSignals) Score() int {
	score := 0
	if s.Passes < PassDropThreshold {
		score++
	}
	if s.Duels < DuelDropThreshold {
		score++
	}
	if s.Accuracy < AccuracyDropThreshold {
		score++
	}
	return score
}

// IsFatigued combines the baseline score and the positional group score.
func IsFatigued(score, groupScore int) bool {
	return score+groupScore >= FatiguedThreshold
}

type playerStat struct {
	name string
	get  func(models.PlayerFixtureStats) float64
}

// baselineStats get a causal per-player baseline, named <stat>_avg5.
var baselineStats = []playerStat{
	{"games_minutes", func(p models.PlayerFixtureStats) float64 { return p.Minutes }},
	{"shots_total", func(p models.PlayerFixtureStats) float64 { return p.ShotsTotal }},
	{"shots_on", func(p models.PlayerFixtureStats) float64 { return p.ShotsOn }},
	{"goals_total", func(p models.PlayerFixtureStats) float64 { return p.GoalsTotal }},
	{"goals_assists", func(p models.PlayerFixtureStats) float64 { return p.GoalsAssists }},
	{"passes_total", func(p models.PlayerFixtureStats) float64 { return p.PassesTotal }},
	{"passes_key", func(p models.PlayerFixtureStats) float64 { return p.PassesKey }},
	{"passes_accuracy", func(p models.PlayerFixtureStats) float64 { return p.PassesAccuracy }},
	{"tackles_total", func(p models.PlayerFixtureStats) float64 { return p.TacklesTotal }},
	{"tackles_blocks", func(p models.PlayerFixtureStats) float64 { return p.TacklesBlocks }},
	{"tackles_interceptions", func(p models.PlayerFixtureStats) float64 { return p.TacklesInterceptions }},
	{"duels_total", func(p models.PlayerFixtureStats) float64 { return p.DuelsTotal }},
	{"duels_won", func(p models.PlayerFixtureStats) float64 { return p.DuelsWon }},
	{"dribbles_attempts", func(p models.PlayerFixtureStats) float64 { return p.DribblesAttempts }},
	{"dribbles_success", func(p models.PlayerFixtureStats) float64 { return p.DribblesSuccess }},
	{"fouls_drawn", func(p models.PlayerFixtureStats) float64 { return p.FoulsDrawn }},
	{"fouls_committed", func(p models.PlayerFixtureStats) float64 { return p.FoulsCommitted }},
	{"cards_yellow", func(p models.PlayerFixtureStats) float64 { return p.CardsYellow }},
	{"cards_red", func(p models.PlayerFixtureStats) float64 { return p.CardsRed }},
}

// Baselines kept for audit only; the model never sees them.
var auditBaselines = map[string]bool{
	"passes_accuracy_avg5":   true,
	"duels_total_avg5":       true,
	"dribbles_attempts_avg5": true,
}

// FatigueFeatureColumns is the ordered feature list handed to the fatigue model.
func FatigueFeatureColumns() []string {
	var cols []string
	for _, s := range baselineStats {
		if name := s.name + "_avg5"; !auditBaselines[name] {
			cols = append(cols, name)
		}
	}
	return append(cols,
		"passes_drop_ratio", "duels_drop_ratio", "accuracy_drop_ratio",
		"passes_trend", "duels_trend", "accuracy_trend",
		"passes_accuracy", "position",
	)
}

// FatigueProcessor derives per-player fatigue features and labels.
type FatigueProcessor struct {
	policy features.Policy
	log    *logrus.Entry
}

func NewFatigueProcessor(policy features.Policy, log *logrus.Entry) *FatigueProcessor {
	return &FatigueProcessor{policy: policy, log: log.WithField("pipeline", "fatigue")}
}

// Fit builds the fatigue table and fits the position encoder on it.
func (p *FatigueProcessor) Fit(ctx context.Context, stats []models.PlayerFixtureStats) (*features.Table, *encoding.LabelEncoder, error) {
	cleaned := cleanPlayerStats(stats)
	if len(cleaned) == 0 {
		return nil, nil, fmt.Errorf("no player appearances: %w", models.ErrNoMatches)
	}
	positions := make([]string, len(cleaned))
	for i, s := range cleaned {
		positions[i] = s.Position
	}
	enc := encoding.FitLabelEncoder("position", positions)

	t, err := p.build(ctx, cleaned, enc)
	if err != nil {
		return nil, nil, err
	}
	return t, enc, nil
}

// Transform builds the fatigue table with a persisted position encoder.
func (p *FatigueProcessor) Transform(ctx context.Context, stats []models.PlayerFixtureStats, enc *encoding.LabelEncoder) (*features.Table, error) {
	cleaned := cleanPlayerStats(stats)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no player appearances: %w", models.ErrNoMatches)
	}
	return p.build(ctx, cleaned, enc)
}

// cleanPlayerStats drops non-appearances, zero-fills counts and orders rows by
// player then fixture.
func cleanPlayerStats(stats []models.PlayerFixtureStats) []models.PlayerFixtureStats {
	out := make([]models.PlayerFixtureStats, 0, len(stats))
	for _, s := range stats {
		if math.IsNaN(s.SquadNumber) {
			continue
		}
		for _, f := range []*float64{
			&s.Minutes, &s.Rating, &s.ShotsTotal, &s.ShotsOn, &s.GoalsTotal, &s.GoalsAssists,
			&s.PassesTotal, &s.PassesKey, &s.PassesAccuracy, &s.TacklesTotal, &s.TacklesBlocks,
			&s.TacklesInterceptions, &s.DuelsTotal, &s.DuelsWon, &s.DribblesAttempts,
			&s.DribblesSuccess, &s.FoulsDrawn, &s.FoulsCommitted, &s.CardsYellow, &s.CardsRed,
		} {
			*f = orZero(*f)
		}
		if s.Position == "" {
			s.Position = UnknownPosition
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlayerID != out[j].PlayerID {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].FixtureID < out[j].FixtureID
	})
	for i := range out {
		out[i].Seq = i
	}
	return out
}

func playerObservations(stats []models.PlayerFixtureStats, value func(models.PlayerFixtureStats) float64) []features.Observation {
	obs := make([]features.Observation, len(stats))
	for i, s := range stats {
		obs[i] = features.Observation{Group: fmt.Sprint(s.PlayerID), Seq: s.Seq, Value: value(s)}
	}
	return obs
}

func mapStats(stats []models.PlayerFixtureStats, f func(models.PlayerFixtureStats) float64) []float64 {
	out := make([]float64, len(stats))
	for i, s := range stats {
		out[i] = f(s)
	}
	return out
}

func (p *FatigueProcessor) build(ctx context.Context, stats []models.PlayerFixtureStats, enc *encoding.LabelEncoder) (*features.Table, error) {
	start := time.Now()
	workers := p.policy.Workers
	report := features.NewHistoryReport()
	n := len(stats)

	// Games played for zero minutes count as one minute.
	minutes := func(s models.PlayerFixtureStats) float64 {
		if s.Minutes == 0 {
			return 1
		}
		return s.Minutes
	}
	perMinute := func(get func(models.PlayerFixtureStats) float64) []float64 {
		return mapStats(stats, func(s models.PlayerFixtureStats) float64 { return get(s) / minutes(s) })
	}

	t := features.NewTable(n)
	t.AddNumeric("player_id", features.RoleKey, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return float64(s.PlayerID) }))
	t.AddNumeric("fixture_id", features.RoleKey, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return float64(s.FixtureID) }))
	t.AddCategorical("player_name", features.RoleAudit, mapStatStrings(stats, func(s models.PlayerFixtureStats) string { return s.PlayerName }))
	t.AddCategorical("team", features.RoleAudit, mapStatStrings(stats, func(s models.PlayerFixtureStats) string { return s.Team }))
	t.AddCategorical("games_position", features.RoleAudit, mapStatStrings(stats, func(s models.PlayerFixtureStats) string { return s.Position }))

	passesPerMin := perMinute(func(s models.PlayerFixtureStats) float64 { return s.PassesTotal })
	duelsPerMin := perMinute(func(s models.PlayerFixtureStats) float64 { return s.DuelsTotal })
	t.AddNumeric("passes_per_min", features.RoleAudit, passesPerMin)
	t.AddNumeric("duels_per_min", features.RoleAudit, duelsPerMin)
	t.AddNumeric("dribbles_per_min", features.RoleAudit, perMinute(func(s models.PlayerFixtureStats) float64 { return s.DribblesAttempts }))
	t.AddNumeric("fouls_per_min", features.RoleAudit, perMinute(func(s models.PlayerFixtureStats) float64 { return s.FoulsCommitted }))
	t.AddNumeric("contribution_rate", features.RoleAudit, perMinute(func(s models.PlayerFixtureStats) float64 { return s.GoalsTotal + s.GoalsAssists }))
	t.AddNumeric("defensive_actions_per_min", features.RoleAudit, perMinute(func(s models.PlayerFixtureStats) float64 {
		return s.TacklesTotal + s.TacklesBlocks + s.TacklesInterceptions
	}))
	t.AddNumeric("discipline_score", features.RoleAudit, perMinute(func(s models.PlayerFixtureStats) float64 { return s.CardsYellow + 2*s.CardsRed }))
	t.AddNumeric("dribbles_success_rate", features.RoleAudit, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return features.EpsRatio(s.DribblesSuccess, s.DribblesAttempts) }))
	t.AddNumeric("duels_win_rate", features.RoleAudit, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return features.EpsRatio(s.DuelsWon, s.DuelsTotal) }))
	t.AddNumeric("shot_accuracy", features.RoleAudit, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return features.EpsRatio(s.ShotsOn, s.ShotsTotal) }))
	t.AddNumeric("duels_balance", features.RoleAudit, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return s.DuelsTotal - s.DuelsWon }))
	t.AddNumeric("pass_influence", features.RoleAudit, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return features.EpsRatio(s.PassesKey, s.PassesTotal) }))
	t.AddNumeric("dribble_pressure", features.RoleAudit, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return features.EpsRatio(s.DribblesSuccess, s.DuelsTotal) }))

	baseline := features.RollingWindowSpec{
		Window:     p.policy.BaselineWindow,
		MinPeriods: p.policy.BaselineMinHistory,
		Agg:        features.AggMean,
	}
	var baselineCols []string
	for _, s := range baselineStats {
		avg, err := baseline.Apply(ctx, playerObservations(stats, s.get), workers)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s_avg5: %w", s.name, err)
		}
		role := features.RoleFeature
		if auditBaselines[s.name+"_avg5"] {
			role = features.RoleAudit
		}
		t.AddNumeric(s.name+"_avg5", role, avg)
		baselineCols = append(baselineCols, s.name+"_avg5")
	}

	// Trends describe the current match and the two before it, so they include the row.
	trend := features.RollingWindowSpec{Window: p.policy.TrendWindow, MinPeriods: 1, Agg: features.AggDelta, IncludeCurrent: true}
	for _, tr := range []struct {
		name string
		get  func(models.PlayerFixtureStats) float64
	}{
		{"passes_trend", func(s models.PlayerFixtureStats) float64 { return s.PassesTotal }},
		{"duels_trend", func(s models.PlayerFixtureStats) float64 { return s.DuelsTotal }},
		{"accuracy_trend", func(s models.PlayerFixtureStats) float64 { return s.PassesAccuracy }},
	} {
		values, err := trend.Apply(ctx, playerObservations(stats, tr.get), workers)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s: %w", tr.name, err)
		}
		t.AddNumeric(tr.name, features.RoleFeature, values)
	}

	t.AddNumeric("passes_accuracy", features.RoleFeature, mapStats(stats, func(s models.PlayerFixtureStats) float64 { return s.PassesAccuracy }))
	codes, err := enc.Transform(mapStatStrings(stats, func(s models.PlayerFixtureStats) string { return s.Position }))
	if err != nil {
		return nil, err
	}
	t.AddNumeric("position", features.RoleFeature, codes)

	// Rows without a full baseline are excluded, never imputed.
	keep := t.CompleteRows(baselineCols...)
	out := t.Filter(keep)
	kept := make([]models.PlayerFixtureStats, 0, out.Rows())
	for i, k := range keep {
		if k {
			kept = append(kept, stats[i])
		}
	}
	report.AddDropped(n - out.Rows())
	if out.Rows() == 0 {
		report.Log(p.log)
		return nil, fmt.Errorf("no player has %d prior appearances: %w", p.policy.BaselineMinHistory, models.ErrNoMatches)
	}

	if err := scoreFatigue(out, kept); err != nil {
		return nil, err
	}
	cols := append(out.ColumnsByRole(features.RoleKey), out.ColumnsByRole(features.RoleAudit)...)
	cols = append(cols, FatigueFeatureColumns()...)
	out, err = out.Select(append(cols, FatigueLabel)...)
	if err != nil {
		return nil, err
	}

	report.Log(p.log)
	metrics.RecordHistory("fatigue", report.Defaulted(), report.Dropped())
	metrics.RowsProduced.WithLabelValues("fatigue").Add(float64(out.Rows()))
	p.log.WithFields(logrus.Fields{
		"appearances": n,
		"rows":        out.Rows(),
		"dropped":     report.Dropped(),
		"duration":    time.Since(start),
	}).Info("Built fatigue table")
	return out, nil
}

// scoreFatigue adds drop ratios, both scores and the label to t, whose rows
// correspond to stats.
func scoreFatigue(t *features.Table, stats []models.PlayerFixtureStats) error {
	n := t.Rows()
	passesAvg, err := t.Float("passes_total_avg5")
	if err != nil {
		return err
	}
	duelsAvg, err := t.Float("duels_total_avg5")
	if err != nil {
		return err
	}
	accuracyAvg, err := t.Float("passes_accuracy_avg5")
	if err != nil {
		return err
	}
	passesPerMin, err := t.Float("passes_per_min")
	if err != nil {
		return err
	}
	duelsPerMin, err := t.Float("duels_per_min")
	if err != nil {
		return err
	}

	// Positional group means over the scored rows.
	type group struct{ passes, duels, accuracy []float64 }
	groups := make(map[string]*group)
	for i, s := range stats {
		g, ok := groups[s.Position]
		if !ok {
			g = &group{}
			groups[s.Position] = g
		}
		g.passes = append(g.passes, passesPerMin[i])
		g.duels = append(g.duels, duelsPerMin[i])
		g.accuracy = append(g.accuracy, s.PassesAccuracy)
	}
	means := make(map[string]FatigueSignals, len(groups))
	for pos, g := range groups {
		means[pos] = FatigueSignals{
			Passes:   stat.Mean(g.passes, nil),
			Duels:    stat.Mean(g.duels, nil),
			Accuracy: stat.Mean(g.accuracy, nil),
		}
	}

	passesDrop := make([]float64, n)
	duelsDrop := make([]float64, n)
	accuracyDrop := make([]float64, n)
	passesVsGroup := make([]float64, n)
	duelsVsGroup := make([]float64, n)
	accuracyVsGroup := make([]float64, n)
	score := make([]float64, n)
	groupScore := make([]float64, n)
	label := make([]float64, n)
	for i, s := range stats {
		own := FatigueSignals{
			Passes:   features.EpsRatio(s.PassesTotal, passesAvg[i]),
			Duels:    features.EpsRatio(s.DuelsTotal, duelsAvg[i]),
			Accuracy: features.EpsRatio(s.PassesAccuracy, accuracyAvg[i]),
		}
		m := means[s.Position]
		vsGroup := FatigueSignals{
			Passes:   features.EpsRatio(passesPerMin[i], m.Passes),
			Duels:    features.EpsRatio(duelsPerMin[i], m.Duels),
			Accuracy: features.EpsRatio(s.PassesAccuracy, m.Accuracy),
		}
		passesDrop[i], duelsDrop[i], accuracyDrop[i] = own.Passes, own.Duels, own.Accuracy
		passesVsGroup[i], duelsVsGroup[i], accuracyVsGroup[i] = vsGroup.Passes, vsGroup.Duels, vsGroup.Accuracy
		score[i] = float64(own.Score())
		groupScore[i] = float64(vsGroup.Score())
		label[i] = boolFloat(IsFatigued(own.Score(), vsGroup.Score()))
	}

	t.AddNumeric("passes_drop_ratio", features.RoleFeature, passesDrop)
	t.AddNumeric("duels_drop_ratio", features.RoleFeature, duelsDrop)
	t.AddNumeric("accuracy_drop_ratio", features.RoleFeature, accuracyDrop)
	t.AddNumeric("passes_vs_group", features.RoleAudit, passesVsGroup)
	t.AddNumeric("duels_vs_group", features.RoleAudit, duelsVsGroup)
	t.AddNumeric("accuracy_vs_group", features.RoleAudit, accuracyVsGroup)
	t.AddNumeric("fatigue_score", features.RoleAudit, score)
	t.AddNumeric("group_fatigue_score", features.RoleAudit, groupScore)
	t.AddNumeric(FatigueLabel, features.RoleLabel, label)

	return nil
}

func mapStatStrings(stats []models.PlayerFixtureStats, f func(models.PlayerFixtureStats) string) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = f(s)
	}
	return out
}
