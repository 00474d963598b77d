package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/features"
)

// TrainResult summarizes one fit and its holdout evaluation.
type TrainResult struct {
	Handle    Handle
	TrainRows int
	TestRows  int
	Accuracy  float64
}

// labelStrings renders a label column the way the engine reports classes.
func labelStrings(t *features.Table, label string) ([]string, error) {
	c, ok := t.Column(label)
	if !ok {
		return nil, fmt.Errorf("table has no label column %q", label)
	}
	if c.IsCategorical() {
		return c.Categorical, nil
	}
	out := make([]string, len(c.Numeric))
	for i, v := range c.Numeric {
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out, nil
}

// Accuracy is the share of positions where got equals want.
func Accuracy(want, got []string) float64 {
	if len(want) == 0 || len(want) != len(got) {
		return 0
	}
	hits := 0
	for i := range want {
		if want[i] == got[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

// labelled drops rows whose label is missing.
func labelled(t *features.Table, label string) *features.Table {
	return t.Filter(t.CompleteRows(label))
}

type trainer struct {
	engine Engine
	name   string
	label  string
	log    *logrus.Entry
}

func (tr trainer) train(ctx context.Context, train, test *features.Table) (*TrainResult, error) {
	start := time.Now()
	h, err := tr.engine.Fit(ctx, tr.name, train, tr.label)
	if err != nil {
		return nil, err
	}
	pred, err := tr.engine.Predict(ctx, h, test)
	if err != nil {
		return nil, err
	}
	want, err := labelStrings(test, tr.label)
	if err != nil {
		return nil, err
	}

	res := &TrainResult{
		Handle:    h,
		TrainRows: train.Rows(),
		TestRows:  test.Rows(),
		Accuracy:  Accuracy(want, pred.Labels),
	}
	tr.log.WithFields(logrus.Fields{
		"model":      tr.name,
		"version":    h.Version,
		"train_rows": res.TrainRows,
		"test_rows":  res.TestRows,
		"accuracy":   res.Accuracy,
		"duration":   time.Since(start),
	}).Info("Trained model")
	return res, nil
}

func (tr trainer) predict(ctx context.Context, t *features.Table) (*Predictions, error) {
	h, err := tr.engine.Load(ctx, tr.name)
	if err != nil {
		return nil, err
	}
	return tr.engine.Predict(ctx, h, t)
}

// SplitPolicy sets the holdout size and the seed of random splits.
type SplitPolicy struct {
	TestFraction float64
	Seed         int64
}

// PreMatchModel predicts a team's result from the pre-match table.
type PreMatchModel struct {
	trainer
	split SplitPolicy
}

func NewPreMatchModel(e Engine, name, label string, split SplitPolicy, log *logrus.Entry) *PreMatchModel {
	return &PreMatchModel{
		trainer: trainer{engine: e, name: name, label: label, log: log.WithField("model", "prematch")},
		split:   split,
	}
}

// Train holds out the most recent rows of a chronologically ordered table.
func (m *PreMatchModel) Train(ctx context.Context, t *features.Table) (*TrainResult, error) {
	train, test, err := ChronologicalSplit(labelled(t, m.label), m.split.TestFraction)
	if err != nil {
		return nil, err
	}
	return m.train(ctx, train, test)
}

// PreMatchPrediction is the predicted result for one team in one fixture.
type PreMatchPrediction struct {
	FixtureID     int64              `json:"fixture_id"`
	Date          string             `json:"date"`
	Team          string             `json:"team"`
	Opponent      string             `json:"opponent"`
	Result        string             `json:"result"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func (m *PreMatchModel) Predict(ctx context.Context, t *features.Table) ([]PreMatchPrediction, error) {
	pred, err := m.predict(ctx, t)
	if err != nil {
		return nil, err
	}
	ids, err := t.Float("fixture_id")
	if err != nil {
		return nil, err
	}
	dates, err := t.String("date")
	if err != nil {
		return nil, err
	}
	teams, err := t.String("team_name")
	if err != nil {
		return nil, err
	}
	opponents, err := t.String("opponent_name")
	if err != nil {
		return nil, err
	}

	out := make([]PreMatchPrediction, t.Rows())
	for i := range out {
		probs := make(map[string]float64, len(pred.Classes))
		if pred.Probabilities != nil {
			for j, c := range pred.Classes {
				if j < len(pred.Probabilities[i]) {
					probs[c] = pred.Probabilities[i][j]
				}
			}
		}
		out[i] = PreMatchPrediction{
			FixtureID:     int64(ids[i]),
			Date:          dates[i],
			Team:          teams[i],
			Opponent:      opponents[i],
			Result:        pred.Labels[i],
			Probabilities: probs,
		}
	}
	return out, nil
}

// positiveClass is how the engine reports a 1 label.
const positiveClass = "1"

// LiveMatchModel predicts whether a team wins from an in-play snapshot.
type LiveMatchModel struct {
	trainer
	split SplitPolicy
}

func NewLiveMatchModel(e Engine, name, label string, split SplitPolicy, log *logrus.Entry) *LiveMatchModel {
	return &LiveMatchModel{
		trainer: trainer{engine: e, name: name, label: label, log: log.WithField("model", "live")},
		split:   split,
	}
}

// Train holds out a seeded random share of rows.
func (m *LiveMatchModel) Train(ctx context.Context, t *features.Table) (*TrainResult, error) {
	train, test, err := RandomSplit(labelled(t, m.label), m.split.TestFraction, m.split.Seed)
	if err != nil {
		return nil, err
	}
	return m.train(ctx, train, test)
}

// LivePrediction is a team's win probability at one snapshot.
type LivePrediction struct {
	FixtureID      int64   `json:"fixture_id"`
	Timestamp      string  `json:"timestamp"`
	Team           string  `json:"team"`
	Opponent       string  `json:"opponent"`
	Win            bool    `json:"win"`
	WinProbability float64 `json:"win_probability"`
}

func (m *LiveMatchModel) Predict(ctx context.Context, t *features.Table) ([]LivePrediction, error) {
	pred, err := m.predict(ctx, t)
	if err != nil {
		return nil, err
	}
	probs, err := pred.Probability(positiveClass)
	if err != nil {
		return nil, err
	}
	ids, err := t.Float("fixture_id")
	if err != nil {
		return nil, err
	}
	stamps, err := t.String("timestamp")
	if err != nil {
		return nil, err
	}
	teams, err := t.String("team_name")
	if err != nil {
		return nil, err
	}
	opponents, err := t.String("opponent_name")
	if err != nil {
		return nil, err
	}

	out := make([]LivePrediction, t.Rows())
	for i := range out {
		out[i] = LivePrediction{
			FixtureID:      int64(ids[i]),
			Timestamp:      stamps[i],
			Team:           teams[i],
			Opponent:       opponents[i],
			Win:            pred.Labels[i] == positiveClass,
			WinProbability: probs[i],
		}
	}
	return out, nil
}

// FatigueModel predicts whether a player is fatigued in a fixture.
type FatigueModel struct {
	trainer
	split SplitPolicy
}

func NewFatigueModel(e Engine, name, label string, split SplitPolicy, log *logrus.Entry) *FatigueModel {
	return &FatigueModel{
		trainer: trainer{engine: e, name: name, label: label, log: log.WithField("model", "fatigue")},
		split:   split,
	}
}

// Train holds out a seeded random share of rows.
func (m *FatigueModel) Train(ctx context.Context, t *features.Table) (*TrainResult, error) {
	train, test, err := RandomSplit(labelled(t, m.label), m.split.TestFraction, m.split.Seed)
	if err != nil {
		return nil, err
	}
	return m.train(ctx, train, test)
}

// FatiguePrediction is one player fixture's fatigue probability.
type FatiguePrediction struct {
	PlayerID    int64   `json:"player_id"`
	PlayerName  string  `json:"player_name"`
	FixtureID   int64   `json:"fixture_id"`
	Position    string  `json:"position"`
	Fatigued    bool    `json:"fatigued"`
	Probability float64 `json:"probability"`
}

// Predict returns predictions ordered from most to least likely fatigued.
func (m *FatigueModel) Predict(ctx context.Context, t *features.Table) ([]FatiguePrediction, error) {
	pred, err := m.predict(ctx, t)
	if err != nil {
		return nil, err
	}
	probs, err := pred.Probability(positiveClass)
	if err != nil {
		return nil, err
	}
	players, err := t.Float("player_id")
	if err != nil {
		return nil, err
	}
	fixtures, err := t.Float("fixture_id")
	if err != nil {
		return nil, err
	}
	names, err := t.String("player_name")
	if err != nil {
		return nil, err
	}
	positions, err := t.String("games_position")
	if err != nil {
		return nil, err
	}

	out := make([]FatiguePrediction, t.Rows())
	for i := range out {
		out[i] = FatiguePrediction{
			PlayerID:    int64(players[i]),
			PlayerName:  names[i],
			FixtureID:   int64(fixtures[i]),
			Position:    positions[i],
			Fatigued:    pred.Labels[i] == positiveClass,
			Probability: probs[i],
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out, nil
}
