package features

import (
	"math"

	"github.com/stitts-dev/match-features/internal/models"
)

// H2HRates are win/draw/loss rates over recent meetings of an ordered pair.
type H2HRates struct {
	Win  float64
	Draw float64
	Loss float64
}

// Defined reports whether any prior meeting backed the rates.
func (r H2HRates) Defined() bool {
	return !math.IsNaN(r.Win)
}

// H2HIndex maps an ordered (team, opponent) pair to its outcomes in chronological order.
type H2HIndex struct {
	window   int
	meetings map[string][]models.Result
}

func NewH2HIndex(window int) *H2HIndex {
	return &H2HIndex{window: window, meetings: make(map[string][]models.Result)}
}

// Record appends a meeting from team's perspective. Unknown results are ignored.
func (x *H2HIndex) Record(team, opponent string, result models.Result) {
	if result == models.ResultUnknown {
		return
	}
	key := GroupKey(team, opponent)
	x.meetings[key] = append(x.meetings[key], result)
}

// Lookup returns rates over the last window meetings recorded so far.
// With no meetings every rate is NaN.
func (x *H2HIndex) Lookup(team, opponent string) H2HRates {
	past := x.meetings[GroupKey(team, opponent)]
	if x.window > 0 && len(past) > x.window {
		past = past[len(past)-x.window:]
	}
	if len(past) == 0 {
		nan := math.NaN()
		return H2HRates{Win: nan, Draw: nan, Loss: nan}
	}

	var wins, draws, losses float64
	for _, r := range past {
		switch r {
		case models.ResultWin:
			wins++
		case models.ResultDraw:
			draws++
		case models.ResultLoss:
			losses++
		}
	}
	n := float64(len(past))
	return H2HRates{Win: wins / n, Draw: draws / n, Loss: losses / n}
}

// HeadToHead returns, aligned with rows, each row's rates over the pair's preceding
// meetings. Rows are visited chronologically and recorded only after being looked up.
func HeadToHead(rows []TeamMatchRow, window int) []H2HRates {
	out := make([]H2HRates, len(rows))
	idx := NewH2HIndex(window)
	for _, i := range Chronological(rows) {
		r := rows[i]
		out[i] = idx.Lookup(r.Team, r.Opponent)
		idx.Record(r.Team, r.Opponent, r.Result)
	}
	return out
}

// WithDefaults substitutes the product defaults for an undefined matchup.
func (r H2HRates) WithDefaults() H2HRates {
	if r.Defined() {
		return r
	}
	return H2HRates{Win: DefaultH2HWinRate, Draw: DefaultH2HDrawRate, Loss: DefaultH2HLossRate}
}
