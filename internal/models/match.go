package models

import (
	"math"
	"time"
)

// Result is a fixture outcome from one side's perspective.
type Result string

const (
	ResultWin     Result = "Win"
	ResultDraw    Result = "Draw"
	ResultLoss    Result = "Loss"
	ResultUnknown Result = ""
)

// ResultFromGoals derives the outcome for the side that scored teamGoals.
// Missing goal counts yield ResultUnknown.
func ResultFromGoals(teamGoals, opponentGoals float64) Result {
	if math.IsNaN(teamGoals) || math.IsNaN(opponentGoals) {
		return ResultUnknown
	}
	switch {
	case teamGoals > opponentGoals:
		return ResultWin
	case teamGoals < opponentGoals:
		return ResultLoss
	default:
		return ResultDraw
	}
}

// Score maps a result onto the form scale (win 1, draw 0.5, loss 0).
func (r Result) Score() float64 {
	switch r {
	case ResultWin:
		return 1
	case ResultDraw:
		return 0.5
	case ResultLoss:
		return 0
	default:
		return math.NaN()
	}
}

// Indicator returns 1 when r equals want, 0 otherwise, NaN when r is unknown.
func (r Result) Indicator(want Result) float64 {
	if r == ResultUnknown {
		return math.NaN()
	}
	if r == want {
		return 1
	}
	return 0
}

// SideStats holds one side's statistics for a fixture. Missing values are NaN.
type SideStats struct {
	Team             string  `gorm:"column:team;index" json:"team"`
	Goals            float64 `gorm:"column:goals" json:"goals"`
	Shots            float64 `gorm:"column:shots" json:"shots"`
	ShotsOnTarget    float64 `gorm:"column:shots_on_target" json:"shots_on_target"`
	Possession       float64 `gorm:"column:possession" json:"possession"`
	GoalkeeperSaves  float64 `gorm:"column:goalkeeper_saves" json:"goalkeeper_saves"`
	YellowCards      float64 `gorm:"column:yellow_cards" json:"yellow_cards"`
	RedCards         float64 `gorm:"column:red_cards" json:"red_cards"`
	Corners          float64 `gorm:"column:corners" json:"corners"`
	Fouls            float64 `gorm:"column:fouls" json:"fouls"`
	Offsides         float64 `gorm:"column:offsides" json:"offsides"`
	AttemptedPasses  float64 `gorm:"column:attempted_passes" json:"attempted_passes"`
	SuccessfulPasses float64 `gorm:"column:successful_passes" json:"successful_passes"`
	Formation        string  `gorm:"column:formation" json:"formation"`
	Rank             float64 `gorm:"column:rank" json:"rank"`
	Points           float64 `gorm:"column:points" json:"points"`
}

// EmptySideStats returns stats for team with every numeric field missing.
func EmptySideStats(team string) SideStats {
	nan := math.NaN()
	return SideStats{
		Team:             team,
		Goals:            nan,
		Shots:            nan,
		ShotsOnTarget:    nan,
		Possession:       nan,
		GoalkeeperSaves:  nan,
		YellowCards:      nan,
		RedCards:         nan,
		Corners:          nan,
		Fouls:            nan,
		Offsides:         nan,
		AttemptedPasses:  nan,
		SuccessfulPasses: nan,
		Rank:             nan,
		Points:           nan,
	}
}

// MatchRecord is one played (or in-play) fixture. It is treated as immutable once ingested.
type MatchRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	FixtureID int64     `gorm:"uniqueIndex;not null" json:"fixture_id"`
	League    string    `gorm:"index:idx_match_partition;not null" json:"league"`
	Season    string    `gorm:"index:idx_match_partition;not null" json:"season"`
	Date      time.Time `gorm:"index;not null" json:"date"`
	GameWeek  float64   `json:"game_week"`
	Home      SideStats `gorm:"embedded;embeddedPrefix:home_" json:"home"`
	Away      SideStats `gorm:"embedded;embeddedPrefix:away_" json:"away"`

	// Seq is the input order, used as the tie-break between equal dates.
	Seq int `gorm:"-" json:"-"`
}

func (MatchRecord) TableName() string {
	return "match_records"
}

// Side returns the home or away statistics.
func (m MatchRecord) Side(home bool) SideStats {
	if home {
		return m.Home
	}
	return m.Away
}

// LiveSnapshot is an in-play observation of a fixture at a given match clock.
type LiveSnapshot struct {
	Match     MatchRecord
	Timestamp string
}

// TeamStanding is an externally supplied rank/points pair for a team.
type TeamStanding struct {
	Rank   float64 `json:"rank"`
	Points float64 `json:"points"`
}
