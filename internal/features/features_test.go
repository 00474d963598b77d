package features

import (
	"context"
	"math"
	"time"

	"github.com/stitts-dev/match-features/internal/models"
)

var baseDate = time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return baseDate.AddDate(0, 0, n)
}

// fixture builds a match with goals set and every other statistic missing.
func fixture(id int64, league, season string, dayN int, home, away string, homeGoals, awayGoals float64) models.MatchRecord {
	m := models.MatchRecord{
		FixtureID: id,
		League:    league,
		Season:    season,
		Date:      day(dayN),
		GameWeek:  float64(dayN),
		Home:      models.EmptySideStats(home),
		Away:      models.EmptySideStats(away),
	}
	m.Home.Goals = homeGoals
	m.Away.Goals = awayGoals
	return m
}

func withSeq(matches []models.MatchRecord) []models.MatchRecord {
	for i := range matches {
		matches[i].Seq = i
	}
	return matches
}

func bg() context.Context {
	return context.Background()
}

func nanValue() float64 {
	return math.NaN()
}

func isNaN(v float64) bool {
	return math.IsNaN(v)
}

func contextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
