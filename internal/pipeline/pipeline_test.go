package pipeline

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

var baseDate = time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC)

var formations = map[string]string{"A": "4-3-3", "B": "4-4-2", "C": "3-5-2"}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func side(team string, goals float64) models.SideStats {
	return models.SideStats{
		Team:             team,
		Goals:            goals,
		Shots:            10 + goals,
		ShotsOnTarget:    4 + goals,
		Possession:       50,
		GoalkeeperSaves:  3,
		YellowCards:      1,
		RedCards:         0,
		Corners:          5,
		Fouls:            11,
		Offsides:         2,
		AttemptedPasses:  400,
		SuccessfulPasses: 320,
		Formation:        formations[team],
		Rank:             10,
		Points:           20,
	}
}

func played(id int64, dayN int, home, away string, homeGoals, awayGoals float64) models.MatchRecord {
	return models.MatchRecord{
		FixtureID: id,
		League:    "Premier League",
		Season:    "2023",
		Date:      baseDate.AddDate(0, 0, dayN),
		GameWeek:  float64(dayN),
		Home:      side(home, homeGoals),
		Away:      side(away, awayGoals),
	}
}

// history is A 2-0 B, C 1-1 A, B 0-1 C, A 3-1 C.
func history() []models.MatchRecord {
	matches := []models.MatchRecord{
		played(1, 1, "A", "B", 2, 0),
		played(2, 2, "C", "A", 1, 1),
		played(3, 3, "B", "C", 0, 1),
		played(4, 4, "A", "C", 3, 1),
	}
	for i := range matches {
		matches[i].Seq = i
	}
	return matches
}

func bg() context.Context {
	return context.Background()
}

// rowOf returns the index of the row for fixture and team.
func rowOf(t *testing.T, tbl *features.Table, fixture int64, team string) int {
	t.Helper()
	ids, err := tbl.Float("fixture_id")
	require.NoError(t, err)
	teamCol := "team_name"
	names, err := tbl.String(teamCol)
	require.NoError(t, err)
	for i := range ids {
		if int64(ids[i]) == fixture && names[i] == team {
			return i
		}
	}
	t.Fatalf("no row for fixture %d team %s", fixture, team)
	return -1
}

func value(t *testing.T, tbl *features.Table, column string, row int) float64 {
	t.Helper()
	values, err := tbl.Float(column)
	require.NoError(t, err)
	return values[row]
}

func nan() float64 {
	return math.NaN()
}
