package features

import (
	"time"

	"github.com/stitts-dev/match-features/internal/models"
)

// TeamMatchRow is a fixture seen from one side.
type TeamMatchRow struct {
	FixtureID int64
	League    string
	Season    string
	Date      time.Time
	GameWeek  float64

	Team     string
	Opponent string
	IsHome   bool
	Own      models.SideStats
	Opp      models.SideStats
	Result   models.Result

	// Seq orders rows sharing a date; Pair is the index of the mirror row.
	Seq  int
	Pair int
}

// Expand projects a fixture into its home row and its away row.
func Expand(m models.MatchRecord) [2]TeamMatchRow {
	home := TeamMatchRow{
		FixtureID: m.FixtureID,
		League:    m.League,
		Season:    m.Season,
		Date:      m.Date,
		GameWeek:  m.GameWeek,
		Team:      m.Home.Team,
		Opponent:  m.Away.Team,
		IsHome:    true,
		Own:       m.Home,
		Opp:       m.Away,
		Result:    models.ResultFromGoals(m.Home.Goals, m.Away.Goals),
		Seq:       2 * m.Seq,
	}
	away := home
	away.Team, away.Opponent = m.Away.Team, m.Home.Team
	away.IsHome = false
	away.Own, away.Opp = m.Away, m.Home
	away.Result = models.ResultFromGoals(m.Away.Goals, m.Home.Goals)
	away.Seq = 2*m.Seq + 1
	return [2]TeamMatchRow{home, away}
}

// ExpandAll expands every fixture; row 2i is the home side of matches[i] and 2i+1 the away side.
func ExpandAll(matches []models.MatchRecord) []TeamMatchRow {
	rows := make([]TeamMatchRow, 0, 2*len(matches))
	for i, m := range matches {
		pair := Expand(m)
		pair[0].Pair = 2*i + 1
		pair[1].Pair = 2 * i
		rows = append(rows, pair[0], pair[1])
	}
	return rows
}

// Chronological returns row indices ordered by date, keeping input order for equal dates.
func Chronological(rows []TeamMatchRow) []int {
	dates := make([]time.Time, len(rows))
	seqs := make([]int, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
		seqs[i] = r.Seq
	}
	return chronologicalOrder(dates, seqs)
}
