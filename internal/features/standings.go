package features

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/match-features/internal/models"
)

// Standing holds both participants' points and ranks immediately before a fixture.
type Standing struct {
	HomePoints float64
	AwayPoints float64
	HomeRank   float64
	AwayRank   float64
}

// Side returns the (team, opponent) values from the home or away perspective.
func (s Standing) Side(home bool) (points, rank, opponentPoints, opponentRank float64) {
	if home {
		return s.HomePoints, s.HomeRank, s.AwayPoints, s.AwayRank
	}
	return s.AwayPoints, s.AwayRank, s.HomePoints, s.HomeRank
}

// Partition identifies one league season.
type Partition struct {
	League string
	Season string
}

// StandingsTable is a points table with ranks, keyed by team.
type StandingsTable map[string]models.TeamStanding

// pointsTable is the accumulator of one partition fold.
type pointsTable map[string]float64

func (p pointsTable) enter(team string) float64 {
	pts, ok := p[team]
	if !ok {
		p[team] = 0
	}
	return pts
}

// rank is 1 + teams with more points + teams level on points with a smaller identifier.
func (p pointsTable) rank(team string) float64 {
	own := p[team]
	r := 1
	for other, pts := range p {
		if other == team {
			continue
		}
		if pts > own || (pts == own && other < team) {
			r++
		}
	}
	return float64(r)
}

func (p pointsTable) apply(home, away string, result models.Result) {
	switch result {
	case models.ResultWin:
		p[home] += 3
	case models.ResultDraw:
		p[home]++
		p[away]++
	case models.ResultLoss:
		p[away] += 3
	}
}

func (p pointsTable) snapshot() StandingsTable {
	out := make(StandingsTable, len(p))
	for team, pts := range p {
		out[team] = models.TeamStanding{Points: pts, Rank: p.rank(team)}
	}
	return out
}

// partitionMatches groups match indices by league season, preserving input order.
func partitionMatches(matches []models.MatchRecord) (map[Partition][]int, []Partition) {
	parts := make(map[Partition][]int)
	var order []Partition
	for i, m := range matches {
		key := Partition{League: m.League, Season: m.Season}
		if _, ok := parts[key]; !ok {
			order = append(order, key)
		}
		parts[key] = append(parts[key], i)
	}
	return parts, order
}

// foldPartition replays one partition in date order. record, when non-nil, receives the
// pre-match standing of each fixture before its result is applied.
func foldPartition(matches []models.MatchRecord, idx []int, record func(i int, s Standing)) pointsTable {
	dates := make([]time.Time, len(idx))
	seqs := make([]int, len(idx))
	for k, i := range idx {
		dates[k] = matches[i].Date
		seqs[k] = matches[i].Seq
	}

	table := make(pointsTable)
	for _, k := range chronologicalOrder(dates, seqs) {
		m := matches[idx[k]]
		homePts := table.enter(m.Home.Team)
		awayPts := table.enter(m.Away.Team)
		if record != nil {
			record(idx[k], Standing{
				HomePoints: homePts,
				AwayPoints: awayPts,
				HomeRank:   table.rank(m.Home.Team),
				AwayRank:   table.rank(m.Away.Team),
			})
		}
		table.apply(m.Home.Team, m.Away.Team, models.ResultFromGoals(m.Home.Goals, m.Away.Goals))
	}
	return table
}

// SimulateStandings returns, aligned with matches, each fixture's pre-match standing.
// Every league season is folded independently; partitions run concurrently.
func SimulateStandings(ctx context.Context, matches []models.MatchRecord, workers int) ([]Standing, error) {
	out := make([]Standing, len(matches))
	parts, order := partitionMatches(matches)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, key := range order {
		idx := parts[key]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			foldPartition(matches, idx, func(i int, s Standing) {
				out[i] = s
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FinalStandings returns each partition's table after every fixture has been applied.
func FinalStandings(ctx context.Context, matches []models.MatchRecord, workers int) (map[Partition]StandingsTable, error) {
	parts, order := partitionMatches(matches)
	tables := make([]StandingsTable, len(order))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for n, key := range order {
		idx := parts[key]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tables[n] = foldPartition(matches, idx, nil).snapshot()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[Partition]StandingsTable, len(order))
	for n, key := range order {
		out[key] = tables[n]
	}
	return out, nil
}

// Lookup returns a team's standing, or NaN values when the team has no entry.
func (t StandingsTable) Lookup(team string) models.TeamStanding {
	if s, ok := t[team]; ok {
		return s
	}
	return models.TeamStanding{Rank: math.NaN(), Points: math.NaN()}
}

// Teams returns the table's teams ordered by rank.
func (t StandingsTable) Teams() []string {
	teams := make([]string, 0, len(t))
	for team := range t {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool {
		return t[teams[i]].Rank < t[teams[j]].Rank
	})
	return teams
}
