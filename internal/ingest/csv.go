package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/models"
	"github.com/stitts-dev/match-features/pkg/logger"
)

// Columns every match-level file must carry. Per-side statistics are optional
// and read as missing when absent.
var requiredMatchColumns = []string{
	"fixture_id", "league", "season", "date",
	"home_team", "away_team", "home_goals", "away_goals",
}

var requiredPlayerColumns = []string{"player_id", "fixture_id", "games_number"}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	"02/01/2006",
}

// header resolves column names to field positions.
type header struct {
	source string
	index  map[string]int
}

func readHeader(r *csv.Reader, source string) (*header, error) {
	names, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty input: %w", source, models.ErrNoMatches)
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}
	h := &header{source: source, index: make(map[string]int, len(names))}
	for i, n := range names {
		h.index[strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))] = i
	}
	return h, nil
}

func (h *header) require(columns ...string) error {
	for _, c := range columns {
		if _, ok := h.index[c]; !ok {
			return &models.SchemaError{Source: h.source, Column: c}
		}
	}
	return nil
}

func (h *header) str(row []string, column string) string {
	i, ok := h.index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h *header) float(row []string, column string) float64 {
	return ParseNumber(h.str(row, column))
}

// ParseNumber parses a numeric field. Blank and null-like fields are NaN and a
// trailing percent sign is dropped.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "na", "n/a":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseDate accepts the date layouts seen in exported fixture files.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

func (h *header) side(row []string, prefix string) models.SideStats {
	return models.SideStats{
		Team:             h.str(row, prefix+"team"),
		Goals:            h.float(row, prefix+"goals"),
		Shots:            h.float(row, prefix+"shots"),
		ShotsOnTarget:    h.float(row, prefix+"shots_on_target"),
		Possession:       h.float(row, prefix+"possession"),
		GoalkeeperSaves:  h.float(row, prefix+"goalkeeper_saves"),
		YellowCards:      h.float(row, prefix+"yellow_cards"),
		RedCards:         h.float(row, prefix+"red_cards"),
		Corners:          h.float(row, prefix+"corners"),
		Fouls:            h.float(row, prefix+"fouls"),
		Offsides:         h.float(row, prefix+"offsides"),
		AttemptedPasses:  h.float(row, prefix+"attempted_passes"),
		SuccessfulPasses: h.float(row, prefix+"successful_passes"),
		Formation:        h.str(row, prefix+"formation"),
		Rank:             h.float(row, prefix+"rank"),
		Points:           h.float(row, prefix+"points"),
	}
}

func (h *header) match(row []string, seq int) (models.MatchRecord, bool) {
	date, ok := ParseDate(h.str(row, "date"))
	if !ok {
		return models.MatchRecord{}, false
	}
	id, err := strconv.ParseInt(h.str(row, "fixture_id"), 10, 64)
	if err != nil {
		if f := ParseNumber(h.str(row, "fixture_id")); !math.IsNaN(f) {
			id = int64(f)
		}
	}
	return models.MatchRecord{
		FixtureID: id,
		League:    h.str(row, "league"),
		Season:    h.str(row, "season"),
		Date:      date,
		GameWeek:  h.float(row, "game_week"),
		Home:      h.side(row, "home_"),
		Away:      h.side(row, "away_"),
		Seq:       seq,
	}, true
}

// ReadMatches reads a match-level file. Rows with an unparsable date are skipped.
func ReadMatches(r io.Reader, source string) ([]models.MatchRecord, error) {
	cr := newReader(r)
	h, err := readHeader(cr, source)
	if err != nil {
		return nil, err
	}
	if err := h.require(requiredMatchColumns...); err != nil {
		return nil, err
	}

	var matches []models.MatchRecord
	skipped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", source, line, err)
		}
		m, ok := h.match(row, len(matches))
		if !ok {
			skipped++
			continue
		}
		matches = append(matches, m)
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"source":  source,
		"matches": len(matches),
		"skipped": skipped,
	}).Info("Loaded match records")

	if len(matches) == 0 {
		return nil, fmt.Errorf("%s: %w", source, models.ErrNoMatches)
	}
	return matches, nil
}

// ReadSnapshots reads in-play snapshots; the optional timestamp column carries the match clock.
func ReadSnapshots(r io.Reader, source string) ([]models.LiveSnapshot, error) {
	cr := newReader(r)
	h, err := readHeader(cr, source)
	if err != nil {
		return nil, err
	}
	if err := h.require(requiredMatchColumns...); err != nil {
		return nil, err
	}

	var snapshots []models.LiveSnapshot
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", source, line, err)
		}
		m, ok := h.match(row, len(snapshots))
		if !ok {
			return nil, fmt.Errorf("%s line %d: unparsable date %q", source, line, h.str(row, "date"))
		}
		snapshots = append(snapshots, models.LiveSnapshot{Match: m, Timestamp: h.str(row, "timestamp")})
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%s: %w", source, models.ErrNoMatches)
	}
	return snapshots, nil
}

// ReadPlayerStats reads per-player fixture statistics. passes_accuracy is a
// percentage and is returned as a fraction.
func ReadPlayerStats(r io.Reader, source string) ([]models.PlayerFixtureStats, error) {
	cr := newReader(r)
	h, err := readHeader(cr, source)
	if err != nil {
		return nil, err
	}
	if err := h.require(requiredPlayerColumns...); err != nil {
		return nil, err
	}

	var stats []models.PlayerFixtureStats
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", source, line, err)
		}
		playerID := int64(h.float(row, "player_id"))
		fixtureID := int64(h.float(row, "fixture_id"))
		stats = append(stats, models.PlayerFixtureStats{
			PlayerID:             playerID,
			PlayerName:           h.str(row, "player_name"),
			FixtureID:            fixtureID,
			Team:                 h.str(row, "team_name"),
			Position:             h.str(row, "games_position"),
			SquadNumber:          h.float(row, "games_number"),
			Minutes:              h.float(row, "games_minutes"),
			Rating:               h.float(row, "games_rating"),
			ShotsTotal:           h.float(row, "shots_total"),
			ShotsOn:              h.float(row, "shots_on"),
			GoalsTotal:           h.float(row, "goals_total"),
			GoalsAssists:         h.float(row, "goals_assists"),
			PassesTotal:          h.float(row, "passes_total"),
			PassesKey:            h.float(row, "passes_key"),
			PassesAccuracy:       h.float(row, "passes_accuracy") / 100,
			TacklesTotal:         h.float(row, "tackles_total"),
			TacklesBlocks:        h.float(row, "tackles_blocks"),
			TacklesInterceptions: h.float(row, "tackles_interceptions"),
			DuelsTotal:           h.float(row, "duels_total"),
			DuelsWon:             h.float(row, "duels_won"),
			DribblesAttempts:     h.float(row, "dribbles_attempts"),
			DribblesSuccess:      h.float(row, "dribbles_success"),
			FoulsDrawn:           h.float(row, "fouls_drawn"),
			FoulsCommitted:       h.float(row, "fouls_committed"),
			CardsYellow:          h.float(row, "cards_yellow"),
			CardsRed:             h.float(row, "cards_red"),
			Seq:                  len(stats),
		})
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%s: %w", source, models.ErrNoMatches)
	}
	return stats, nil
}

// LoadMatches reads a match-level CSV file from disk.
func LoadMatches(path string) ([]models.MatchRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadMatches(f, path)
}

// LoadSnapshots reads an in-play snapshot CSV file from disk.
func LoadSnapshots(path string) ([]models.LiveSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadSnapshots(f, path)
}

// LoadPlayerStats reads a player statistics CSV file from disk.
func LoadPlayerStats(path string) ([]models.PlayerFixtureStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadPlayerStats(f, path)
}
