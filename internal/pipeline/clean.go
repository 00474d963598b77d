package pipeline

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

// UnknownFormation replaces a missing formation.
const UnknownFormation = "Unknown"

// imputedStats are filled with their league season mean when missing.
var imputedStats = []func(*models.SideStats) *float64{
	func(s *models.SideStats) *float64 { return &s.Rank },
	func(s *models.SideStats) *float64 { return &s.Points },
	func(s *models.SideStats) *float64 { return &s.YellowCards },
	func(s *models.SideStats) *float64 { return &s.GoalkeeperSaves },
	func(s *models.SideStats) *float64 { return &s.AttemptedPasses },
	func(s *models.SideStats) *float64 { return &s.SuccessfulPasses },
	func(s *models.SideStats) *float64 { return &s.Corners },
	func(s *models.SideStats) *float64 { return &s.Shots },
}

// CleanMatches returns a copy of matches with missing statistics imputed. Home and
// away columns are imputed separately from the mean of their league season.
// Offsides and red cards default to zero and formations to UnknownFormation.
func CleanMatches(matches []models.MatchRecord) []models.MatchRecord {
	out := append([]models.MatchRecord(nil), matches...)

	parts := make(map[string][]int)
	for i, m := range out {
		key := features.GroupKey(m.League, m.Season)
		parts[key] = append(parts[key], i)
	}

	sides := []func(*models.MatchRecord) *models.SideStats{
		func(m *models.MatchRecord) *models.SideStats { return &m.Home },
		func(m *models.MatchRecord) *models.SideStats { return &m.Away },
	}
	for _, idx := range parts {
		for _, side := range sides {
			for _, field := range imputedStats {
				present := make([]float64, 0, len(idx))
				for _, i := range idx {
					if v := *field(side(&out[i])); !math.IsNaN(v) {
						present = append(present, v)
					}
				}
				if len(present) == 0 || len(present) == len(idx) {
					continue
				}
				mean := stat.Mean(present, nil)
				for _, i := range idx {
					if p := field(side(&out[i])); math.IsNaN(*p) {
						*p = mean
					}
				}
			}
		}
	}

	for i := range out {
		for _, side := range sides {
			s := side(&out[i])
			s.Offsides = orZero(s.Offsides)
			s.RedCards = orZero(s.RedCards)
			if s.Formation == "" {
				s.Formation = UnknownFormation
			}
		}
	}
	return out
}
