package ingest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/match-features/internal/models"
	"github.com/stitts-dev/match-features/pkg/logger"
)

// MatchFilter narrows a repository load. Empty fields match everything.
type MatchFilter struct {
	League string
	Season string
}

// MatchRepository stores match records in postgres.
type MatchRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db, log: logger.GetLogger()}
}

// Save inserts matches in batches. Fixtures already stored are left untouched.
func (r *MatchRepository) Save(ctx context.Context, matches []models.MatchRecord) (int64, error) {
	if len(matches) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fixture_id"}}, DoNothing: true}).
		CreateInBatches(matches, 500)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to save match records: %w", result.Error)
	}

	r.log.WithFields(logrus.Fields{
		"received": len(matches),
		"inserted": result.RowsAffected,
	}).Info("Saved match records")
	return result.RowsAffected, nil
}

// Load returns matches in date order with Seq set to their position.
func (r *MatchRepository) Load(ctx context.Context, filter MatchFilter) ([]models.MatchRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.MatchRecord{})
	if filter.League != "" {
		query = query.Where("league = ?", filter.League)
	}
	if filter.Season != "" {
		query = query.Where("season = ?", filter.Season)
	}

	var matches []models.MatchRecord
	if err := query.Order("date ASC").Order("id ASC").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to load match records: %w", err)
	}
	if len(matches) == 0 {
		return nil, models.ErrNoMatches
	}
	for i := range matches {
		matches[i].Seq = i
	}
	return matches, nil
}
