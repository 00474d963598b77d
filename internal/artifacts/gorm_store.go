package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/match-features/pkg/logger"
)

// ArtifactRecord is the postgres row behind GormStore.
type ArtifactRecord struct {
	ID        uint           `gorm:"primaryKey"`
	Namespace string         `gorm:"uniqueIndex:idx_artifact_name;not null"`
	Name      string         `gorm:"uniqueIndex:idx_artifact_name;not null"`
	Blob      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (ArtifactRecord) TableName() string {
	return "feature_artifacts"
}

// GormStore keeps artifacts in a postgres table, one row per namespace and name.
type GormStore struct {
	db        *gorm.DB
	namespace string
	log       *logrus.Entry
}

func NewGormStore(db *gorm.DB, namespace string) *GormStore {
	return &GormStore{db: db, namespace: namespace, log: logger.WithArtifact("postgres", "")}
}

func (s *GormStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	rec := ArtifactRecord{Namespace: s.namespace, Name: key, Blob: datatypes.JSON(blob)}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("failed to store artifact %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", key, ErrArtifactExists)
	}

	s.log.WithFields(logrus.Fields{
		"namespace": s.namespace,
		"artifact":  key,
		"bytes":     len(blob),
	}).Debug("Stored artifact")
	return nil
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec ArtifactRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND name = ?", s.namespace, key).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("failed to load artifact %s: %w", key, err)
	}
	return []byte(rec.Blob), nil
}

func (s *GormStore) Backend() string {
	return "postgres"
}
