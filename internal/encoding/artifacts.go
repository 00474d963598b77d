package encoding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/internal/artifacts"
	"github.com/stitts-dev/match-features/internal/metrics"
	"github.com/stitts-dev/match-features/pkg/logger"
)

// FeatureSchema is the ordered feature column list a model was trained on.
type FeatureSchema struct {
	Features []string `json:"features"`
	Label    string   `json:"label"`
}

// Artifacts is the fitted encoder and scaler set of the live model.
type Artifacts struct {
	Team              *LabelEncoder
	Opponent          *LabelEncoder
	TeamFormation     *LabelEncoder
	OpponentFormation *LabelEncoder
	Scaler            *StandardScaler
	Schema            *FeatureSchema
}

func (a *Artifacts) encoders() []struct {
	key string
	enc *LabelEncoder
} {
	return []struct {
		key string
		enc *LabelEncoder
	}{
		{artifacts.KeyTeamEncoder, a.Team},
		{artifacts.KeyOpponentEncoder, a.Opponent},
		{artifacts.KeyTeamFormationEncoder, a.TeamFormation},
		{artifacts.KeyOpponentFormationEncoder, a.OpponentFormation},
	}
}

// Save persists every artifact. The scaler is written last so that its presence
// marks a complete set.
func (a *Artifacts) Save(ctx context.Context, store artifacts.Store) error {
	for _, e := range a.encoders() {
		if e.enc == nil {
			return fmt.Errorf("artifact %s was not fitted", e.key)
		}
		if err := SaveEncoder(ctx, store, e.key, e.enc); err != nil {
			return err
		}
	}
	if a.Schema == nil || a.Scaler == nil {
		return fmt.Errorf("feature schema and scaler must be fitted before saving")
	}
	if err := putJSON(ctx, store, artifacts.KeyFeatureSchema, a.Schema); err != nil {
		return err
	}
	if err := putJSON(ctx, store, artifacts.KeyScaler, a.Scaler); err != nil {
		return err
	}

	logger.WithArtifact(store.Backend(), "").WithFields(logrus.Fields{
		"features":       len(a.Schema.Features),
		"scaled_columns": len(a.Scaler.Columns),
	}).Info("Saved encoding artifacts")
	return nil
}

// LoadArtifacts reads the full set written by Save.
func LoadArtifacts(ctx context.Context, store artifacts.Store) (*Artifacts, error) {
	var a Artifacts
	targets := []struct {
		key string
		dst **LabelEncoder
	}{
		{artifacts.KeyTeamEncoder, &a.Team},
		{artifacts.KeyOpponentEncoder, &a.Opponent},
		{artifacts.KeyTeamFormationEncoder, &a.TeamFormation},
		{artifacts.KeyOpponentFormationEncoder, &a.OpponentFormation},
	}
	for _, tgt := range targets {
		enc, err := LoadEncoder(ctx, store, tgt.key)
		if err != nil {
			return nil, err
		}
		*tgt.dst = enc
	}

	a.Scaler = &StandardScaler{}
	if err := getJSON(ctx, store, artifacts.KeyScaler, a.Scaler); err != nil {
		return nil, err
	}
	if err := a.Scaler.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s artifact: %w", artifacts.KeyScaler, err)
	}
	a.Schema = &FeatureSchema{}
	if err := getJSON(ctx, store, artifacts.KeyFeatureSchema, a.Schema); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveEncoder persists a single label encoder under key.
func SaveEncoder(ctx context.Context, store artifacts.Store, key string, enc *LabelEncoder) error {
	return putJSON(ctx, store, key, enc)
}

// LoadEncoder reads a label encoder written by SaveEncoder.
func LoadEncoder(ctx context.Context, store artifacts.Store, key string) (*LabelEncoder, error) {
	var raw LabelEncoder
	if err := getJSON(ctx, store, key, &raw); err != nil {
		return nil, err
	}
	if err := raw.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s artifact: %w", key, err)
	}
	return newLabelEncoder(raw.Column, raw.Classes), nil
}

func putJSON(ctx context.Context, store artifacts.Store, key string, v interface{}) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := store.Put(ctx, key, blob); err != nil {
		metrics.ArtifactWrites.WithLabelValues(store.Backend(), "error").Inc()
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	metrics.ArtifactWrites.WithLabelValues(store.Backend(), "ok").Inc()
	return nil
}

func getJSON(ctx context.Context, store artifacts.Store, key string, v interface{}) error {
	blob, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
