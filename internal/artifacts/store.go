package artifacts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// Artifact keys.
const (
	KeyTeamEncoder              = "le_team"
	KeyOpponentEncoder          = "le_opp"
	KeyTeamFormationEncoder     = "le_form_team"
	KeyOpponentFormationEncoder = "le_form_opp"
	KeyScaler                   = "scaler"
	KeyFeatureSchema            = "feature_schema"
	KeyPositionEncoder          = "le_position"
)

var (
	ErrArtifactExists   = errors.New("artifact already exists")
	ErrArtifactNotFound = errors.New("artifact not found")
)

var validKey = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// Store is a named, versionless blob store. Each key may be written once.
type Store interface {
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Backend() string
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	return nil
}

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; ok {
		return fmt.Errorf("%s: %w", key, ErrArtifactExists)
	}
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
	}
	return append([]byte(nil), blob...), nil
}

func (s *MemoryStore) Backend() string {
	return "memory"
}
