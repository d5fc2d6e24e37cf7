package configs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("config entry not found")

// ScopeGlobal marks entries that apply to the whole fleet; per-node
// entries carry the node's identifier in NodeID.
const ScopeGlobal = "global"

// Entry is one stored configuration value.
type Entry struct {
	ID          uuid.UUID
	Key         string
	Value       map[string]any
	Scope       string
	NodeID      string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the persistence boundary for configuration entries. Keys are
// unique per scope+node.
type Store interface {
	Upsert(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, key, scope, nodeID string) (*Entry, error)
	List(ctx context.Context, scope, nodeID string) ([]Entry, error)
	Delete(ctx context.Context, key, scope, nodeID string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Set creates or replaces a configuration entry.
func (s *Service) Set(ctx context.Context, key string, value map[string]any, scope, nodeID, description string) (*Entry, error) {
	if scope == "" {
		scope = ScopeGlobal
	}
	now := time.Now().UTC()
	entry := &Entry{
		ID:          uuid.New(),
		Key:         key,
		Value:       value,
		Scope:       scope,
		NodeID:      nodeID,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("upsert config: %w", err)
	}
	slog.Info("Config entry set", "key", key, "scope", scope, "node_id", nodeID)
	return entry, nil
}

func (s *Service) Get(ctx context.Context, key, scope, nodeID string) (*Entry, error) {
	if scope == "" {
		scope = ScopeGlobal
	}
	return s.store.Get(ctx, key, scope, nodeID)
}

func (s *Service) List(ctx context.Context, scope, nodeID string) ([]Entry, error) {
	return s.store.List(ctx, scope, nodeID)
}

func (s *Service) Delete(ctx context.Context, key, scope, nodeID string) error {
	if scope == "" {
		scope = ScopeGlobal
	}
	return s.store.Delete(ctx, key, scope, nodeID)
}
