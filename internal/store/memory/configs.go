package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/configs"
)

type configKey struct {
	key    string
	scope  string
	nodeID string
}

// ConfigStore is a mutex-guarded in-memory implementation of
// configs.Store.
type ConfigStore struct {
	mu      sync.Mutex
	entries map[configKey]*configs.Entry
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{entries: make(map[configKey]*configs.Entry)}
}

func (s *ConfigStore) Upsert(_ context.Context, entry *configs.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := configKey{key: entry.Key, scope: entry.Scope, nodeID: entry.NodeID}
	if existing, ok := s.entries[k]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	}
	clone := *entry
	clone.Value = cloneMap(entry.Value)
	s.entries[k] = &clone
	return nil
}

func (s *ConfigStore) Get(_ context.Context, key, scope, nodeID string) (*configs.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[configKey{key: key, scope: scope, nodeID: nodeID}]
	if !ok {
		return nil, configs.ErrNotFound
	}
	clone := *entry
	clone.Value = cloneMap(entry.Value)
	return &clone, nil
}

func (s *ConfigStore) List(_ context.Context, scope, nodeID string) ([]configs.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []configs.Entry
	for _, entry := range s.entries {
		if scope != "" && entry.Scope != scope {
			continue
		}
		if nodeID != "" && entry.NodeID != nodeID {
			continue
		}
		clone := *entry
		clone.Value = cloneMap(entry.Value)
		result = append(result, clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

func (s *ConfigStore) Delete(_ context.Context, key, scope, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := configKey{key: key, scope: scope, nodeID: nodeID}
	if _, ok := s.entries[k]; !ok {
		return configs.ErrNotFound
	}
	delete(s.entries, k)
	return nil
}

// AuditStore is an in-memory implementation of audit.Store, useful in
// tests and single-process runs.
type AuditStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Insert(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// Entries returns a snapshot of everything recorded so far.
func (s *AuditStore) Entries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]audit.Entry, len(s.entries))
	copy(result, s.entries)
	return result
}
