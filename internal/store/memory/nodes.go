package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetmesh/fleetmesh/internal/nodes"
)

// NodeStore is a mutex-guarded in-memory implementation of nodes.Store.
type NodeStore struct {
	mu        sync.Mutex
	byNodeID  map[string]*nodes.Node
	telemetry map[string][]nodes.TelemetrySample
}

func NewNodeStore() *NodeStore {
	return &NodeStore{
		byNodeID:  make(map[string]*nodes.Node),
		telemetry: make(map[string][]nodes.TelemetrySample),
	}
}

func (s *NodeStore) Create(_ context.Context, node *nodes.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byNodeID[node.NodeID] = cloneNode(node)
	return nil
}

func (s *NodeStore) GetByNodeID(_ context.Context, nodeID string) (*nodes.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.byNodeID[nodeID]
	if !ok {
		return nil, nodes.ErrNotFound
	}
	return cloneNode(node), nil
}

func (s *NodeStore) GetByToken(_ context.Context, token string) (*nodes.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range s.byNodeID {
		if node.AuthToken == token {
			return cloneNode(node), nil
		}
	}
	return nil, nodes.ErrNotFound
}

func (s *NodeStore) Update(_ context.Context, node *nodes.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNodeID[node.NodeID]; !ok {
		return nodes.ErrNotFound
	}
	s.byNodeID[node.NodeID] = cloneNode(node)
	return nil
}

func (s *NodeStore) List(_ context.Context, filter nodes.ListFilter) ([]nodes.Node, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*nodes.Node
	for _, node := range s.byNodeID {
		if filter.Status != nil && node.Status != *filter.Status {
			continue
		}
		if filter.NodeType != nil && node.NodeType != *filter.NodeType {
			continue
		}
		matched = append(matched, node)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RegisteredAt.After(matched[j].RegisteredAt)
	})

	total := len(matched)
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	result := make([]nodes.Node, 0, end-start)
	for _, node := range matched[start:end] {
		result = append(result, *cloneNode(node))
	}
	return result, total, nil
}

func (s *NodeStore) Delete(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNodeID[nodeID]; !ok {
		return nodes.ErrNotFound
	}
	delete(s.byNodeID, nodeID)
	delete(s.telemetry, nodeID)
	return nil
}

func (s *NodeStore) MarkStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, node := range s.byNodeID {
		if node.Status == nodes.StatusOnline &&
			node.LastHeartbeat != nil && node.LastHeartbeat.Before(cutoff) {
			node.Status = nodes.StatusOffline
			count++
		}
	}
	return count, nil
}

func (s *NodeStore) InsertTelemetry(_ context.Context, sample *nodes.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry[sample.NodeID] = append(s.telemetry[sample.NodeID], *sample)
	return nil
}

func (s *NodeStore) ListTelemetry(_ context.Context, nodeID string, limit int) ([]nodes.TelemetrySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.telemetry[nodeID]
	result := make([]nodes.TelemetrySample, len(samples))
	copy(result, samples)
	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordedAt.After(result[j].RecordedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneNode(node *nodes.Node) *nodes.Node {
	clone := *node
	clone.LastHeartbeat = cloneTime(node.LastHeartbeat)
	clone.CPUUsage = cloneFloat(node.CPUUsage)
	clone.MemoryUsage = cloneFloat(node.MemoryUsage)
	clone.DiskUsage = cloneFloat(node.DiskUsage)
	clone.Latitude = cloneFloat(node.Latitude)
	clone.Longitude = cloneFloat(node.Longitude)
	clone.Altitude = cloneFloat(node.Altitude)
	clone.Metadata = cloneMap(node.Metadata)
	return &clone
}
