package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetmesh/fleetmesh/internal/commands"
	"github.com/google/uuid"
)

// CommandStore is a mutex-guarded in-memory implementation of
// commands.Store. The claim and report paths hold the lock for the whole
// read-check-write, which gives the same atomicity the postgres
// implementation gets from conditional UPDATEs.
type CommandStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*commands.Command
}

func NewCommandStore() *CommandStore {
	return &CommandStore{byID: make(map[uuid.UUID]*commands.Command)}
}

func (s *CommandStore) Create(_ context.Context, cmd *commands.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cmd.ID] = cloneCommand(cmd)
	return nil
}

func (s *CommandStore) Get(_ context.Context, id uuid.UUID) (*commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.byID[id]
	if !ok {
		return nil, commands.ErrNotFound
	}
	return cloneCommand(cmd), nil
}

func (s *CommandStore) List(_ context.Context, filter commands.ListFilter) ([]commands.Command, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*commands.Command
	for _, cmd := range s.byID {
		if filter.Status != nil && cmd.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && cmd.Type != *filter.Type {
			continue
		}
		if filter.NodeID != nil && cmd.NodeID != *filter.NodeID {
			continue
		}
		matched = append(matched, cmd)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
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

	result := make([]commands.Command, 0, end-start)
	for _, cmd := range matched[start:end] {
		result = append(result, *cloneCommand(cmd))
	}
	return result, total, nil
}

func (s *CommandStore) UpdateReport(_ context.Context, cmd *commands.Command, expected commands.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[cmd.ID]
	if !ok {
		return commands.ErrNotFound
	}
	if stored.Status != expected {
		return commands.ErrStale
	}
	s.byID[cmd.ID] = cloneCommand(cmd)
	return nil
}

func (s *CommandStore) ClaimPending(_ context.Context, nodeID string, limit int, now time.Time) ([]commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*commands.Command
	for _, cmd := range s.byID {
		if cmd.NodeID == nodeID && cmd.Status == commands.StatusPending {
			pending = append(pending, cmd)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]commands.Command, 0, len(pending))
	for _, cmd := range pending {
		commands.MarkSent(cmd, now)
		claimed = append(claimed, *cloneCommand(cmd))
	}
	return claimed, nil
}

func (s *CommandStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return commands.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *CommandStore) MarkTimedOut(_ context.Context, cutoff time.Time, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, cmd := range s.byID {
		if !cmd.Status.Terminal() && cmd.CreatedAt.Before(cutoff) {
			if commands.MarkTimeout(cmd, now) {
				count++
			}
		}
	}
	return count, nil
}

func cloneCommand(cmd *commands.Command) *commands.Command {
	clone := *cmd
	clone.Payload = cloneMap(cmd.Payload)
	clone.Result = cloneMap(cmd.Result)
	clone.SentAt = cloneTime(cmd.SentAt)
	clone.AcknowledgedAt = cloneTime(cmd.AcknowledgedAt)
	clone.CompletedAt = cloneTime(cmd.CompletedAt)
	return &clone
}
