package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetmesh/fleetmesh/internal/users"
	"github.com/google/uuid"
)

// UserStore is a mutex-guarded in-memory implementation of users.Store.
type UserStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*users.User
}

func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[uuid.UUID]*users.User)}
}

func (s *UserStore) Create(_ context.Context, user *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Username == user.Username {
			return users.ErrUsernameExists
		}
	}
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byID {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, users.ErrNotFound
}

func (s *UserStore) List(_ context.Context) ([]users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]users.User, 0, len(s.byID))
	for _, user := range s.byID {
		result = append(result, *user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

func (s *UserStore) Update(_ context.Context, user *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.ID]; !ok {
		return users.ErrNotFound
	}
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

func (s *UserStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	user.LastLogin = &at
	user.UpdatedAt = at
	return nil
}
