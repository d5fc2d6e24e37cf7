package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("command not found")

	// ErrStale is returned by UpdateReport when the command changed under
	// the caller, i.e. the compare-and-swap on status failed.
	ErrStale = errors.New("command modified concurrently")
)

// ListFilter narrows and paginates command listings.
type ListFilter struct {
	Status   *Status
	Type     *string
	NodeID   *string
	Page     int
	PageSize int
}

// Store is the persistence boundary for commands. Implementations must
// make ClaimPending atomic per command (transition only if still
// PENDING) and UpdateReport conditional on the expected status.
type Store interface {
	Create(ctx context.Context, cmd *Command) error
	Get(ctx context.Context, id uuid.UUID) (*Command, error)
	List(ctx context.Context, filter ListFilter) ([]Command, int, error)

	// UpdateReport persists cmd only if its stored status still equals
	// expected; otherwise it returns ErrStale without mutating anything.
	UpdateReport(ctx context.Context, cmd *Command, expected Status) error

	// ClaimPending atomically transitions up to limit PENDING commands for
	// the node to SENT, oldest first, and returns them. A command claimed
	// by one heartbeat is never returned to another.
	ClaimPending(ctx context.Context, nodeID string, limit int, now time.Time) ([]Command, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// MarkTimedOut transitions non-terminal commands created before the
	// cutoff to TIMEOUT and returns how many were affected.
	MarkTimedOut(ctx context.Context, cutoff time.Time, now time.Time) (int, error)
}
