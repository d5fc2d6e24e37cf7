package nodes

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("node not found")

// ListFilter narrows and paginates node listings.
type ListFilter struct {
	Status   *Status
	NodeType *string
	Page     int
	PageSize int
}

// Store is the persistence boundary for nodes and their telemetry
// history.
type Store interface {
	Create(ctx context.Context, node *Node) error
	GetByNodeID(ctx context.Context, nodeID string) (*Node, error)
	GetByToken(ctx context.Context, token string) (*Node, error)
	Update(ctx context.Context, node *Node) error
	List(ctx context.Context, filter ListFilter) ([]Node, int, error)
	Delete(ctx context.Context, nodeID string) error

	// MarkStale demotes ONLINE nodes whose last heartbeat predates the
	// cutoff to OFFLINE and returns how many were demoted.
	MarkStale(ctx context.Context, cutoff time.Time) (int, error)

	InsertTelemetry(ctx context.Context, sample *TelemetrySample) error
	ListTelemetry(ctx context.Context, nodeID string, limit int) ([]TelemetrySample, error)
}
