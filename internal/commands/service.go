package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNodeNotFound = errors.New("target node not found")

	// ErrNotCancellable is returned when cancelling a command that already
	// left PENDING.
	ErrNotCancellable = errors.New("command is no longer pending")
)

// NodeDirectory answers whether a node identifier is registered. The
// nodes service implements it; commands only need existence checks.
type NodeDirectory interface {
	NodeExists(ctx context.Context, nodeID string) (bool, error)
}

// NodeDirectoryFunc adapts a function to NodeDirectory.
type NodeDirectoryFunc func(ctx context.Context, nodeID string) (bool, error)

func (f NodeDirectoryFunc) NodeExists(ctx context.Context, nodeID string) (bool, error) {
	return f(ctx, nodeID)
}

type Service struct {
	store Store
	nodes NodeDirectory
}

func NewService(store Store, nodes NodeDirectory) *Service {
	return &Service{
		store: store,
		nodes: nodes,
	}
}

// Create enqueues a new PENDING command for the target node. createdBy is
// the issuing user's ID, empty for system-issued commands.
func (s *Service) Create(ctx context.Context, nodeID, commandType string, payload map[string]any, createdBy string) (*Command, error) {
	exists, err := s.nodes.NodeExists(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("check target node: %w", err)
	}
	if !exists {
		return nil, ErrNodeNotFound
	}

	cmd := &Command{
		ID:        uuid.New(),
		Type:      commandType,
		Status:    StatusPending,
		NodeID:    nodeID,
		Payload:   payload,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	slog.Info("Command created", "command_id", cmd.ID, "type", commandType, "node_id", nodeID)
	return cmd, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Command, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Command, int, error) {
	return s.store.List(ctx, filter)
}

// ReportResult applies a node-reported status to a command. Duplicate
// reports are accepted without mutation; conflicting terminal reports
// are rejected with ErrStatusConflict.
func (s *Service) ReportResult(ctx context.Context, id uuid.UUID, reported Status, result map[string]any, errMsg string) (*Command, error) {
	for {
		cmd, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		expected := cmd.Status
		changed, err := ApplyReport(cmd, reported, result, errMsg, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		if !changed {
			return cmd, nil
		}

		err = s.store.UpdateReport(ctx, cmd, expected)
		if errors.Is(err, ErrStale) {
			// Another report raced us; re-read and re-apply so the
			// idempotence and conflict rules run against fresh state.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persist command report: %w", err)
		}

		slog.Info("Command result recorded", "command_id", id, "status", reported)
		return cmd, nil
	}
}

// ClaimForNode atomically selects the oldest PENDING commands for the
// node, transitions them to SENT and returns them. Invoked from the
// heartbeat handler.
func (s *Service) ClaimForNode(ctx context.Context, nodeID string, limit int) ([]Command, error) {
	claimed, err := s.store.ClaimPending(ctx, nodeID, limit, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim pending commands: %w", err)
	}
	return claimed, nil
}

// Cancel deletes a command that is still PENDING.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	cmd, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Status != StatusPending {
		return ErrNotCancellable
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete command: %w", err)
	}
	slog.Info("Command cancelled", "command_id", id)
	return nil
}

// TimeoutOverdue transitions commands that have not reached a terminal
// state within the horizon to TIMEOUT. Called by the controller's sweep
// ticker.
func (s *Service) TimeoutOverdue(ctx context.Context, horizon time.Duration) (int, error) {
	now := time.Now().UTC()
	n, err := s.store.MarkTimedOut(ctx, now.Add(-horizon), now)
	if err != nil {
		return 0, fmt.Errorf("timeout sweep: %w", err)
	}
	if n > 0 {
		slog.Warn("Commands timed out", "count", n, "horizon", horizon)
	}
	return n, nil
}
