package nodes

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetmesh/fleetmesh/internal/commands"
	"github.com/google/uuid"
)

// HeartbeatBatchLimit bounds how many due commands a single heartbeat may
// carry, oldest first.
const HeartbeatBatchLimit = 10

// CommandClaimer hands out the due commands for a node. The commands
// service implements it; the claim must be atomic so a command is never
// sent to two heartbeats.
type CommandClaimer interface {
	ClaimForNode(ctx context.Context, nodeID string, limit int) ([]commands.Command, error)
}

// RegisterParams carries everything a node sends on registration. All
// fields except NodeID are optional.
type RegisterParams struct {
	NodeID      string
	Name        string
	Description string
	NodeType    string
	IPAddress   string
	MACAddress  string
	Metadata    map[string]any
}

type Service struct {
	store            Store
	claimer          CommandClaimer
	heartbeatTimeout time.Duration
}

func NewService(store Store, claimer CommandClaimer, heartbeatTimeout time.Duration) *Service {
	return &Service{
		store:            store,
		claimer:          claimer,
		heartbeatTimeout: heartbeatTimeout,
	}
}

// Register creates a node on first contact or refreshes an existing one.
// Either way the node comes back ONLINE with a freshly minted auth token;
// the previous token, if any, stops working immediately.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Node, error) {
	token, err := generateAuthToken()
	if err != nil {
		return nil, fmt.Errorf("generate auth token: %w", err)
	}

	now := time.Now().UTC()

	node, err := s.store.GetByNodeID(ctx, params.NodeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("look up node: %w", err)
	}

	if node != nil {
		if params.Name != "" {
			node.Name = params.Name
		}
		if params.Description != "" {
			node.Description = params.Description
		}
		if params.NodeType != "" {
			node.NodeType = params.NodeType
		}
		if params.IPAddress != "" {
			node.IPAddress = params.IPAddress
		}
		if params.MACAddress != "" {
			node.MACAddress = params.MACAddress
		}
		if params.Metadata != nil {
			node.Metadata = params.Metadata
		}
		node.AuthToken = token
		node.Status = StatusOnline
		node.LastHeartbeat = &now
		node.UpdatedAt = now

		if err := s.store.Update(ctx, node); err != nil {
			return nil, fmt.Errorf("update node: %w", err)
		}
		slog.Info("Node re-registered", "node_id", params.NodeID)
		return node, nil
	}

	node = &Node{
		ID:            uuid.New(),
		NodeID:        params.NodeID,
		Name:          params.Name,
		Description:   params.Description,
		NodeType:      params.NodeType,
		IPAddress:     params.IPAddress,
		MACAddress:    params.MACAddress,
		Metadata:      params.Metadata,
		AuthToken:     token,
		Status:        StatusOnline,
		LastHeartbeat: &now,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}

	slog.Info("Node registered", "node_id", params.NodeID, "node_type", params.NodeType)
	return node, nil
}

// Heartbeat records the node's telemetry, brings it ONLINE, persists a
// telemetry sample and returns the commands now due for it. The claim is
// atomic per command, so concurrent heartbeats never double-send.
func (s *Service) Heartbeat(ctx context.Context, nodeID string, t Telemetry) (*Node, []commands.Command, error) {
	node, err := s.store.GetByNodeID(ctx, nodeID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	node.Status = StatusOnline
	node.LastHeartbeat = &now
	node.CPUUsage = t.CPUUsage
	node.MemoryUsage = t.MemoryUsage
	node.DiskUsage = t.DiskUsage
	node.Latitude = t.Latitude
	node.Longitude = t.Longitude
	node.Altitude = t.Altitude
	node.UpdatedAt = now

	if err := s.store.Update(ctx, node); err != nil {
		return nil, nil, fmt.Errorf("update node: %w", err)
	}

	sample := &TelemetrySample{
		ID:         uuid.New(),
		NodeID:     nodeID,
		Telemetry:  t,
		RecordedAt: now,
	}
	if err := s.store.InsertTelemetry(ctx, sample); err != nil {
		return nil, nil, fmt.Errorf("insert telemetry: %w", err)
	}

	due, err := s.claimer.ClaimForNode(ctx, nodeID, HeartbeatBatchLimit)
	if err != nil {
		return nil, nil, err
	}

	slog.Debug("Heartbeat processed", "node_id", nodeID, "due_commands", len(due))
	return node, due, nil
}

// List sweeps stale ONLINE nodes to OFFLINE, then returns the filtered
// page.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Node, int, error) {
	if _, err := s.MarkStale(ctx); err != nil {
		return nil, 0, err
	}
	return s.store.List(ctx, filter)
}

// MarkStale demotes nodes that have missed the heartbeat timeout.
func (s *Service) MarkStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.heartbeatTimeout)
	n, err := s.store.MarkStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale nodes: %w", err)
	}
	if n > 0 {
		slog.Info("Nodes marked offline", "count", n)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, nodeID string) (*Node, error) {
	return s.store.GetByNodeID(ctx, nodeID)
}

// Authenticate resolves a node bearer token to its node.
func (s *Service) Authenticate(ctx context.Context, token string) (*Node, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.store.GetByToken(ctx, token)
}

func (s *Service) Delete(ctx context.Context, nodeID string) error {
	if err := s.store.Delete(ctx, nodeID); err != nil {
		return err
	}
	slog.Info("Node deleted", "node_id", nodeID)
	return nil
}

// NodeExists implements commands.NodeDirectory.
func (s *Service) NodeExists(ctx context.Context, nodeID string) (bool, error) {
	_, err := s.store.GetByNodeID(ctx, nodeID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Telemetry returns the most recent telemetry samples for a node.
func (s *Service) Telemetry(ctx context.Context, nodeID string, limit int) ([]TelemetrySample, error) {
	if _, err := s.store.GetByNodeID(ctx, nodeID); err != nil {
		return nil, err
	}
	return s.store.ListTelemetry(ctx, nodeID, limit)
}

func generateAuthToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "nt_" + base64.RawURLEncoding.EncodeToString(b), nil
}
