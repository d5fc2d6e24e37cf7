package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetmesh/fleetmesh/internal/nodes"
)

// NodeStore persists node records and their telemetry history.
type NodeStore struct {
	pool *pgxpool.Pool
}

const nodeColumns = `id, node_id, name, description, node_type, status,
	last_heartbeat, cpu_usage, memory_usage, disk_usage,
	latitude, longitude, altitude, ip_address, mac_address,
	auth_token, metadata, registered_at, updated_at`

func (s *NodeStore) Create(ctx context.Context, node *nodes.Node) error {
	metadata, err := marshalJSON(node.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO nodes (id, node_id, name, description, node_type, status,
			last_heartbeat, cpu_usage, memory_usage, disk_usage,
			latitude, longitude, altitude, ip_address, mac_address,
			auth_token, metadata, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		node.ID, node.NodeID, node.Name, node.Description, node.NodeType,
		node.Status, node.LastHeartbeat,
		node.CPUUsage, node.MemoryUsage, node.DiskUsage,
		node.Latitude, node.Longitude, node.Altitude,
		node.IPAddress, node.MACAddress, node.AuthToken, metadata,
		node.RegisteredAt, node.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

func (s *NodeStore) GetByNodeID(ctx context.Context, nodeID string) (*nodes.Node, error) {
	return s.get(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE node_id = $1`, nodeID)
}

func (s *NodeStore) GetByToken(ctx context.Context, token string) (*nodes.Node, error) {
	return s.get(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE auth_token = $1`, token)
}

func (s *NodeStore) get(ctx context.Context, query string, arg any) (*nodes.Node, error) {
	node, err := scanNode(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nodes.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	return node, nil
}

func (s *NodeStore) Update(ctx context.Context, node *nodes.Node) error {
	metadata, err := marshalJSON(node.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE nodes
		SET name = $2, description = $3, node_type = $4, status = $5,
			last_heartbeat = $6, cpu_usage = $7, memory_usage = $8,
			disk_usage = $9, latitude = $10, longitude = $11, altitude = $12,
			ip_address = $13, mac_address = $14, auth_token = $15,
			metadata = $16, updated_at = $17
		WHERE node_id = $1`,
		node.NodeID, node.Name, node.Description, node.NodeType, node.Status,
		node.LastHeartbeat, node.CPUUsage, node.MemoryUsage, node.DiskUsage,
		node.Latitude, node.Longitude, node.Altitude,
		node.IPAddress, node.MACAddress, node.AuthToken, metadata,
		node.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nodes.ErrNotFound
	}
	return nil
}

func (s *NodeStore) List(ctx context.Context, filter nodes.ListFilter) ([]nodes.Node, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.NodeType != nil {
		args = append(args, *filter.NodeType)
		where += fmt.Sprintf(" AND node_type = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM nodes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count nodes: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + nodeColumns + ` FROM nodes` + where +
		fmt.Sprintf(" ORDER BY node_id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	out := []nodes.Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	return out, total, nil
}

func (s *NodeStore) Delete(ctx context.Context, nodeID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM nodes WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nodes.ErrNotFound
	}
	return nil
}

func (s *NodeStore) MarkStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nodes
		SET status = 'offline'
		WHERE status = 'online' AND (last_heartbeat IS NULL OR last_heartbeat < $1)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale nodes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *NodeStore) InsertTelemetry(ctx context.Context, sample *nodes.TelemetrySample) error {
	custom, err := marshalJSON(sample.Custom)
	if err != nil {
		return fmt.Errorf("failed to marshal custom metrics: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO telemetry_samples (id, node_id, cpu_usage, memory_usage,
			disk_usage, latitude, longitude, altitude, custom_metrics, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sample.ID, sample.NodeID,
		sample.CPUUsage, sample.MemoryUsage, sample.DiskUsage,
		sample.Latitude, sample.Longitude, sample.Altitude,
		custom, sample.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

func (s *NodeStore) ListTelemetry(ctx context.Context, nodeID string, limit int) ([]nodes.TelemetrySample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, node_id, cpu_usage, memory_usage, disk_usage,
			latitude, longitude, altitude, custom_metrics, recorded_at
		FROM telemetry_samples
		WHERE node_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`,
		nodeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	out := []nodes.TelemetrySample{}
	for rows.Next() {
		var (
			sample nodes.TelemetrySample
			custom []byte
		)
		err := rows.Scan(
			&sample.ID, &sample.NodeID,
			&sample.CPUUsage, &sample.MemoryUsage, &sample.DiskUsage,
			&sample.Latitude, &sample.Longitude, &sample.Altitude,
			&custom, &sample.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telemetry: %w", err)
		}
		if sample.Custom, err = unmarshalJSON(custom); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom metrics: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate telemetry: %w", err)
	}
	return out, nil
}

func scanNode(row pgx.Row) (*nodes.Node, error) {
	var (
		node     nodes.Node
		metadata []byte
	)
	err := row.Scan(
		&node.ID, &node.NodeID, &node.Name, &node.Description, &node.NodeType,
		&node.Status, &node.LastHeartbeat,
		&node.CPUUsage, &node.MemoryUsage, &node.DiskUsage,
		&node.Latitude, &node.Longitude, &node.Altitude,
		&node.IPAddress, &node.MACAddress, &node.AuthToken, &metadata,
		&node.RegisteredAt, &node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if node.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &node, nil
}
