package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/configs"
)

// ConfigStore persists configuration entries, unique per key+scope+node.
type ConfigStore struct {
	pool *pgxpool.Pool
}

func (s *ConfigStore) Upsert(ctx context.Context, entry *configs.Entry) error {
	value, err := marshalJSON(entry.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal config value: %w", err)
	}

	// Keep the original id and created_at when the key already exists.
	err = s.pool.QueryRow(ctx, `
		INSERT INTO config_entries (id, key, value, scope, node_id, description,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key, scope, node_id) DO UPDATE
		SET value = EXCLUDED.value, description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		entry.ID, entry.Key, value, entry.Scope, entry.NodeID,
		entry.Description, entry.CreatedAt, entry.UpdatedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert config entry: %w", err)
	}
	return nil
}

func (s *ConfigStore) Get(ctx context.Context, key, scope, nodeID string) (*configs.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, key, value, scope, node_id, description, created_at, updated_at
		FROM config_entries
		WHERE key = $1 AND scope = $2 AND node_id = $3`,
		key, scope, nodeID,
	)
	entry, err := scanConfigEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, configs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query config entry: %w", err)
	}
	return entry, nil
}

func (s *ConfigStore) List(ctx context.Context, scope, nodeID string) ([]configs.Entry, error) {
	query := `
		SELECT id, key, value, scope, node_id, description, created_at, updated_at
		FROM config_entries WHERE 1=1`
	args := []any{}
	if scope != "" {
		args = append(args, scope)
		query += fmt.Sprintf(" AND scope = $%d", len(args))
	}
	if nodeID != "" {
		args = append(args, nodeID)
		query += fmt.Sprintf(" AND node_id = $%d", len(args))
	}
	query += " ORDER BY key"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query config entries: %w", err)
	}
	defer rows.Close()

	out := []configs.Entry{}
	for rows.Next() {
		entry, err := scanConfigEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate config entries: %w", err)
	}
	return out, nil
}

func (s *ConfigStore) Delete(ctx context.Context, key, scope, nodeID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM config_entries
		WHERE key = $1 AND scope = $2 AND node_id = $3`,
		key, scope, nodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete config entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return configs.ErrNotFound
	}
	return nil
}

func scanConfigEntry(row pgx.Row) (*configs.Entry, error) {
	var (
		entry configs.Entry
		value []byte
	)
	err := row.Scan(
		&entry.ID, &entry.Key, &value, &entry.Scope, &entry.NodeID,
		&entry.Description, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if entry.Value, err = unmarshalJSON(value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config value: %w", err)
	}
	return &entry, nil
}

// AuditStore appends audit records.
type AuditStore struct {
	pool *pgxpool.Pool
}

func (s *AuditStore) Insert(ctx context.Context, entry *audit.Entry) error {
	details, err := marshalJSON(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, username, action, resource_type,
			resource_id, details, ip_address, success, error_message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.UserID, entry.Username, entry.Action,
		entry.ResourceType, entry.ResourceID, details, entry.IPAddress,
		entry.Success, nullableString(entry.ErrorMessage), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
