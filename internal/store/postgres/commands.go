package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetmesh/fleetmesh/internal/commands"
)

// CommandStore persists commands. Claiming and report updates are done
// with conditional UPDATEs so concurrent heartbeats and operators never
// race past each other.
type CommandStore struct {
	pool *pgxpool.Pool
}

const commandColumns = `id, command_type, status, node_id, payload, result,
	error_message, created_by, created_at, sent_at, acknowledged_at, completed_at`

func (s *CommandStore) Create(ctx context.Context, cmd *commands.Command) error {
	payload, err := marshalJSON(cmd.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO commands (id, command_type, status, node_id, payload, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cmd.ID, cmd.Type, cmd.Status, cmd.NodeID, payload,
		nullableString(cmd.CreatedBy), cmd.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

func (s *CommandStore) Get(ctx context.Context, id uuid.UUID) (*commands.Command, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE id = $1`, id)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, commands.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query command: %w", err)
	}
	return cmd, nil
}

func (s *CommandStore) List(ctx context.Context, filter commands.ListFilter) ([]commands.Command, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(" AND command_type = $%d", len(args))
	}
	if filter.NodeID != nil {
		args = append(args, *filter.NodeID)
		where += fmt.Sprintf(" AND node_id = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM commands`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count commands: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + commandColumns + ` FROM commands` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	out, err := collectCommands(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *CommandStore) UpdateReport(ctx context.Context, cmd *commands.Command, expected commands.Status) error {
	result, err := marshalJSON(cmd.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE commands
		SET status = $2, result = $3, error_message = $4,
			acknowledged_at = $5, completed_at = $6
		WHERE id = $1 AND status = $7`,
		cmd.ID, cmd.Status, result, nullableString(cmd.Error),
		cmd.AcknowledgedAt, cmd.CompletedAt, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update command: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM commands WHERE id = $1)`, cmd.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check command existence: %w", err)
		}
		if !exists {
			return commands.ErrNotFound
		}
		return commands.ErrStale
	}
	return nil
}

func (s *CommandStore) ClaimPending(ctx context.Context, nodeID string, limit int, now time.Time) ([]commands.Command, error) {
	// SKIP LOCKED keeps two overlapping heartbeats from ever claiming
	// the same command.
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE commands
			SET status = 'sent', sent_at = $3
			WHERE id IN (
				SELECT id FROM commands
				WHERE node_id = $1 AND status = 'pending'
				ORDER BY created_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+commandColumns+`
		)
		SELECT `+commandColumns+` FROM claimed ORDER BY created_at`,
		nodeID, limit, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

func (s *CommandStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM commands WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete command: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return commands.ErrNotFound
	}
	return nil
}

func (s *CommandStore) MarkTimedOut(ctx context.Context, cutoff time.Time, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE commands
		SET status = 'timeout', completed_at = $2
		WHERE status IN ('pending', 'sent', 'acknowledged') AND created_at < $1`,
		cutoff, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to time out commands: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanCommand(row pgx.Row) (*commands.Command, error) {
	var (
		cmd               commands.Command
		payload, result   []byte
		errMsg, createdBy *string
	)
	err := row.Scan(
		&cmd.ID, &cmd.Type, &cmd.Status, &cmd.NodeID, &payload, &result,
		&errMsg, &createdBy, &cmd.CreatedAt,
		&cmd.SentAt, &cmd.AcknowledgedAt, &cmd.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if cmd.Payload, err = unmarshalJSON(payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if cmd.Result, err = unmarshalJSON(result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	if errMsg != nil {
		cmd.Error = *errMsg
	}
	if createdBy != nil {
		cmd.CreatedBy = *createdBy
	}
	return &cmd, nil
}

func collectCommands(rows pgx.Rows) ([]commands.Command, error) {
	out := []commands.Command{}
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		out = append(out, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commands: %w", err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
