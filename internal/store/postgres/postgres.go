// Package postgres holds the durable store implementations backed by
// pgx. Schema lives in internal/db/migrations and is applied with goose
// at startup.
package postgres

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles every postgres-backed store over one shared pool.
type Stores struct {
	Commands *CommandStore
	Nodes    *NodeStore
	Users    *UserStore
	Configs  *ConfigStore
	Audit    *AuditStore
}

func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Commands: &CommandStore{pool: pool},
		Nodes:    &NodeStore{pool: pool},
		Users:    &UserStore{pool: pool},
		Configs:  &ConfigStore{pool: pool},
		Audit:    &AuditStore{pool: pool},
	}
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
