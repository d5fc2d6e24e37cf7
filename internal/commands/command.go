package commands

import (
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a command. Transitions only move
// forward through the lifecycle graph; see ApplyReport.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTimeout      Status = "timeout"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusAcknowledged,
		StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Built-in command types. The set is open: custom deployments may create
// commands with other type strings as long as the agent registers a
// handler for them.
const (
	TypePing         = "ping"
	TypeReloadConfig = "reload_config"
	TypeUpdateConfig = "update_config"
	TypeChangeRole   = "change_role"
	TypeCustom       = "custom"
)

// Command is a unit of work dispatched to exactly one node. The target
// node never changes for the lifetime of the command.
type Command struct {
	ID      uuid.UUID
	Type    string
	Status  Status
	NodeID  string
	Payload map[string]any

	Result map[string]any
	Error  string

	// CreatedBy is the issuing user's ID; empty for system-issued commands.
	CreatedBy string

	CreatedAt      time.Time
	SentAt         *time.Time
	AcknowledgedAt *time.Time
	CompletedAt    *time.Time
}
