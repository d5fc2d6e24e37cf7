package commands

import (
	"errors"
	"time"
)

var (
	// ErrStatusConflict is returned when a reported status contradicts the
	// stored one, e.g. reporting "failed" for a command already completed.
	ErrStatusConflict = errors.New("command status conflict")

	// ErrInvalidStatus is returned for status values a node may not report.
	ErrInvalidStatus = errors.New("invalid reported status")
)

// ApplyReport applies a node-reported status to the command in place and
// returns whether the command was mutated. Nodes may report acknowledged,
// completed or failed. Duplicate reports are no-ops; a terminal report
// that contradicts an existing terminal state returns ErrStatusConflict
// and leaves the command untouched.
func ApplyReport(cmd *Command, reported Status, result map[string]any, errMsg string, now time.Time) (bool, error) {
	switch reported {
	case StatusAcknowledged:
		return applyAcknowledged(cmd, now)
	case StatusCompleted, StatusFailed:
		return applyTerminal(cmd, reported, result, errMsg, now)
	default:
		return false, ErrInvalidStatus
	}
}

func applyAcknowledged(cmd *Command, now time.Time) (bool, error) {
	switch cmd.Status {
	case StatusSent:
		cmd.Status = StatusAcknowledged
		if cmd.AcknowledgedAt == nil {
			cmd.AcknowledgedAt = &now
		}
		return true, nil
	case StatusAcknowledged:
		// Repeated acknowledgement, e.g. a retried report.
		return false, nil
	case StatusPending:
		// The node cannot hold a command that was never sent.
		return false, ErrStatusConflict
	default:
		// Late acknowledgement of a command already resolved; harmless.
		return false, nil
	}
}

func applyTerminal(cmd *Command, reported Status, result map[string]any, errMsg string, now time.Time) (bool, error) {
	switch cmd.Status {
	case StatusSent, StatusAcknowledged:
		cmd.Status = reported
		cmd.Result = result
		cmd.Error = errMsg
		cmd.CompletedAt = &now
		return true, nil
	case reported:
		// Identical terminal report retried over the network.
		return false, nil
	case StatusPending:
		return false, ErrStatusConflict
	default:
		return false, ErrStatusConflict
	}
}

// MarkTimeout transitions a non-terminal command to TIMEOUT. It is the
// hook invoked by the controller's sweep; terminal commands are left
// untouched.
func MarkTimeout(cmd *Command, now time.Time) bool {
	if cmd.Status.Terminal() {
		return false
	}
	cmd.Status = StatusTimeout
	cmd.CompletedAt = &now
	return true
}

// MarkSent transitions a PENDING command to SENT, setting sent_at exactly
// once. Store implementations perform this transition atomically when
// claiming commands for a heartbeat.
func MarkSent(cmd *Command, now time.Time) bool {
	if cmd.Status != StatusPending {
		return false
	}
	cmd.Status = StatusSent
	cmd.SentAt = &now
	return true
}
