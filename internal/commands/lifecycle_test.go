package commands

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(status Status) *Command {
	return &Command{
		ID:        uuid.New(),
		Type:      TypePing,
		Status:    status,
		NodeID:    "node-1",
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
}

func TestApplyReportAcknowledge(t *testing.T) {
	now := time.Now().UTC()

	cmd := newTestCommand(StatusSent)
	changed, err := ApplyReport(cmd, StatusAcknowledged, nil, "", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusAcknowledged, cmd.Status)
	require.NotNil(t, cmd.AcknowledgedAt)
	assert.Equal(t, now, *cmd.AcknowledgedAt)
}

func TestApplyReportAcknowledgeTwice(t *testing.T) {
	now := time.Now().UTC()

	cmd := newTestCommand(StatusSent)
	_, err := ApplyReport(cmd, StatusAcknowledged, nil, "", now)
	require.NoError(t, err)

	changed, err := ApplyReport(cmd, StatusAcknowledged, nil, "", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, now, *cmd.AcknowledgedAt)
}

func TestApplyReportAcknowledgePending(t *testing.T) {
	cmd := newTestCommand(StatusPending)
	changed, err := ApplyReport(cmd, StatusAcknowledged, nil, "", time.Now().UTC())
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.False(t, changed)
	assert.Equal(t, StatusPending, cmd.Status)
}

func TestApplyReportAcknowledgeAfterTerminal(t *testing.T) {
	cmd := newTestCommand(StatusCompleted)
	changed, err := ApplyReport(cmd, StatusAcknowledged, nil, "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusCompleted, cmd.Status)
}

func TestApplyReportCompleted(t *testing.T) {
	now := time.Now().UTC()

	cmd := newTestCommand(StatusAcknowledged)
	result := map[string]any{"output": "ok"}
	changed, err := ApplyReport(cmd, StatusCompleted, result, "", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCompleted, cmd.Status)
	assert.Equal(t, result, cmd.Result)
	require.NotNil(t, cmd.CompletedAt)
}

func TestApplyReportTerminalSkipsAcknowledge(t *testing.T) {
	// A fast node may report the outcome without ever acknowledging.
	cmd := newTestCommand(StatusSent)
	changed, err := ApplyReport(cmd, StatusFailed, nil, "disk full", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusFailed, cmd.Status)
	assert.Equal(t, "disk full", cmd.Error)
	assert.Nil(t, cmd.AcknowledgedAt)
}

func TestApplyReportDuplicateTerminal(t *testing.T) {
	cmd := newTestCommand(StatusSent)
	_, err := ApplyReport(cmd, StatusCompleted, map[string]any{"n": 1}, "", time.Now().UTC())
	require.NoError(t, err)

	changed, err := ApplyReport(cmd, StatusCompleted, map[string]any{"n": 2}, "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, map[string]any{"n": 1}, cmd.Result)
}

func TestApplyReportConflictingTerminal(t *testing.T) {
	cmd := newTestCommand(StatusSent)
	_, err := ApplyReport(cmd, StatusCompleted, nil, "", time.Now().UTC())
	require.NoError(t, err)

	changed, err := ApplyReport(cmd, StatusFailed, nil, "late failure", time.Now().UTC())
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.False(t, changed)
	assert.Equal(t, StatusCompleted, cmd.Status)
	assert.Empty(t, cmd.Error)
}

func TestApplyReportTerminalOnPending(t *testing.T) {
	cmd := newTestCommand(StatusPending)
	_, err := ApplyReport(cmd, StatusCompleted, nil, "", time.Now().UTC())
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestApplyReportInvalidStatus(t *testing.T) {
	cmd := newTestCommand(StatusSent)
	_, err := ApplyReport(cmd, StatusPending, nil, "", time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ApplyReport(cmd, Status("garbage"), nil, "", time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMarkTimeout(t *testing.T) {
	now := time.Now().UTC()

	for _, status := range []Status{StatusPending, StatusSent, StatusAcknowledged} {
		cmd := newTestCommand(status)
		assert.True(t, MarkTimeout(cmd, now), "status %s", status)
		assert.Equal(t, StatusTimeout, cmd.Status)
		require.NotNil(t, cmd.CompletedAt)
	}

	for _, status := range []Status{StatusCompleted, StatusFailed, StatusTimeout} {
		cmd := newTestCommand(status)
		assert.False(t, MarkTimeout(cmd, now), "status %s", status)
		assert.Equal(t, status, cmd.Status)
	}
}

func TestMarkSent(t *testing.T) {
	now := time.Now().UTC()

	cmd := newTestCommand(StatusPending)
	assert.True(t, MarkSent(cmd, now))
	assert.Equal(t, StatusSent, cmd.Status)
	require.NotNil(t, cmd.SentAt)

	later := now.Add(time.Minute)
	assert.False(t, MarkSent(cmd, later))
	assert.Equal(t, now, *cmd.SentAt)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.False(t, StatusAcknowledged.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusTimeout.Terminal())
}
