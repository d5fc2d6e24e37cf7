package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
)

// FleetCommandFlow walks the full node lifecycle against Postgres:
// registration, command queuing, heartbeat delivery, result reporting
// and telemetry.
func FleetCommandFlow(t *testing.T, router *gin.Engine) {
	adminToken := loginAs(t, router, "admin", "changeme")

	rr := doJSON(router, "POST", "/api/v1/nodes/register", dto.RegisterNodeRequest{
		NodeID:   "sys-node-1",
		Name:     "system test node",
		NodeType: "worker",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var reg dto.RegisterNodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reg))
	require.NotEmpty(t, reg.AuthToken)
	nodeToken := reg.AuthToken

	var commandID string
	t.Run("queue command", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/commands", dto.CreateCommandRequest{
			NodeID:  "sys-node-1",
			Type:    "ping",
			Payload: map[string]any{"echo": "hello"},
		}, adminToken)
		require.Equal(t, http.StatusCreated, rr.Code)

		var cmd dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cmd))
		assert.Equal(t, "pending", cmd.Status)
		commandID = cmd.ID
	})

	t.Run("command for unknown node rejected", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/commands", dto.CreateCommandRequest{
			NodeID: "no-such-node",
			Type:   "ping",
		}, adminToken)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("heartbeat delivers command once", func(t *testing.T) {
		cpu := 12.5
		rr := doJSONAuth(router, "POST", "/api/v1/nodes/heartbeat", dto.HeartbeatRequest{CPUUsage: &cpu}, nodeToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var hb dto.HeartbeatResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hb))
		require.Len(t, hb.DueCommands, 1)
		assert.Equal(t, commandID, hb.DueCommands[0].ID)
		assert.Equal(t, "sent", hb.DueCommands[0].Status)

		rr = doJSONAuth(router, "POST", "/api/v1/nodes/heartbeat", dto.HeartbeatRequest{}, nodeToken)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hb))
		assert.Empty(t, hb.DueCommands)
	})

	t.Run("report acknowledged then completed", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/commands/"+commandID+"/result",
			dto.ReportResultRequest{Status: "acknowledged"}, nodeToken)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONAuth(router, "POST", "/api/v1/commands/"+commandID+"/result",
			dto.ReportResultRequest{Status: "completed", Result: map[string]any{"echo": "hello"}}, nodeToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var cmd dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cmd))
		assert.Equal(t, "completed", cmd.Status)
		assert.NotNil(t, cmd.CompletedAt)
	})

	t.Run("duplicate terminal report is idempotent", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/commands/"+commandID+"/result",
			dto.ReportResultRequest{Status: "completed", Result: map[string]any{"echo": "hello"}}, nodeToken)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("conflicting terminal report rejected", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/commands/"+commandID+"/result",
			dto.ReportResultRequest{Status: "failed", Error: "changed my mind"}, nodeToken)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("node is online with telemetry", func(t *testing.T) {
		rr := doJSONAuth(router, "GET", "/api/v1/nodes/sys-node-1", nil, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var node dto.NodeResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &node))
		assert.Equal(t, "online", node.Status)
		require.NotNil(t, node.CPUUsage)
		assert.InDelta(t, 12.5, *node.CPUUsage, 0.001)

		rr = doJSONAuth(router, "GET", "/api/v1/nodes/sys-node-1/telemetry", nil, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var telemetry dto.ListTelemetryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &telemetry))
		assert.GreaterOrEqual(t, len(telemetry.Samples), 2)
	})

	t.Run("re-registration rotates the token", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/nodes/register", dto.RegisterNodeRequest{NodeID: "sys-node-1"})
		require.Equal(t, http.StatusCreated, rr.Code)

		var rereg dto.RegisterNodeResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rereg))
		require.NotEqual(t, nodeToken, rereg.AuthToken)

		rr = doJSONAuth(router, "POST", "/api/v1/nodes/heartbeat", dto.HeartbeatRequest{}, nodeToken)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = doJSONAuth(router, "POST", "/api/v1/nodes/heartbeat", dto.HeartbeatRequest{}, rereg.AuthToken)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

// ConfigEntries covers create, read, list and delete of config entries.
func ConfigEntries(t *testing.T, router *gin.Engine) {
	adminToken := loginAs(t, router, "admin", "changeme")

	rr := doJSONAuth(router, "POST", "/api/v1/configs", dto.SetConfigRequest{
		Key:   "telemetry.interval",
		Value: map[string]any{"seconds": 30},
		Scope: "global",
	}, adminToken)
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("upsert overwrites", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/configs", dto.SetConfigRequest{
			Key:   "telemetry.interval",
			Value: map[string]any{"seconds": 60},
			Scope: "global",
		}, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONAuth(router, "GET", "/api/v1/configs/telemetry.interval?scope=global", nil, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var entry dto.ConfigEntryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
		assert.InDelta(t, 60, entry.Value["seconds"], 0.001)
	})

	t.Run("node scoped entry", func(t *testing.T) {
		rr := doJSONAuth(router, "POST", "/api/v1/configs", dto.SetConfigRequest{
			Key:    "telemetry.interval",
			Value:  map[string]any{"seconds": 5},
			Scope:  "node",
			NodeID: "sys-node-1",
		}, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONAuth(router, "GET", "/api/v1/configs?scope=node&node_id=sys-node-1", nil, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var list dto.ListConfigsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.Equal(t, 1, list.Total)
		assert.Equal(t, "sys-node-1", list.Entries[0].NodeID)
	})

	t.Run("delete", func(t *testing.T) {
		rr := doJSONAuth(router, "DELETE", "/api/v1/configs/telemetry.interval?scope=node&node_id=sys-node-1", nil, adminToken)
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = doJSONAuth(router, "GET", "/api/v1/configs/telemetry.interval?scope=node&node_id=sys-node-1", nil, adminToken)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
