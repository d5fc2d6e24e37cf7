package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/fleetmesh/fleetmesh/internal/api/http"
	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/auth"
	"github.com/fleetmesh/fleetmesh/internal/commands"
	"github.com/fleetmesh/fleetmesh/internal/configs"
	"github.com/fleetmesh/fleetmesh/internal/nodes"
	"github.com/fleetmesh/fleetmesh/internal/security"
	"github.com/fleetmesh/fleetmesh/internal/store/memory"
	"github.com/fleetmesh/fleetmesh/internal/users"
)

type testAPI struct {
	engine      *gin.Engine
	userService *users.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userService := users.NewService(memory.NewUserStore())
	authService := auth.NewService(
		userService,
		security.NewLockoutGuard(),
		security.NewRevocationGuard(),
		audit.NewRecorder(memory.NewAuditStore()),
		auth.Config{Secret: "test-secret", ExpiryMinutes: 60},
	)

	nodeStore := memory.NewNodeStore()
	var nodeService *nodes.Service
	commandService := commands.NewService(memory.NewCommandStore(),
		commands.NodeDirectoryFunc(func(ctx context.Context, nodeID string) (bool, error) {
			return nodeService.NodeExists(ctx, nodeID)
		}))
	nodeService = nodes.NewService(nodeStore, commandService, time.Minute)

	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Auth:     authService,
		Users:    userService,
		Nodes:    nodeService,
		Commands: commandService,
		Configs:  configs.NewService(memory.NewConfigStore()),
		Audit:    audit.NewRecorder(memory.NewAuditStore()),
		Version:  "test",
	})

	return &testAPI{engine: engine, userService: userService}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) seedUser(t *testing.T, username, password string, role users.Role) {
	t.Helper()
	_, err := a.userService.Create(context.Background(), username, "", password, role)
	require.NoError(t, err)
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	w := a.request(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (a *testAPI) registerNode(t *testing.T, nodeID string) string {
	t.Helper()
	w := a.request(t, http.MethodPost, "/api/v1/nodes/register", "", dto.RegisterNodeRequest{
		NodeID:   nodeID,
		NodeType: "sensor",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.RegisterNodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AuthToken
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginAndMe(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "correct-horse", users.RoleAdmin)

	token := api.login(t, "alice", "correct-horse")

	w := api.request(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me dto.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "admin", me.Role)
}

func TestLoginLockoutResponses(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "correct-horse", users.RoleAdmin)

	for i := 0; i < security.MaxFailedAttempts-1; i++ {
		w := api.request(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
			Username: "alice", Password: "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(security.MaxFailedAttempts-1-i), resp["attempts_remaining"])
	}

	w := api.request(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Username: "alice", Password: "wrong",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Correct password while locked still gets 429.
	w = api.request(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Username: "alice", Password: "correct-horse",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "retry_after_seconds")
}

func TestLogoutRevokes(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "correct-horse", users.RoleAdmin)
	token := api.login(t, "alice", "correct-horse")

	w := api.request(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.request(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "admin", "admin-pass-1", users.RoleAdmin)
	api.seedUser(t, "op", "operator-pass", users.RoleOperator)

	opToken := api.login(t, "op", "operator-pass")
	w := api.request(t, http.MethodPost, "/api/v1/auth/users", opToken, dto.CreateUserRequest{
		Username: "newbie", Password: "password123", Role: "observer",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken := api.login(t, "admin", "admin-pass-1")
	w = api.request(t, http.MethodPost, "/api/v1/auth/users", adminToken, dto.CreateUserRequest{
		Username: "newbie", Password: "password123", Role: "observer",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Duplicate username conflicts.
	w = api.request(t, http.MethodPost, "/api/v1/auth/users", adminToken, dto.CreateUserRequest{
		Username: "newbie", Password: "password123", Role: "observer",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNodeEndpointsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, http.MethodGet, "/api/v1/nodes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.request(t, http.MethodPost, "/api/v1/nodes/heartbeat", "garbage", dto.HeartbeatRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCommandDeliveryRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "op", "operator-pass", users.RoleOperator)
	opToken := api.login(t, "op", "operator-pass")
	nodeToken := api.registerNode(t, "node-1")

	// Operator queues a command.
	w := api.request(t, http.MethodPost, "/api/v1/commands", opToken, dto.CreateCommandRequest{
		NodeID: "node-1", Type: "ping",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created dto.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)

	// The node's heartbeat claims it.
	w = api.request(t, http.MethodPost, "/api/v1/nodes/heartbeat", nodeToken, dto.HeartbeatRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var hb dto.HeartbeatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hb))
	require.Len(t, hb.DueCommands, 1)
	assert.Equal(t, created.ID, hb.DueCommands[0].ID)
	assert.Equal(t, "sent", hb.DueCommands[0].Status)

	// A second heartbeat must not deliver it again.
	w = api.request(t, http.MethodPost, "/api/v1/nodes/heartbeat", nodeToken, dto.HeartbeatRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	hb = dto.HeartbeatResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hb))
	assert.Empty(t, hb.DueCommands)

	// The node reports the outcome.
	resultPath := fmt.Sprintf("/api/v1/commands/%s/result", created.ID)
	w = api.request(t, http.MethodPost, resultPath, nodeToken, dto.ReportResultRequest{
		Status: "completed", Result: map[string]any{"ok": true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A retried identical report is fine; a contradicting one is not.
	w = api.request(t, http.MethodPost, resultPath, nodeToken, dto.ReportResultRequest{
		Status: "completed",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.request(t, http.MethodPost, resultPath, nodeToken, dto.ReportResultRequest{
		Status: "failed", Error: "late failure",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Operator sees the final state.
	w = api.request(t, http.MethodGet, "/api/v1/commands/"+created.ID, opToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var final dto.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &final))
	assert.Equal(t, "completed", final.Status)
}

func TestReportResultWrongNode(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "op", "operator-pass", users.RoleOperator)
	opToken := api.login(t, "op", "operator-pass")
	api.registerNode(t, "node-1")
	otherToken := api.registerNode(t, "node-2")

	w := api.request(t, http.MethodPost, "/api/v1/commands", opToken, dto.CreateCommandRequest{
		NodeID: "node-1", Type: "ping",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created dto.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = api.request(t, http.MethodPost, "/api/v1/commands/"+created.ID+"/result", otherToken, dto.ReportResultRequest{
		Status: "completed",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateCommandForUnknownNode(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "op", "operator-pass", users.RoleOperator)
	opToken := api.login(t, "op", "operator-pass")

	w := api.request(t, http.MethodPost, "/api/v1/commands", opToken, dto.CreateCommandRequest{
		NodeID: "ghost", Type: "ping",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestObserverCannotWrite(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "watcher", "observer-pass", users.RoleObserver)
	api.registerNode(t, "node-1")
	token := api.login(t, "watcher", "observer-pass")

	w := api.request(t, http.MethodPost, "/api/v1/commands", token, dto.CreateCommandRequest{
		NodeID: "node-1", Type: "ping",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.request(t, http.MethodDelete, "/api/v1/nodes/node-1", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Reads are allowed.
	w = api.request(t, http.MethodGet, "/api/v1/nodes", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfigCRUD(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "op", "operator-pass", users.RoleOperator)
	token := api.login(t, "op", "operator-pass")

	w := api.request(t, http.MethodPost, "/api/v1/configs", token, dto.SetConfigRequest{
		Key: "telemetry", Value: map[string]any{"interval": float64(30)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.request(t, http.MethodGet, "/api/v1/configs/telemetry", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry dto.ConfigEntryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, "global", entry.Scope)
	assert.Equal(t, map[string]any{"interval": float64(30)}, entry.Value)

	w = api.request(t, http.MethodDelete, "/api/v1/configs/telemetry", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.request(t, http.MethodGet, "/api/v1/configs/telemetry", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeReRegistrationInvalidatesOldToken(t *testing.T) {
	api := newTestAPI(t)

	oldToken := api.registerNode(t, "node-1")
	newToken := api.registerNode(t, "node-1")
	require.NotEqual(t, oldToken, newToken)

	w := api.request(t, http.MethodPost, "/api/v1/nodes/heartbeat", oldToken, dto.HeartbeatRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.request(t, http.MethodPost, "/api/v1/nodes/heartbeat", newToken, dto.HeartbeatRequest{})
	assert.Equal(t, http.StatusOK, w.Code)
}
