package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
)

// SeededAdminLogin verifies the migration-seeded admin account works
// against a real database.
func SeededAdminLogin(t *testing.T, router *gin.Engine) {
	t.Run("success", func(t *testing.T) {
		body := dto.LoginRequest{Username: "admin", Password: "changeme"}
		rr := doJSON(router, "POST", "/api/v1/auth/login", body)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, "admin", resp.User.Username)
		assert.Equal(t, "admin", resp.User.Role)
	})

	t.Run("me", func(t *testing.T) {
		token := loginAs(t, router, "admin", "changeme")
		rr := doJSONAuth(router, "GET", "/api/v1/auth/me", nil, token)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "admin", resp.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		body := dto.LoginRequest{Username: "admin", Password: "notchangeme"}
		rr := doJSON(router, "POST", "/api/v1/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("logout revokes token", func(t *testing.T) {
		token := loginAs(t, router, "admin", "changeme")

		rr := doJSONAuth(router, "POST", "/api/v1/auth/logout", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONAuth(router, "GET", "/api/v1/auth/me", nil, token)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// UserManagement exercises admin-only user creation and listing.
func UserManagement(t *testing.T, router *gin.Engine) {
	adminToken := loginAs(t, router, "admin", "changeme")

	t.Run("create operator", func(t *testing.T) {
		body := dto.CreateUserRequest{Username: "operator1", Password: "password123", Role: "operator"}
		rr := doJSONAuth(router, "POST", "/api/v1/auth/users", body, adminToken)

		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "operator1", resp.Username)
		assert.Equal(t, "operator", resp.Role)
		assert.True(t, resp.IsActive)
	})

	t.Run("new user can login", func(t *testing.T) {
		token := loginAs(t, router, "operator1", "password123")
		assert.NotEmpty(t, token)
	})

	t.Run("duplicate username", func(t *testing.T) {
		body := dto.CreateUserRequest{Username: "operator1", Password: "password123", Role: "operator"}
		rr := doJSONAuth(router, "POST", "/api/v1/auth/users", body, adminToken)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("invalid role", func(t *testing.T) {
		body := dto.CreateUserRequest{Username: "badrole", Password: "password123", Role: "superuser"}
		rr := doJSONAuth(router, "POST", "/api/v1/auth/users", body, adminToken)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-admin cannot create users", func(t *testing.T) {
		operatorToken := loginAs(t, router, "operator1", "password123")
		body := dto.CreateUserRequest{Username: "sneaky", Password: "password123", Role: "observer"}
		rr := doJSONAuth(router, "POST", "/api/v1/auth/users", body, operatorToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("list users", func(t *testing.T) {
		rr := doJSONAuth(router, "GET", "/api/v1/auth/users", nil, adminToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListUsersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.GreaterOrEqual(t, resp.Total, 2)
	})
}

// LoginLockout drives a dedicated account through five failed attempts
// and verifies the lockout response, including the locked-with-correct-
// password case.
func LoginLockout(t *testing.T, router *gin.Engine) {
	adminToken := loginAs(t, router, "admin", "changeme")
	body := dto.CreateUserRequest{Username: "lockme", Password: "password123", Role: "observer"}
	rr := doJSONAuth(router, "POST", "/api/v1/auth/users", body, adminToken)
	require.Equal(t, http.StatusCreated, rr.Code)

	for i := 0; i < 5; i++ {
		rr := doJSON(router, "POST", "/api/v1/auth/login", dto.LoginRequest{Username: "lockme", Password: "wrong"})
		require.Equal(t, http.StatusUnauthorized, rr.Code, "attempt %d", i+1)
	}

	rr = doJSON(router, "POST", "/api/v1/auth/login", dto.LoginRequest{Username: "lockme", Password: "password123"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp, "retry_after_seconds")
}

func loginAs(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()
	rr := doJSON(router, "POST", "/api/v1/auth/login", dto.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp dto.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	return doJSONAuth(router, method, path, body, "")
}

func doJSONAuth(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
