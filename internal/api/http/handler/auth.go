package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
	"github.com/fleetmesh/fleetmesh/internal/api/http/middleware"
	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/auth"
	"github.com/fleetmesh/fleetmesh/internal/users"
)

type AuthHandler struct {
	authService *auth.Service
	userService *users.Service
	auditor     *audit.Recorder
}

func NewAuthHandler(authService *auth.Service, userService *users.Service, auditor *audit.Recorder) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		auditor:     auditor,
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			resp := gin.H{"error": "account temporarily locked"}
			if remaining, ok := h.authService.LockoutRemaining(req.Username); ok {
				resp["retry_after_seconds"] = remaining
			}
			c.JSON(http.StatusTooManyRequests, resp)
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":              "invalid credentials",
				"attempts_remaining": h.authService.RemainingAttempts(req.Username),
			})
		case errors.Is(err, auth.ErrAccountDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		default:
			slog.Error("Login failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		Token:     result.Token,
		TokenType: "bearer",
		ExpiresIn: result.ExpiresIn,
		User:      toUserResponse(result.User),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.AuthedClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.authService.Logout(c.Request.Context(), claims)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	username := c.GetString("username")
	user, err := h.userService.GetByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		slog.Error("Failed to query user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := users.Role(req.Role)
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	user, err := h.userService.Create(c.Request.Context(), req.Username, req.Email, req.Password, role)
	if err != nil {
		if errors.Is(err, users.ErrUsernameExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		slog.Error("Failed to create user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.auditor.Record(c.Request.Context(), audit.Entry{
		Username:     c.GetString("username"),
		Action:       "user_created",
		ResourceType: "user",
		ResourceID:   user.Username,
		Details:      map[string]any{"role": string(user.Role)},
		IPAddress:    c.ClientIP(),
		Success:      true,
	})

	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	userList, err := h.userService.List(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	userResponses := make([]dto.UserResponse, len(userList))
	for i := range userList {
		userResponses[i] = toUserResponse(&userList[i])
	}

	c.JSON(http.StatusOK, dto.ListUsersResponse{
		Users: userResponses,
		Total: len(userResponses),
	})
}

func toUserResponse(u *users.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.LastLogin != nil {
		s := u.LastLogin.Format(time.RFC3339)
		resp.LastLogin = &s
	}
	return resp
}
