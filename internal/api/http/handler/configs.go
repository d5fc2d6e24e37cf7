package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
	"github.com/fleetmesh/fleetmesh/internal/configs"
)

type ConfigHandler struct {
	configService *configs.Service
}

func NewConfigHandler(configService *configs.Service) *ConfigHandler {
	return &ConfigHandler{configService: configService}
}

func (h *ConfigHandler) Set(c *gin.Context) {
	var req dto.SetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.configService.Set(c.Request.Context(), req.Key, req.Value, req.Scope, req.NodeID, req.Description)
	if err != nil {
		slog.Error("Failed to set config entry", "key", req.Key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set config entry"})
		return
	}

	c.JSON(http.StatusOK, toConfigEntryResponse(entry))
}

func (h *ConfigHandler) Get(c *gin.Context) {
	key := c.Param("key")
	entry, err := h.configService.Get(c.Request.Context(), key, c.Query("scope"), c.Query("node_id"))
	if err != nil {
		if errors.Is(err, configs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "config entry not found"})
			return
		}
		slog.Error("Failed to query config entry", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toConfigEntryResponse(entry))
}

func (h *ConfigHandler) List(c *gin.Context) {
	entries, err := h.configService.List(c.Request.Context(), c.Query("scope"), c.Query("node_id"))
	if err != nil {
		slog.Error("Failed to list config entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	entryResponses := make([]dto.ConfigEntryResponse, len(entries))
	for i := range entries {
		entryResponses[i] = toConfigEntryResponse(&entries[i])
	}

	c.JSON(http.StatusOK, dto.ListConfigsResponse{
		Entries: entryResponses,
		Total:   len(entryResponses),
	})
}

func (h *ConfigHandler) Delete(c *gin.Context) {
	key := c.Param("key")
	err := h.configService.Delete(c.Request.Context(), key, c.Query("scope"), c.Query("node_id"))
	if err != nil {
		if errors.Is(err, configs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "config entry not found"})
			return
		}
		slog.Error("Failed to delete config entry", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func toConfigEntryResponse(e *configs.Entry) dto.ConfigEntryResponse {
	return dto.ConfigEntryResponse{
		ID:          e.ID.String(),
		Key:         e.Key,
		Value:       e.Value,
		Scope:       e.Scope,
		NodeID:      e.NodeID,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}
