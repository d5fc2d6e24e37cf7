package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
	"github.com/fleetmesh/fleetmesh/internal/api/http/middleware"
	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/commands"
)

type CommandHandler struct {
	commandService *commands.Service
	auditor        *audit.Recorder
}

func NewCommandHandler(commandService *commands.Service, auditor *audit.Recorder) *CommandHandler {
	return &CommandHandler{commandService: commandService, auditor: auditor}
}

func (h *CommandHandler) Create(c *gin.Context) {
	var req dto.CreateCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := h.commandService.Create(c.Request.Context(), req.NodeID, req.Type, req.Payload, c.GetString("user_id"))
	if err != nil {
		if errors.Is(err, commands.ErrNodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "target node not found"})
			return
		}
		slog.Error("Failed to create command", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create command"})
		return
	}

	h.auditor.Record(c.Request.Context(), audit.Entry{
		Username:     c.GetString("username"),
		Action:       "command_created",
		ResourceType: "command",
		ResourceID:   cmd.ID.String(),
		Details:      map[string]any{"node_id": cmd.NodeID, "type": cmd.Type},
		IPAddress:    c.ClientIP(),
		Success:      true,
	})

	c.JSON(http.StatusCreated, toCommandResponse(cmd))
}

func (h *CommandHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	filter := commands.ListFilter{Page: page, PageSize: pageSize}
	if s := c.Query("status"); s != "" {
		status := commands.Status(s)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter.Status = &status
	}
	if t := c.Query("type"); t != "" {
		filter.Type = &t
	}
	if n := c.Query("node_id"); n != "" {
		filter.NodeID = &n
	}

	cmdList, total, err := h.commandService.List(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Failed to list commands", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	cmdResponses := make([]dto.CommandResponse, len(cmdList))
	for i := range cmdList {
		cmdResponses[i] = toCommandResponse(&cmdList[i])
	}

	c.JSON(http.StatusOK, dto.ListCommandsResponse{
		Commands: cmdResponses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *CommandHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command id"})
		return
	}

	cmd, err := h.commandService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, commands.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		slog.Error("Failed to query command", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toCommandResponse(cmd))
}

// Cancel deletes a command that has not been claimed yet.
func (h *CommandHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command id"})
		return
	}

	if err := h.commandService.Cancel(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, commands.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		case errors.Is(err, commands.ErrNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"error": "command is no longer pending"})
		default:
			slog.Error("Failed to cancel command", "command_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	h.auditor.Record(c.Request.Context(), audit.Entry{
		Username:     c.GetString("username"),
		Action:       "command_cancelled",
		ResourceType: "command",
		ResourceID:   id.String(),
		IPAddress:    c.ClientIP(),
		Success:      true,
	})

	c.Status(http.StatusNoContent)
}

// ReportResult accepts a node's status report for one of its own
// commands. Duplicate reports come back 200 without mutation;
// conflicting terminal reports come back 409.
func (h *CommandHandler) ReportResult(c *gin.Context) {
	node, ok := middleware.AuthedNode(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command id"})
		return
	}

	var req dto.ReportResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reported := commands.Status(req.Status)
	if !reported.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	cmd, err := h.commandService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, commands.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		slog.Error("Failed to query command", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if cmd.NodeID != node.NodeID {
		c.JSON(http.StatusForbidden, gin.H{"error": "command belongs to another node"})
		return
	}

	updated, err := h.commandService.ReportResult(c.Request.Context(), id, reported, req.Result, req.Error)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrStatusConflict), errors.Is(err, commands.ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, commands.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		default:
			slog.Error("Failed to record command result", "command_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, toCommandResponse(updated))
}

func toCommandResponse(cmd *commands.Command) dto.CommandResponse {
	resp := dto.CommandResponse{
		ID:        cmd.ID.String(),
		Type:      cmd.Type,
		Status:    string(cmd.Status),
		NodeID:    cmd.NodeID,
		Payload:   cmd.Payload,
		Result:    cmd.Result,
		Error:     cmd.Error,
		CreatedBy: cmd.CreatedBy,
		CreatedAt: cmd.CreatedAt.Format(time.RFC3339),
	}
	resp.SentAt = formatTimePtr(cmd.SentAt)
	resp.AcknowledgedAt = formatTimePtr(cmd.AcknowledgedAt)
	resp.CompletedAt = formatTimePtr(cmd.CompletedAt)
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
