package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetmesh/fleetmesh/internal/api/http/dto"
	"github.com/fleetmesh/fleetmesh/internal/api/http/middleware"
	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/nodes"
)

type NodeHandler struct {
	nodeService *nodes.Service
	auditor     *audit.Recorder
}

func NewNodeHandler(nodeService *nodes.Service, auditor *audit.Recorder) *NodeHandler {
	return &NodeHandler{nodeService: nodeService, auditor: auditor}
}

func (h *NodeHandler) Register(c *gin.Context) {
	var req dto.RegisterNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ip := req.IPAddress
	if ip == "" {
		ip = c.ClientIP()
	}

	node, err := h.nodeService.Register(c.Request.Context(), nodes.RegisterParams{
		NodeID:      req.NodeID,
		Name:        req.Name,
		Description: req.Description,
		NodeType:    req.NodeType,
		IPAddress:   ip,
		MACAddress:  req.MACAddress,
		Metadata:    req.Metadata,
	})
	if err != nil {
		slog.Error("Failed to register node", "node_id", req.NodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register node"})
		return
	}

	h.auditor.Record(c.Request.Context(), audit.Entry{
		Action:       "node_registered",
		ResourceType: "node",
		ResourceID:   node.NodeID,
		IPAddress:    c.ClientIP(),
		Success:      true,
	})

	c.JSON(http.StatusCreated, dto.RegisterNodeResponse{
		NodeID:    node.NodeID,
		AuthToken: node.AuthToken,
		Status:    string(node.Status),
	})
}

// Heartbeat records telemetry for the authenticated node and hands back
// the commands now due for it.
func (h *NodeHandler) Heartbeat(c *gin.Context) {
	node, ok := middleware.AuthedNode(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req dto.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, due, err := h.nodeService.Heartbeat(c.Request.Context(), node.NodeID, nodes.Telemetry{
		CPUUsage:    req.CPUUsage,
		MemoryUsage: req.MemoryUsage,
		DiskUsage:   req.DiskUsage,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Altitude:    req.Altitude,
		Custom:      req.Custom,
	})
	if err != nil {
		if errors.Is(err, nodes.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		slog.Error("Failed to process heartbeat", "node_id", node.NodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	dueResponses := make([]dto.CommandResponse, len(due))
	for i := range due {
		dueResponses[i] = toCommandResponse(&due[i])
	}

	c.JSON(http.StatusOK, dto.HeartbeatResponse{
		Status:      "ok",
		ServerTime:  time.Now().UTC().Format(time.RFC3339),
		DueCommands: dueResponses,
	})
}

func (h *NodeHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	filter := nodes.ListFilter{Page: page, PageSize: pageSize}
	if s := c.Query("status"); s != "" {
		status := nodes.Status(s)
		filter.Status = &status
	}
	if t := c.Query("node_type"); t != "" {
		filter.NodeType = &t
	}

	nodeList, total, err := h.nodeService.List(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Failed to list nodes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	nodeResponses := make([]dto.NodeResponse, len(nodeList))
	for i := range nodeList {
		nodeResponses[i] = toNodeResponse(&nodeList[i])
	}

	c.JSON(http.StatusOK, dto.ListNodesResponse{
		Nodes:    nodeResponses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *NodeHandler) Get(c *gin.Context) {
	node, err := h.nodeService.Get(c.Request.Context(), c.Param("node_id"))
	if err != nil {
		if errors.Is(err, nodes.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		slog.Error("Failed to query node", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toNodeResponse(node))
}

func (h *NodeHandler) Delete(c *gin.Context) {
	nodeID := c.Param("node_id")
	if err := h.nodeService.Delete(c.Request.Context(), nodeID); err != nil {
		if errors.Is(err, nodes.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		slog.Error("Failed to delete node", "node_id", nodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.auditor.Record(c.Request.Context(), audit.Entry{
		Username:     c.GetString("username"),
		Action:       "node_deleted",
		ResourceType: "node",
		ResourceID:   nodeID,
		IPAddress:    c.ClientIP(),
		Success:      true,
	})

	c.Status(http.StatusNoContent)
}

func (h *NodeHandler) Telemetry(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	nodeID := c.Param("node_id")
	samples, err := h.nodeService.Telemetry(c.Request.Context(), nodeID, limit)
	if err != nil {
		if errors.Is(err, nodes.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		slog.Error("Failed to query telemetry", "node_id", nodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	sampleResponses := make([]dto.TelemetrySampleResponse, len(samples))
	for i, s := range samples {
		sampleResponses[i] = dto.TelemetrySampleResponse{
			CPUUsage:    s.CPUUsage,
			MemoryUsage: s.MemoryUsage,
			DiskUsage:   s.DiskUsage,
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
			Altitude:    s.Altitude,
			Custom:      s.Custom,
			RecordedAt:  s.RecordedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, dto.ListTelemetryResponse{
		NodeID:  nodeID,
		Samples: sampleResponses,
	})
}

func toNodeResponse(n *nodes.Node) dto.NodeResponse {
	resp := dto.NodeResponse{
		ID:           n.ID.String(),
		NodeID:       n.NodeID,
		Name:         n.Name,
		Description:  n.Description,
		NodeType:     n.NodeType,
		Status:       string(n.Status),
		CPUUsage:     n.CPUUsage,
		MemoryUsage:  n.MemoryUsage,
		DiskUsage:    n.DiskUsage,
		Latitude:     n.Latitude,
		Longitude:    n.Longitude,
		Altitude:     n.Altitude,
		IPAddress:    n.IPAddress,
		MACAddress:   n.MACAddress,
		Metadata:     n.Metadata,
		RegisteredAt: n.RegisteredAt.Format(time.RFC3339),
	}
	if n.LastHeartbeat != nil {
		s := n.LastHeartbeat.Format(time.RFC3339)
		resp.LastHeartbeat = &s
	}
	return resp
}
