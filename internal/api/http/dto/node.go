package dto

type RegisterNodeRequest struct {
	NodeID      string         `json:"node_id" binding:"required,min=1,max=255"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	NodeType    string         `json:"node_type"`
	IPAddress   string         `json:"ip_address"`
	MACAddress  string         `json:"mac_address"`
	Metadata    map[string]any `json:"metadata"`
}

type RegisterNodeResponse struct {
	NodeID    string `json:"node_id"`
	AuthToken string `json:"auth_token"`
	Status    string `json:"status"`
}

type HeartbeatRequest struct {
	CPUUsage    *float64       `json:"cpu_usage"`
	MemoryUsage *float64       `json:"memory_usage"`
	DiskUsage   *float64       `json:"disk_usage"`
	Latitude    *float64       `json:"latitude"`
	Longitude   *float64       `json:"longitude"`
	Altitude    *float64       `json:"altitude"`
	Custom      map[string]any `json:"custom"`
}

type HeartbeatResponse struct {
	Status      string            `json:"status"`
	ServerTime  string            `json:"server_time"`
	DueCommands []CommandResponse `json:"due_commands"`
}

type NodeResponse struct {
	ID            string         `json:"id"`
	NodeID        string         `json:"node_id"`
	Name          string         `json:"name,omitempty"`
	Description   string         `json:"description,omitempty"`
	NodeType      string         `json:"node_type,omitempty"`
	Status        string         `json:"status"`
	LastHeartbeat *string        `json:"last_heartbeat,omitempty"`
	CPUUsage      *float64       `json:"cpu_usage,omitempty"`
	MemoryUsage   *float64       `json:"memory_usage,omitempty"`
	DiskUsage     *float64       `json:"disk_usage,omitempty"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	Altitude      *float64       `json:"altitude,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	MACAddress    string         `json:"mac_address,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	RegisteredAt  string         `json:"registered_at"`
}

type ListNodesResponse struct {
	Nodes    []NodeResponse `json:"nodes"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type TelemetrySampleResponse struct {
	CPUUsage    *float64       `json:"cpu_usage,omitempty"`
	MemoryUsage *float64       `json:"memory_usage,omitempty"`
	DiskUsage   *float64       `json:"disk_usage,omitempty"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	Altitude    *float64       `json:"altitude,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
	RecordedAt  string         `json:"recorded_at"`
}

type ListTelemetryResponse struct {
	NodeID  string                    `json:"node_id"`
	Samples []TelemetrySampleResponse `json:"samples"`
}
