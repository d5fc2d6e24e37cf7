package dto

type CreateCommandRequest struct {
	NodeID  string         `json:"node_id" binding:"required"`
	Type    string         `json:"type" binding:"required,min=1,max=255"`
	Payload map[string]any `json:"payload"`
}

type ReportResultRequest struct {
	Status string         `json:"status" binding:"required"`
	Result map[string]any `json:"result"`
	Error  string         `json:"error"`
}

type CommandResponse struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	NodeID         string         `json:"node_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      string         `json:"created_at"`
	SentAt         *string        `json:"sent_at,omitempty"`
	AcknowledgedAt *string        `json:"acknowledged_at,omitempty"`
	CompletedAt    *string        `json:"completed_at,omitempty"`
}

type ListCommandsResponse struct {
	Commands []CommandResponse `json:"commands"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
