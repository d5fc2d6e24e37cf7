package dto

type SetConfigRequest struct {
	Key         string         `json:"key" binding:"required,min=1,max=255"`
	Value       map[string]any `json:"value" binding:"required"`
	Scope       string         `json:"scope"`
	NodeID      string         `json:"node_id"`
	Description string         `json:"description"`
}

type ConfigEntryResponse struct {
	ID          string         `json:"id"`
	Key         string         `json:"key"`
	Value       map[string]any `json:"value"`
	Scope       string         `json:"scope"`
	NodeID      string         `json:"node_id,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

type ListConfigsResponse struct {
	Entries []ConfigEntryResponse `json:"entries"`
	Total   int                   `json:"total"`
}
