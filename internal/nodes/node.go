package nodes

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived operational state of a node. ONLINE is set on any
// successful heartbeat or registration; OFFLINE is set by the stale sweep
// when the last heartbeat is older than the configured timeout.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDegraded Status = "degraded"
	StatusUnknown  Status = "unknown"
)

// Node is a registered edge device. NodeID is the operator-chosen stable
// identifier and never changes after registration.
type Node struct {
	ID       uuid.UUID
	NodeID   string
	Name     string
	Description string
	NodeType string

	Status        Status
	LastHeartbeat *time.Time

	// Latest telemetry snapshot. Fields are pointers because absent
	// telemetry is meaningful and must not collapse to zero.
	CPUUsage    *float64
	MemoryUsage *float64
	DiskUsage   *float64
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64

	IPAddress  string
	MACAddress string

	// AuthToken is the node's single bearer token, replaced wholesale on
	// re-registration.
	AuthToken string

	Metadata map[string]any

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// Telemetry is one heartbeat's worth of health data.
type Telemetry struct {
	CPUUsage    *float64
	MemoryUsage *float64
	DiskUsage   *float64
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	Custom      map[string]any
}

// TelemetrySample is a persisted point in a node's telemetry history.
type TelemetrySample struct {
	ID         uuid.UUID
	NodeID     string
	Telemetry
	RecordedAt time.Time
}
