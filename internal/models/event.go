package models

import "time"

// Event names emitted on broadcast channels.
const (
	EventTrackingUpdate  = "tracking:update"
	EventTrackingAlerts  = "tracking:alerts"
	EventNotificationNew = "notification:new"
	EventSystemHealth    = "system:health"
	EventTrackingStarted = "tracking:started"
	EventTrackingStopped = "tracking:stopped"
	EventTrackingExpired = "tracking:expired"

	EventTrackingAlertResolved = "tracking:alert_resolved"
)

// Event is what a subscriber connection receives.
type Event struct {
	Name      string    `json:"event"`
	Channel   string    `json:"channel,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AlertsEvent struct {
	SessionID  string         `json:"sessionId"`
	ShipmentID string         `json:"shipmentId"`
	Alerts     []*AlertRecord `json:"alerts"`
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"

	SubsystemUp   = "up"
	SubsystemDown = "down"
)

type SystemHealth struct {
	Status         string            `json:"status"`
	ActiveSessions int               `json:"activeSessions"`
	StartedAt      time.Time         `json:"startedAt"`
	UptimeSeconds  float64           `json:"uptimeSeconds"`
	Subsystems     map[string]string `json:"subsystems"`
	Connections    int               `json:"connections"`
	Scheduler      SchedulerStats    `json:"scheduler"`
	CheckedAt      time.Time         `json:"checkedAt"`
}

type SchedulerStats struct {
	Tasks       int        `json:"tasks"`
	TotalRuns   int64      `json:"totalRuns"`
	TotalErrors int64      `json:"totalErrors"`
	InFlight    int64      `json:"inFlight"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}
