package models

import "time"

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusStopped SessionStatus = "stopped"
	SessionStatusExpired SessionStatus = "expired"
)

// SessionConfig is what a client asks for when it starts live tracking.
type SessionConfig struct {
	Interval       time.Duration
	TrackedSignals []SignalType
}

type TrackingSession struct {
	ID             string        `json:"id"`
	ShipmentID     string        `json:"shipmentId"`
	OwnerUserID    string        `json:"ownerUserId"`
	StartedAt      time.Time     `json:"startedAt"`
	LastUpdateAt   time.Time     `json:"lastUpdateAt"`
	Status         SessionStatus `json:"status"`
	Interval       time.Duration `json:"-"`
	TrackedSignals []SignalType  `json:"trackedSignals"`
	TickCount      int64         `json:"tickCount"`
}

// SessionStatusView is the read model returned by getSessionStatus.
type SessionStatusView struct {
	TrackingSession
	IntervalSeconds float64        `json:"intervalSeconds"`
	State           SignalState    `json:"state"`
	RecentAlerts    []*AlertRecord `json:"recentAlerts"`
}

// TrackingUpdate is the payload of one tracking:update event.
type TrackingUpdate struct {
	SessionID  string         `json:"sessionId"`
	ShipmentID string         `json:"shipmentId"`
	At         time.Time      `json:"at"`
	Samples    []SignalSample `json:"samples"`
	Source     string         `json:"source"`
}

const (
	UpdateSourceScheduled = "scheduled"
	UpdateSourceIngested  = "ingested"
)
