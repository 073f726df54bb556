package models

import "time"

type AlertType string

const (
	AlertTemperatureBreach  AlertType = "temperature_breach"
	AlertHumidityBreach     AlertType = "humidity_breach"
	AlertQualityDegradation AlertType = "quality_degradation"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Threshold is the allowed range; a nil bound is open.
type Threshold struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type AlertRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	ShipmentID string     `json:"shipmentId"`
	Type       AlertType  `json:"type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Threshold  Threshold  `json:"threshold"`
	CreatedAt  time.Time  `json:"createdAt"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Resolve is the only mutation an alert accepts, and only once.
func (a *AlertRecord) Resolve(by string, at time.Time) error {
	if a.Resolved {
		return ErrAlreadyResolved
	}
	at = at.UTC()
	a.Resolved = true
	a.ResolvedBy = by
	a.ResolvedAt = &at
	return nil
}
