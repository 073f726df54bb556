package messages

import (
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
)

// SensorReading is one externally produced sample for a shipment, as read
// from the sensor readings topic.
type SensorReading struct {
	ShipmentID   string   `json:"shipment_id"`
	Type         string   `json:"type"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	Address      string   `json:"address,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	QualityScore *float64 `json:"quality_score,omitempty"`
	QualityGrade string   `json:"quality_grade,omitempty"`

	ReadAt time.Time `json:"read_at"`
}

// Sample converts the reading; partial payloads are rejected.
func (r SensorReading) Sample() (models.SignalSample, error) {
	if r.ShipmentID == "" {
		return models.SignalSample{}, errors.Wrap(models.ErrInvalidArgument, "shipment_id is required")
	}
	s := models.SignalSample{Type: models.SignalType(r.Type), Timestamp: r.ReadAt}
	switch s.Type {
	case models.SignalLocation:
		if r.Lat == nil || r.Lon == nil {
			return models.SignalSample{}, errors.Wrap(models.ErrInvalidArgument, "lat and lon are required")
		}
		s.Location = &models.Location{Lat: *r.Lat, Lon: *r.Lon, Address: r.Address}
	case models.SignalEnvironment:
		if r.TemperatureC == nil || r.HumidityPct == nil {
			return models.SignalSample{}, errors.Wrap(models.ErrInvalidArgument, "temperature_c and humidity_pct are required")
		}
		s.Environment = &models.Environment{TemperatureC: *r.TemperatureC, HumidityPct: *r.HumidityPct}
	case models.SignalQuality:
		if r.QualityScore == nil {
			return models.SignalSample{}, errors.Wrap(models.ErrInvalidArgument, "quality_score is required")
		}
		s.Quality = &models.Quality{Score: *r.QualityScore, Grade: r.QualityGrade}
	default:
		return models.SignalSample{}, errors.Wrapf(models.ErrInvalidArgument, "unknown type %q", r.Type)
	}
	return s, nil
}
