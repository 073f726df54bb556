package alerts

import (
	"fmt"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/google/uuid"
)

// Safe operating ranges. Breaching any of them raises one alert per
// breached rule.
const (
	TempMinC = 5.0
	TempMaxC = 35.0

	HumidityMinPct = 15.0
	HumidityMaxPct = 85.0

	QualityMinScore = 80.0

	TemperatureSeverity = models.SeverityHigh
	HumiditySeverity    = models.SeverityMedium
	QualitySeverity     = models.SeverityHigh
)

// Evaluator turns a sample into alert records. It holds no state between
// calls: a condition that persists across ticks is reported on every tick.
type Evaluator struct {
	newID func() string
	now   func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns the alerts for s, possibly none. SessionID and
// ShipmentID are left for the caller to stamp.
func (e *Evaluator) Evaluate(s models.SignalSample) []*models.AlertRecord {
	at := s.Timestamp
	if at.IsZero() {
		at = e.now()
	}

	var out []*models.AlertRecord
	switch s.Type {
	case models.SignalEnvironment:
		if s.Environment == nil {
			return nil
		}
		t := s.Environment.TemperatureC
		if t < TempMinC || t > TempMaxC {
			out = append(out, e.record(models.AlertTemperatureBreach, TemperatureSeverity, t, rangeOf(TempMinC, TempMaxC), at,
				fmt.Sprintf("Temperature %g°C is outside the safe range %.0f-%.0f°C", t, TempMinC, TempMaxC)))
		}
		h := s.Environment.HumidityPct
		if h < HumidityMinPct || h > HumidityMaxPct {
			out = append(out, e.record(models.AlertHumidityBreach, HumiditySeverity, h, rangeOf(HumidityMinPct, HumidityMaxPct), at,
				fmt.Sprintf("Humidity %g%% is outside the safe range %.0f-%.0f%%", h, HumidityMinPct, HumidityMaxPct)))
		}
	case models.SignalQuality:
		if s.Quality == nil {
			return nil
		}
		q := s.Quality.Score
		if q < QualityMinScore {
			floor := QualityMinScore
			out = append(out, e.record(models.AlertQualityDegradation, QualitySeverity, q, models.Threshold{Min: &floor}, at,
				fmt.Sprintf("Quality score %g fell below %.0f", q, QualityMinScore)))
		}
	}
	return out
}

func (e *Evaluator) record(t models.AlertType, sev models.Severity, v float64, th models.Threshold, at time.Time, msg string) *models.AlertRecord {
	return &models.AlertRecord{
		ID:        e.newID(),
		Type:      t,
		Severity:  sev,
		Message:   msg,
		Value:     v,
		Threshold: th,
		CreatedAt: at,
	}
}

func rangeOf(lo, hi float64) models.Threshold {
	return models.Threshold{Min: &lo, Max: &hi}
}

// Escalated returns the alerts of as that also go to the regulatory
// channel: the high severity ones, in order.
func Escalated(as []*models.AlertRecord) []*models.AlertRecord {
	var out []*models.AlertRecord
	for _, a := range as {
		if a.Severity == models.SeverityHigh {
			out = append(out, a)
		}
	}
	return out
}
