package messages

import (
	"encoding/json"
	"testing"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSensorReading_Sample(t *testing.T) {
	var r SensorReading
	require.NoError(t, json.Unmarshal([]byte(`{
  "shipment_id": "SC-9",
  "type": "environment",
  "temperature_c": 40,
  "humidity_pct": 55.5,
  "read_at": "2025-01-01T00:00:00Z"
}`), &r))

	s, err := r.Sample()
	require.NoError(t, err)
	require.Equal(t, models.SignalEnvironment, s.Type)
	require.Equal(t, 40.0, s.Environment.TemperatureC)
	require.Equal(t, 55.5, s.Environment.HumidityPct)
	require.False(t, s.Timestamp.IsZero())
}

func TestSensorReading_Rejects(t *testing.T) {
	temp := 20.0
	cases := []SensorReading{
		{Type: "environment", TemperatureC: &temp},
		{ShipmentID: "s1", Type: "environment", TemperatureC: &temp},
		{ShipmentID: "s1", Type: "location"},
		{ShipmentID: "s1", Type: "quality"},
		{ShipmentID: "s1", Type: "wind"},
	}
	for _, c := range cases {
		_, err := c.Sample()
		require.True(t, errors.Is(err, models.ErrInvalidArgument), "%+v", c)
	}
}
