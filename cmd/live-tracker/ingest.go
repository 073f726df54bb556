package main

import (
	"context"
	"encoding/json"

	"github.com/BearBump/LiveTrace/internal/broker/kafka"
	"github.com/BearBump/LiveTrace/internal/broker/messages"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ingester interface {
	Ingest(ctx context.Context, shipmentID string, sample models.SignalSample) (int, error)
}

// sensorHandler feeds sensor readings into the engine. Nothing on this
// path is retried: bad or unroutable readings are dropped and committed.
func sensorHandler(svc ingester, logger *zap.Logger) func(ctx context.Context, key, value []byte) error {
	return func(ctx context.Context, _ []byte, value []byte) error {
		var r messages.SensorReading
		if err := json.Unmarshal(value, &r); err != nil {
			return kafka.Drop(errors.Wrap(err, "decode sensor reading"))
		}
		sample, err := r.Sample()
		if err != nil {
			return kafka.Drop(err)
		}
		n, err := svc.Ingest(ctx, r.ShipmentID, sample)
		if err != nil {
			if !errors.Is(err, models.ErrInvalidArgument) && !errors.Is(err, models.ErrNotFound) {
				logger.Error("sensor reading ingest failed", zap.String("shipment_id", r.ShipmentID), zap.Error(err))
			}
			return kafka.Drop(err)
		}
		logger.Debug("sensor reading ingested", zap.String("shipment_id", r.ShipmentID), zap.Int("sessions", n))
		return nil
	}
}
