package pgshipments

import (
	"context"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const foreignKeyViolation = "23503"

func (s *Storage) GetShipment(ctx context.Context, id string) (models.ShipmentSnapshot, error) {
	var out models.ShipmentSnapshot
	err := s.db.QueryRow(ctx, `
SELECT
  id, lat, lon, address,
  temperature_c, humidity_pct,
  quality_score, quality_grade
FROM shipments
WHERE id = $1
`, id).Scan(
		&out.ID, &out.Location.Lat, &out.Location.Lon, &out.Location.Address,
		&out.Environmental.TemperatureC, &out.Environmental.HumidityPct,
		&out.QualityTracking.Score, &out.QualityTracking.Grade,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ShipmentSnapshot{}, errors.Wrapf(models.ErrNotFound, "shipment %s", id)
	}
	if err != nil {
		return models.ShipmentSnapshot{}, errors.Wrap(err, "select shipment")
	}
	return out, nil
}

// UpsertShipment creates or replaces the seed state of a shipment.
func (s *Storage) UpsertShipment(ctx context.Context, sh models.ShipmentSnapshot) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
INSERT INTO shipments (
  id, lat, lon, address, temperature_c, humidity_pct, quality_score, quality_grade, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (id) DO UPDATE SET
  lat = EXCLUDED.lat,
  lon = EXCLUDED.lon,
  address = EXCLUDED.address,
  temperature_c = EXCLUDED.temperature_c,
  humidity_pct = EXCLUDED.humidity_pct,
  quality_score = EXCLUDED.quality_score,
  quality_grade = EXCLUDED.quality_grade,
  updated_at = EXCLUDED.updated_at
`, sh.ID, sh.Location.Lat, sh.Location.Lon, sh.Location.Address,
		sh.Environmental.TemperatureC, sh.Environmental.HumidityPct,
		sh.QualityTracking.Score, sh.QualityTracking.Grade, now)
	if err != nil {
		return errors.Wrap(err, "upsert shipment")
	}
	return nil
}

// AppendAlert is idempotent per alert id.
func (s *Storage) AppendAlert(ctx context.Context, shipmentID string, a *models.AlertRecord) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO shipment_alerts (
  id, shipment_id, session_id, type, severity, message, value, threshold_min, threshold_max, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, a.ID, shipmentID, a.SessionID, string(a.Type), string(a.Severity), a.Message, a.Value,
		a.Threshold.Min, a.Threshold.Max, a.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return errors.Wrapf(models.ErrNotFound, "shipment %s", shipmentID)
		}
		return errors.Wrap(err, "insert alert")
	}
	return nil
}

// UpdateLocation moves the shipment and records the point in its history.
func (s *Storage) UpdateLocation(ctx context.Context, shipmentID string, loc models.Location) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE shipments
SET lat = $2, lon = $3, address = $4, updated_at = $5
WHERE id = $1
`, shipmentID, loc.Lat, loc.Lon, loc.Address, now)
	if err != nil {
		return errors.Wrap(err, "update shipment location")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "shipment %s", shipmentID)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO shipment_locations (shipment_id, lat, lon, address, recorded_at)
VALUES ($1,$2,$3,$4,$5)
`, shipmentID, loc.Lat, loc.Lon, loc.Address, now); err != nil {
		return errors.Wrap(err, "insert location history")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) ListAlerts(ctx context.Context, shipmentID string, limit int) ([]*models.AlertRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT
  id, session_id, shipment_id, type, severity, message, value,
  threshold_min, threshold_max, created_at
FROM shipment_alerts
WHERE shipment_id = $1
ORDER BY created_at DESC
LIMIT $2
`, shipmentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select alerts")
	}
	defer rows.Close()

	var out []*models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		var typ, sev string
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.ShipmentID, &typ, &sev, &a.Message, &a.Value,
			&a.Threshold.Min, &a.Threshold.Max, &a.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		a.Type = models.AlertType(typ)
		a.Severity = models.Severity(sev)
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) LocationHistoryCount(ctx context.Context, shipmentID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM shipment_locations WHERE shipment_id = $1`, shipmentID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count locations")
	}
	return n, nil
}
