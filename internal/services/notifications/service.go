package notifications

import (
	"context"

	"github.com/BearBump/LiveTrace/internal/metrics"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/BearBump/LiveTrace/internal/services/broadcast"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(channel, event string, payload any) int
}

// Delivery hands a stored notification to the outbound delivery queue.
type Delivery interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}

// Service stores notifications and announces new ones on the recipient's
// user channel. Reads go straight to the Store.
type Service struct {
	Store
	pub      Publisher
	delivery Delivery
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewService(store Store, pub Publisher, delivery Delivery, m *metrics.Collector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: store, pub: pub, delivery: delivery, metrics: m, logger: logger}
}

// Notify appends n for recipientID, then publishes and enqueues it. Only
// the append can fail the call.
func (s *Service) Notify(ctx context.Context, recipientID string, n *models.Notification) (*models.Notification, error) {
	rec, err := s.Store.Append(ctx, recipientID, n)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordNotification()

	if s.pub != nil {
		s.pub.Publish(broadcast.UserChannel(recipientID), models.EventNotificationNew, rec)
	}
	if s.delivery != nil {
		if err := s.delivery.Enqueue(ctx, rec); err != nil {
			s.logger.Warn("notification delivery enqueue failed",
				zap.String("recipient_id", recipientID),
				zap.String("notification_id", rec.ID),
				zap.Error(err),
			)
		}
	}
	return rec, nil
}
