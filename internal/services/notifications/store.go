package notifications

import (
	"context"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/google/uuid"
)

// Store is a bounded, expiring, most-recent-first journal per recipient.
// Expired records are treated as absent by every read.
type Store interface {
	Append(ctx context.Context, recipientID string, n *models.Notification) (*models.Notification, error)
	List(ctx context.Context, recipientID string, q models.NotificationQuery) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	Delete(ctx context.Context, id, recipientID string) error
	Sweep(ctx context.Context) (int, error)
}

type Limits struct {
	PerRecipient int
	Global       int
	TTL          time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		PerRecipient: 100,
		Global:       1000,
		TTL:          30 * 24 * time.Hour,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.PerRecipient <= 0 {
		l.PerRecipient = def.PerRecipient
	}
	if l.Global <= 0 {
		l.Global = def.Global
	}
	if l.TTL <= 0 {
		l.TTL = def.TTL
	}
	return l
}

// stamp fills the store-owned fields of a new record on a copy.
func stamp(recipientID string, n *models.Notification, now time.Time, ttl time.Duration) *models.Notification {
	cp := *n
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.RecipientID = recipientID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.ExpiresAt = cp.CreatedAt.Add(ttl)
	cp.Read = false
	cp.ReadAt = nil
	return &cp
}

func clone(n *models.Notification) *models.Notification {
	cp := *n
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	return &cp
}
