package models

import (
	"encoding/json"
	"time"
)

// User-level notification kinds; alert notifications reuse AlertType values.
const (
	NotificationKindSessionExpired = "session_expired"
	NotificationKindBroadcast      = "broadcast"
)

type Notification struct {
	ID          string          `json:"id" msgpack:"id"`
	RecipientID string          `json:"recipientId" msgpack:"recipientId"`
	Kind        string          `json:"kind" msgpack:"kind"`
	Title       string          `json:"title" msgpack:"title"`
	Message     string          `json:"message" msgpack:"message"`
	Payload     json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
	CreatedAt   time.Time       `json:"createdAt" msgpack:"createdAt"`
	ExpiresAt   time.Time       `json:"expiresAt" msgpack:"expiresAt"`
	Read        bool            `json:"read" msgpack:"read"`
	ReadAt      *time.Time      `json:"readAt,omitempty" msgpack:"readAt,omitempty"`
}

func (n *Notification) Expired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && !now.Before(n.ExpiresAt)
}

type NotificationQuery struct {
	Limit      int
	Offset     int
	Kind       string
	UnreadOnly bool
}

const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

// Normalize clamps paging to sane bounds.
func (q NotificationQuery) Normalize() NotificationQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultNotificationLimit
	}
	if q.Limit > MaxNotificationLimit {
		q.Limit = MaxNotificationLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

func (q NotificationQuery) Match(n *Notification) bool {
	if q.Kind != "" && n.Kind != q.Kind {
		return false
	}
	if q.UnreadOnly && n.Read {
		return false
	}
	return true
}

// Page filters an already ordered slice without reordering it.
func (q NotificationQuery) Page(items []*Notification) []*Notification {
	q = q.Normalize()
	out := make([]*Notification, 0, q.Limit)
	skipped := 0
	for _, n := range items {
		if !q.Match(n) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, n)
		if len(out) == q.Limit {
			break
		}
	}
	return out
}
