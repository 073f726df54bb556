package messages

import (
	"encoding/json"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
)

// NotificationCreated is handed to the outbound delivery service.
type NotificationCreated struct {
	NotificationID string          `json:"notification_id"`
	RecipientID    string          `json:"recipient_id"`
	Kind           string          `json:"kind"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func NewNotificationCreated(n *models.Notification) NotificationCreated {
	return NotificationCreated{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Kind:           n.Kind,
		Title:          n.Title,
		Message:        n.Message,
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt,
	}
}
