package messages

import (
	"encoding/json"
	"time"
)

// LedgerEvent mirrors one engine event onto the ledger feed topic. Key the
// Kafka message by shipment id so a shipment's events stay ordered.
type LedgerEvent struct {
	Event       string          `json:"event"`
	SessionID   string          `json:"session_id,omitempty"`
	ShipmentID  string          `json:"shipment_id"`
	OwnerUserID string          `json:"owner_user_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	EmittedAt   time.Time       `json:"emitted_at"`
}
