package payment

import "time"

// WebhookEvent is the durable ledger of received gateway events. It
// backs webhook idempotency and keeps a record of reconciliations that
// were acknowledged but failed to apply.
type WebhookEvent struct {
	ID           string     `json:"id" gorm:"primaryKey"` // Gateway event id
	Type         string     `json:"type" gorm:"index"`
	Payload      string     `json:"-"`
	ReceivedAt   time.Time  `json:"received_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ProcessError string     `json:"process_error,omitempty"`
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
