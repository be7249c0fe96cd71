package domain

import "time"

// Webhook event names.
const (
	EventTradeExecuted  = "trade.executed"
	EventOrderCancelled = "order.cancelled"
)

// Webhook is a participant's subscription to an event notification.
type Webhook struct {
	WebhookID   string
	Participant string
	Event       string
	URL         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
