package domain

import "time"

type NotificationKind string

const (
	NotifyCampaign NotificationKind = "campaign"
	NotifyPayment  NotificationKind = "payment"
	NotifySystem   NotificationKind = "system"
)

type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

type NotificationSettings struct {
	Email           bool `json:"email"`
	Push            bool `json:"push"`
	CampaignUpdates bool `json:"campaign_updates"`
	PaymentReceipts bool `json:"payment_receipts"`
	Newsletter      bool `json:"newsletter"`
}

type SupportRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
}
