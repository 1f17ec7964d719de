package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	WebhookStatusActive       = "ACTIVE"
	WebhookStatusPending      = "PENDING"
	WebhookStatusFailed       = "FAILED"
	WebhookStatusUnsubscribed = "UNSUBSCRIBED"
	WebhookStatusExpired      = "EXPIRED"
)

const (
	QueryStrategyLLM  = "llm"
	QueryStrategyRule = "rule"
)

// EventWebhook is the hub subscription shared by every alert on one event.
// SubscriberCount is the number of UserAlert rows with the same EventTicker,
// paused alerts included. Rows are never deleted.
type EventWebhook struct {
	ID                uint                        `gorm:"primaryKey" json:"id"`
	EventTicker       string                      `gorm:"type:varchar(100);not null;uniqueIndex" json:"event_ticker"`
	EventTitle        string                      `gorm:"type:varchar(255);default:''" json:"event_title"`
	Category          string                      `gorm:"type:varchar(50);default:''" json:"category"`
	Topic             string                      `gorm:"type:varchar(700);not null;index" json:"topic"`
	Secret            string                      `gorm:"type:varchar(64);not null" json:"-"`
	SearchQuery       string                      `gorm:"type:text" json:"search_query"`
	SearchTerms       datatypes.JSONSlice[string] `json:"search_terms"`
	QueryStrategy     string                      `gorm:"type:varchar(10);default:'rule'" json:"query_strategy"`
	Status            string                      `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	SubscriberCount   int                         `gorm:"not null;default:0" json:"subscriber_count"`
	NotificationsSent int64                       `gorm:"not null;default:0" json:"notifications_sent"`
	LastNotifiedAt    *time.Time                  `json:"last_notified_at,omitempty"`
	CreatedAt         time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLive reports whether the hub subscription is expected to be delivering
// (or about to, once credentials are configured).
func (w *EventWebhook) IsLive() bool {
	return w.Status == WebhookStatusActive || w.Status == WebhookStatusPending
}

// NeedsResubscribe reports whether new interest has to re-open the hub
// subscription.
func (w *EventWebhook) NeedsResubscribe() bool {
	return w.Status == WebhookStatusUnsubscribed || w.Status == WebhookStatusExpired
}
