package models

import "time"

// NotificationArticle is one item of an inbound hub delivery. It is never
// persisted.
type NotificationArticle struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	URL         string     `json:"url"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// DeliveryResult is the outcome of one channel send. Provider failures are
// reported here instead of as Go errors.
type DeliveryResult struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// Failed builds an unsuccessful DeliveryResult.
func Failed(reason string) DeliveryResult {
	return DeliveryResult{Error: reason}
}
