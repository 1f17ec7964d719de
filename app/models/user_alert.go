package models

import "time"

const (
	AlertStatusActive  = "ACTIVE"
	AlertStatusPaused  = "PAUSED"
	AlertStatusExpired = "EXPIRED"
)

// UserAlert is one user's interest in one market. Removal is a hard delete.
type UserAlert struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:ux_user_alerts_user_market,priority:1" json:"user_id"`
	MarketTicker string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_user_alerts_user_market,priority:2" json:"market_ticker"`
	EventTicker  string    `gorm:"type:varchar(100);not null;index" json:"event_ticker"`
	EventTitle   string    `gorm:"type:varchar(255);default:''" json:"event_title"`
	Status       string    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ToggledStatus returns the status after a pause/resume toggle. Expired
// alerts cannot be toggled.
func (a *UserAlert) ToggledStatus() (string, bool) {
	switch a.Status {
	case AlertStatusActive:
		return AlertStatusPaused, true
	case AlertStatusPaused:
		return AlertStatusActive, true
	default:
		return a.Status, false
	}
}
