package alerts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/database"
)

// Repository persists event webhooks and user alerts. Implementations
// return ErrNotFound and ErrDuplicateKey rather than driver errors.
type Repository interface {
	GetWebhookByEvent(ctx context.Context, eventTicker string) (*models.EventWebhook, error)
	GetWebhooksByEvents(ctx context.Context, eventTickers []string) ([]models.EventWebhook, error)
	FindWebhooksByTopic(ctx context.Context, topic string) ([]models.EventWebhook, error)
	CreateWebhook(ctx context.Context, w *models.EventWebhook) error
	UpdateWebhookStatus(ctx context.Context, eventTicker, status string) error
	// MarkUnsubscribedIfIdle sets UNSUBSCRIBED only while the subscriber
	// count is still zero and reports whether it did.
	MarkUnsubscribedIfIdle(ctx context.Context, eventTicker string) (bool, error)
	ListIdleWebhooks(ctx context.Context) ([]models.EventWebhook, error)
	AddNotificationsSent(ctx context.Context, eventTicker string, n int64, at time.Time) error

	// CreateAlertAndIncrement inserts the alert and increments the parent
	// webhook's subscriber count in one transaction, returning the webhook as
	// it stands after the increment.
	CreateAlertAndIncrement(ctx context.Context, a *models.UserAlert) (*models.EventWebhook, error)
	// DeleteAlertAndDecrement deletes the alert and decrements the parent
	// count (never below zero) in one transaction, returning the new count.
	DeleteAlertAndDecrement(ctx context.Context, alertID uint) (int, error)
	GetAlert(ctx context.Context, alertID uint) (*models.UserAlert, error)
	FindAlert(ctx context.Context, userID uint, marketTicker string) (*models.UserAlert, error)
	UpdateAlertStatus(ctx context.Context, alertID uint, status string) error
	ListAlertsByUser(ctx context.Context, userID uint) ([]models.UserAlert, error)
	CountAlertsByUser(ctx context.Context, userID uint) (int64, error)
	CountAlertsByEvent(ctx context.Context, eventTicker string) (int64, error)
	ListActiveAlertsByEvents(ctx context.Context, eventTickers []string) ([]models.UserAlert, error)
}

type gormRepository struct {
	db *gorm.DB
}

var _ Repository = (*gormRepository)(nil)

// NewRepository creates an alerts repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case database.IsDuplicateKeyError(err):
		return ErrDuplicateKey
	default:
		return err
	}
}

func (r *gormRepository) GetWebhookByEvent(ctx context.Context, eventTicker string) (*models.EventWebhook, error) {
	var w models.EventWebhook
	if err := r.db.WithContext(ctx).Where("event_ticker = ?", eventTicker).First(&w).Error; err != nil {
		return nil, translateError(err)
	}
	return &w, nil
}

func (r *gormRepository) GetWebhooksByEvents(ctx context.Context, eventTickers []string) ([]models.EventWebhook, error) {
	var webhooks []models.EventWebhook
	if len(eventTickers) == 0 {
		return webhooks, nil
	}
	err := r.db.WithContext(ctx).Where("event_ticker IN ?", eventTickers).Find(&webhooks).Error
	return webhooks, translateError(err)
}

func (r *gormRepository) FindWebhooksByTopic(ctx context.Context, topic string) ([]models.EventWebhook, error) {
	var webhooks []models.EventWebhook
	err := r.db.WithContext(ctx).Where("topic = ?", topic).Order("id").Find(&webhooks).Error
	return webhooks, translateError(err)
}

func (r *gormRepository) CreateWebhook(ctx context.Context, w *models.EventWebhook) error {
	return translateError(r.db.WithContext(ctx).Create(w).Error)
}

func (r *gormRepository) UpdateWebhookStatus(ctx context.Context, eventTicker, status string) error {
	result := r.db.WithContext(ctx).Model(&models.EventWebhook{}).
		Where("event_ticker = ?", eventTicker).
		Update("status", status)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) MarkUnsubscribedIfIdle(ctx context.Context, eventTicker string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.EventWebhook{}).
		Where("event_ticker = ? AND subscriber_count = 0", eventTicker).
		Update("status", models.WebhookStatusUnsubscribed)
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) ListIdleWebhooks(ctx context.Context) ([]models.EventWebhook, error) {
	var webhooks []models.EventWebhook
	err := r.db.WithContext(ctx).
		Where("subscriber_count = 0 AND status <> ?", models.WebhookStatusUnsubscribed).
		Order("id").
		Find(&webhooks).Error
	return webhooks, translateError(err)
}

func (r *gormRepository) AddNotificationsSent(ctx context.Context, eventTicker string, n int64, at time.Time) error {
	return translateError(r.db.WithContext(ctx).Model(&models.EventWebhook{}).
		Where("event_ticker = ?", eventTicker).
		Updates(map[string]any{
			"notifications_sent": gorm.Expr("notifications_sent + ?", n),
			"last_notified_at":   at,
		}).Error)
}

func (r *gormRepository) CreateAlertAndIncrement(ctx context.Context, a *models.UserAlert) (*models.EventWebhook, error) {
	var w models.EventWebhook
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		result := tx.Model(&models.EventWebhook{}).
			Where("event_ticker = ?", a.EventTicker).
			Update("subscriber_count", gorm.Expr("subscriber_count + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		// The UPDATE above holds the row lock until commit.
		return tx.Where("event_ticker = ?", a.EventTicker).First(&w).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &w, nil
}

func (r *gormRepository) DeleteAlertAndDecrement(ctx context.Context, alertID uint) (int, error) {
	var remaining int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert models.UserAlert
		if err := tx.Where("id = ?", alertID).First(&alert).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", alert.ID).Delete(&models.UserAlert{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Model(&models.EventWebhook{}).
			Where("event_ticker = ?", alert.EventTicker).
			Update("subscriber_count", gorm.Expr("CASE WHEN subscriber_count > 0 THEN subscriber_count - 1 ELSE 0 END")).Error; err != nil {
			return err
		}

		var w models.EventWebhook
		if err := tx.Select("subscriber_count").Where("event_ticker = ?", alert.EventTicker).First(&w).Error; err != nil {
			return err
		}
		remaining = w.SubscriberCount
		return nil
	})
	if err != nil {
		return 0, translateError(err)
	}
	return remaining, nil
}

func (r *gormRepository) GetAlert(ctx context.Context, alertID uint) (*models.UserAlert, error) {
	var a models.UserAlert
	if err := r.db.WithContext(ctx).Where("id = ?", alertID).First(&a).Error; err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (r *gormRepository) FindAlert(ctx context.Context, userID uint, marketTicker string) (*models.UserAlert, error) {
	var a models.UserAlert
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND market_ticker = ?", userID, marketTicker).
		First(&a).Error; err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (r *gormRepository) UpdateAlertStatus(ctx context.Context, alertID uint, status string) error {
	result := r.db.WithContext(ctx).Model(&models.UserAlert{}).Where("id = ?", alertID).Update("status", status)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) ListAlertsByUser(ctx context.Context, userID uint) ([]models.UserAlert, error) {
	var list []models.UserAlert
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&list).Error
	return list, translateError(err)
}

func (r *gormRepository) CountAlertsByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAlert{}).Where("user_id = ?", userID).Count(&count).Error
	return count, translateError(err)
}

func (r *gormRepository) CountAlertsByEvent(ctx context.Context, eventTicker string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAlert{}).Where("event_ticker = ?", eventTicker).Count(&count).Error
	return count, translateError(err)
}

func (r *gormRepository) ListActiveAlertsByEvents(ctx context.Context, eventTickers []string) ([]models.UserAlert, error) {
	var list []models.UserAlert
	if len(eventTickers) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("event_ticker IN ? AND status = ?", eventTickers, models.AlertStatusActive).
		Order("id").
		Find(&list).Error
	return list, translateError(err)
}
