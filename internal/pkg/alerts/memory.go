package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/TickerFox/app/models"
)

type alertKey struct {
	userID       uint
	marketTicker string
}

// MemoryRepository is an in-memory implementation of Repository.
type MemoryRepository struct {
	mu          sync.RWMutex
	webhooks    map[string]*models.EventWebhook // keyed by event ticker
	alerts      map[uint]*models.UserAlert
	byUser      map[alertKey]uint
	nextWebhook uint
	nextAlert   uint
	now         func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		webhooks: make(map[string]*models.EventWebhook),
		alerts:   make(map[uint]*models.UserAlert),
		byUser:   make(map[alertKey]uint),
		now:      time.Now,
	}
}

func (r *MemoryRepository) GetWebhookByEvent(_ context.Context, eventTicker string) (*models.EventWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.webhooks[eventTicker]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryRepository) GetWebhooksByEvents(_ context.Context, eventTickers []string) ([]models.EventWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.EventWebhook, 0, len(eventTickers))
	for _, t := range eventTickers {
		if w, ok := r.webhooks[t]; ok {
			result = append(result, *w)
		}
	}
	return result, nil
}

func (r *MemoryRepository) FindWebhooksByTopic(_ context.Context, topic string) ([]models.EventWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.EventWebhook
	for _, w := range r.webhooks {
		if w.Topic == topic {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) CreateWebhook(_ context.Context, w *models.EventWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.webhooks[w.EventTicker]; exists {
		return ErrDuplicateKey
	}
	r.nextWebhook++
	now := r.now()
	w.ID = r.nextWebhook
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.Status == "" {
		w.Status = models.WebhookStatusPending
	}

	cp := *w
	r.webhooks[w.EventTicker] = &cp
	return nil
}

func (r *MemoryRepository) UpdateWebhookStatus(_ context.Context, eventTicker, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.webhooks[eventTicker]
	if !ok {
		return ErrNotFound
	}
	w.Status = status
	w.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) MarkUnsubscribedIfIdle(_ context.Context, eventTicker string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.webhooks[eventTicker]
	if !ok || w.SubscriberCount != 0 {
		return false, nil
	}
	w.Status = models.WebhookStatusUnsubscribed
	w.UpdatedAt = r.now()
	return true, nil
}

func (r *MemoryRepository) ListIdleWebhooks(_ context.Context) ([]models.EventWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.EventWebhook
	for _, w := range r.webhooks {
		if w.SubscriberCount == 0 && w.Status != models.WebhookStatusUnsubscribed {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) AddNotificationsSent(_ context.Context, eventTicker string, n int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.webhooks[eventTicker]
	if !ok {
		return nil
	}
	w.NotificationsSent += n
	w.LastNotifiedAt = &at
	return nil
}

func (r *MemoryRepository) CreateAlertAndIncrement(_ context.Context, a *models.UserAlert) (*models.EventWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := alertKey{userID: a.UserID, marketTicker: a.MarketTicker}
	if _, exists := r.byUser[key]; exists {
		return nil, ErrDuplicateKey
	}
	w, ok := r.webhooks[a.EventTicker]
	if !ok {
		return nil, ErrNotFound
	}

	r.nextAlert++
	now := r.now()
	a.ID = r.nextAlert
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.AlertStatusActive
	}

	cp := *a
	r.alerts[a.ID] = &cp
	r.byUser[key] = a.ID
	w.SubscriberCount++
	out := *w
	return &out, nil
}

func (r *MemoryRepository) DeleteAlertAndDecrement(_ context.Context, alertID uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return 0, ErrNotFound
	}
	delete(r.alerts, alertID)
	delete(r.byUser, alertKey{userID: a.UserID, marketTicker: a.MarketTicker})

	w, ok := r.webhooks[a.EventTicker]
	if !ok {
		return 0, nil
	}
	if w.SubscriberCount > 0 {
		w.SubscriberCount--
	}
	return w.SubscriberCount, nil
}

func (r *MemoryRepository) GetAlert(_ context.Context, alertID uint) (*models.UserAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) FindAlert(_ context.Context, userID uint, marketTicker string) (*models.UserAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUser[alertKey{userID: userID, marketTicker: marketTicker}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.alerts[id]
	return &cp, nil
}

func (r *MemoryRepository) UpdateAlertStatus(_ context.Context, alertID uint, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) ListAlertsByUser(_ context.Context, userID uint) ([]models.UserAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.UserAlert
	for _, a := range r.alerts {
		if a.UserID == userID {
			result = append(result, *a)
		}
	}
	// Newest first; IDs break ties within the same instant.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *MemoryRepository) CountAlertsByUser(_ context.Context, userID uint) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, a := range r.alerts {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CountAlertsByEvent(_ context.Context, eventTicker string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, a := range r.alerts {
		if a.EventTicker == eventTicker {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListActiveAlertsByEvents(_ context.Context, eventTickers []string) ([]models.UserAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]struct{}, len(eventTickers))
	for _, t := range eventTickers {
		wanted[t] = struct{}{}
	}

	var result []models.UserAlert
	for _, a := range r.alerts {
		if _, ok := wanted[a.EventTicker]; ok && a.Status == models.AlertStatusActive {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
