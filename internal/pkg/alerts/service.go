package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/TickerFox/internal/pkg/market"
	"github.com/ManuelReschke/TickerFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TickerFox/internal/pkg/querygen"
	"github.com/ManuelReschke/TickerFox/internal/pkg/superfeedr"
	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
)

// Subscriber is the hub side of an event webhook.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, callback, secret string) error
	Unsubscribe(ctx context.Context, topic, callback string) error
}

// MetadataLookup resolves event metadata used for the category check.
type MetadataLookup interface {
	LookupEvent(ctx context.Context, eventTicker string) (market.Event, error)
}

// PlanResolver returns the entitlement plan of a user.
type PlanResolver interface {
	PlanForUser(ctx context.Context, userID uint) (string, error)
}

// RetryScheduler queues an out-of-band unsubscribe for an idle webhook.
type RetryScheduler interface {
	EnqueueUnsubscribe(ctx context.Context, eventTicker string) error
}

// Options carries the optional collaborators of a Service.
type Options struct {
	CallbackURL       string
	BlockedCategories []string
	Metadata          MetadataLookup
	Plans             PlanResolver
	Retries           RetryScheduler
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

// Service manages the lifecycle of user alerts and the shared event
// webhooks they reference.
type Service struct {
	repo        Repository
	hub         Subscriber
	generator   querygen.Generator
	metadata    MetadataLookup
	plans       PlanResolver
	retries     RetryScheduler
	metrics     *metrics.Metrics
	logger      *zap.Logger
	callbackURL string
	blocked     map[string]struct{}
}

// AlertView is an alert together with the state of its event webhook.
type AlertView struct {
	models.UserAlert
	WebhookStatus string   `json:"webhook_status"`
	SearchQuery   string   `json:"search_query"`
	SearchTerms   []string `json:"search_terms"`
}

// Usage describes how much of the plan quota a user has consumed.
type Usage struct {
	AlertCount int64  `json:"alertCount"`
	MaxAlerts  int    `json:"maxAlerts"`
	Plan       string `json:"plan"`
}

// NewService creates an alert service.
func NewService(repo Repository, hub Subscriber, generator querygen.Generator, opts Options) *Service {
	if generator == nil {
		generator = querygen.NewRuleGenerator()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	blocked := make(map[string]struct{}, len(opts.BlockedCategories))
	for _, c := range opts.BlockedCategories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			blocked[c] = struct{}{}
		}
	}
	return &Service{
		repo:        repo,
		hub:         hub,
		generator:   generator,
		metadata:    opts.Metadata,
		plans:       opts.Plans,
		retries:     opts.Retries,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		callbackURL: opts.CallbackURL,
		blocked:     blocked,
	}
}

// AddAlert creates an alert for marketTicker, creating or re-opening the
// event webhook it belongs to.
func (s *Service) AddAlert(ctx context.Context, userID uint, marketTicker, titleHint string) (alert *models.UserAlert, err error) {
	defer func() { s.metrics.ObserveAlertOperation("add", err) }()

	parsed, err := ticker.Parse(marketTicker)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(titleHint)

	if s.metadata != nil {
		ev, lookupErr := s.metadata.LookupEvent(ctx, parsed.EventTicker)
		switch {
		case lookupErr != nil:
			s.logger.Warn("market metadata lookup failed, skipping category check",
				zap.String("event_ticker", parsed.EventTicker),
				zap.Error(lookupErr),
			)
		case s.isBlocked(ev.Category):
			return nil, &CategoryUnsupportedError{EventTicker: parsed.EventTicker, Category: ev.Category}
		case title == "":
			title = ev.Title
		}
	}
	if title == "" {
		title = ticker.FormatEventTitle(parsed.EventTicker)
	}

	if _, err := s.repo.FindAlert(ctx, userID, parsed.MarketTicker); err == nil {
		return nil, ErrDuplicateAlert
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	if _, err := s.ensureWebhook(ctx, parsed, title); err != nil {
		return nil, err
	}

	alert = &models.UserAlert{
		UserID:       userID,
		MarketTicker: parsed.MarketTicker,
		EventTicker:  parsed.EventTicker,
		EventTitle:   title,
		Status:       models.AlertStatusActive,
	}
	w, err := s.repo.CreateAlertAndIncrement(ctx, alert)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, ErrDuplicateAlert
		}
		return nil, err
	}
	if w.NeedsResubscribe() || w.Status == models.WebhookStatusFailed {
		// Released between ensureWebhook and the increment.
		if _, err := s.reviveWebhook(ctx, w); err != nil {
			s.abandonAlert(ctx, alert)
			return nil, err
		}
	}

	s.logger.Info("alert created",
		zap.Uint("user_id", userID),
		zap.Uint("alert_id", alert.ID),
		zap.String("market_ticker", alert.MarketTicker),
		zap.String("event_ticker", alert.EventTicker),
	)
	return alert, nil
}

// abandonAlert undoes an alert whose webhook could not be re-opened.
func (s *Service) abandonAlert(ctx context.Context, alert *models.UserAlert) {
	if _, err := s.repo.DeleteAlertAndDecrement(ctx, alert.ID); err != nil {
		s.logger.Error("failed to roll back alert",
			zap.Uint("alert_id", alert.ID),
			zap.String("event_ticker", alert.EventTicker),
			zap.Error(err),
		)
	}
}

// RemoveAlert deletes the alert and releases the event webhook when it was
// the last one. Hub failures never fail the removal.
func (s *Service) RemoveAlert(ctx context.Context, userID, alertID uint) (err error) {
	defer func() { s.metrics.ObserveAlertOperation("remove", err) }()

	alert, err := s.ownedAlert(ctx, userID, alertID)
	if err != nil {
		return err
	}

	remaining, err := s.repo.DeleteAlertAndDecrement(ctx, alert.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAlertNotFound
		}
		return err
	}

	s.logger.Info("alert removed",
		zap.Uint("user_id", userID),
		zap.Uint("alert_id", alertID),
		zap.String("event_ticker", alert.EventTicker),
		zap.Int("remaining_subscribers", remaining),
	)

	if remaining > 0 {
		return nil
	}
	if err := s.ReleaseIdleWebhook(ctx, alert.EventTicker); err != nil {
		s.logger.Warn("unsubscribe failed, scheduling retry",
			zap.String("event_ticker", alert.EventTicker),
			zap.Error(err),
		)
		s.scheduleRetry(ctx, alert.EventTicker)
	}
	return nil
}

// ToggleAlert flips an alert between ACTIVE and PAUSED.
func (s *Service) ToggleAlert(ctx context.Context, userID, alertID uint) (alert *models.UserAlert, err error) {
	defer func() { s.metrics.ObserveAlertOperation("toggle", err) }()

	alert, err = s.ownedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	next, ok := alert.ToggledStatus()
	if !ok {
		return nil, ErrAlertNotToggleable
	}
	if err := s.repo.UpdateAlertStatus(ctx, alert.ID, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	alert.Status = next
	return alert, nil
}

// ListAlerts returns the user's alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, userID uint) ([]AlertView, error) {
	list, err := s.repo.ListAlertsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(list))
	for _, a := range list {
		tickers = append(tickers, a.EventTicker)
	}
	webhooks, err := s.repo.GetWebhooksByEvents(ctx, tickers)
	if err != nil {
		return nil, err
	}
	byEvent := make(map[string]models.EventWebhook, len(webhooks))
	for _, w := range webhooks {
		byEvent[w.EventTicker] = w
	}

	views := make([]AlertView, 0, len(list))
	for _, a := range list {
		w := byEvent[a.EventTicker]
		views = append(views, AlertView{
			UserAlert:     a,
			WebhookStatus: w.Status,
			SearchQuery:   w.SearchQuery,
			SearchTerms:   []string(w.SearchTerms),
		})
	}
	return views, nil
}

// Usage reports the alert quota of a user.
func (s *Service) Usage(ctx context.Context, userID uint) (Usage, error) {
	count, err := s.repo.CountAlertsByUser(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	plan := string(entitlements.PlanFree)
	if s.plans != nil {
		p, err := s.plans.PlanForUser(ctx, userID)
		if err != nil {
			return Usage{}, err
		}
		plan = string(entitlements.NormalizePlan(p))
	}
	return Usage{
		AlertCount: count,
		MaxAlerts:  entitlements.MaxAlerts(entitlements.Plan(plan)),
		Plan:       plan,
	}, nil
}

// ReleaseIdleWebhook unsubscribes the webhook of eventTicker if nothing
// references it any more. It is safe to call repeatedly and is used by the
// retry job.
func (s *Service) ReleaseIdleWebhook(ctx context.Context, eventTicker string) error {
	w, err := s.repo.GetWebhookByEvent(ctx, eventTicker)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if w.SubscriberCount > 0 || w.Status == models.WebhookStatusUnsubscribed {
		return nil
	}

	shared, err := s.topicStillWanted(ctx, w)
	if err != nil {
		return err
	}

	hubReleased := false
	if !shared {
		err := s.hub.Unsubscribe(ctx, w.Topic, s.callbackURL)
		s.metrics.ObserveHubRequest("unsubscribe", err == nil)
		if err != nil && !superfeedr.IsNotConfigured(err) {
			return &UpstreamError{Op: "unsubscribe", EventTicker: eventTicker, Err: err}
		}
		hubReleased = true
	}

	marked, err := s.repo.MarkUnsubscribedIfIdle(ctx, eventTicker)
	if err != nil {
		return err
	}
	if marked {
		s.logger.Info("event webhook unsubscribed",
			zap.String("event_ticker", eventTicker),
			zap.Bool("topic_shared", shared),
		)
		return nil
	}

	// An alert was added while the hub call was in flight.
	s.logger.Info("interest returned during unsubscribe", zap.String("event_ticker", eventTicker))
	if !hubReleased {
		return nil
	}
	status, err := s.subscribe(ctx, w)
	if err != nil {
		s.logger.Error("re-subscribe after unsubscribe race failed", zap.String("event_ticker", eventTicker), zap.Error(err))
		// FAILED makes the next AddAlert retry the subscription.
		if updErr := s.repo.UpdateWebhookStatus(ctx, eventTicker, models.WebhookStatusFailed); updErr != nil {
			s.logger.Error("failed to mark webhook failed", zap.String("event_ticker", eventTicker), zap.Error(updErr))
		}
		return nil
	}
	if status != w.Status {
		return s.repo.UpdateWebhookStatus(ctx, eventTicker, status)
	}
	return nil
}

// ReconcileIdleWebhooks queues an unsubscribe for every webhook that has no
// subscribers left but is still open. Without a scheduler the release runs
// inline. It returns the number of webhooks handled.
func (s *Service) ReconcileIdleWebhooks(ctx context.Context) (int, error) {
	idle, err := s.repo.ListIdleWebhooks(ctx)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, w := range idle {
		if s.retries != nil {
			if err := s.retries.EnqueueUnsubscribe(ctx, w.EventTicker); err != nil {
				s.logger.Error("failed to enqueue unsubscribe", zap.String("event_ticker", w.EventTicker), zap.Error(err))
				continue
			}
		} else if err := s.ReleaseIdleWebhook(ctx, w.EventTicker); err != nil {
			s.logger.Warn("reconcile unsubscribe failed", zap.String("event_ticker", w.EventTicker), zap.Error(err))
			continue
		}
		handled++
	}
	return handled, nil
}

func (s *Service) ownedAlert(ctx context.Context, userID, alertID uint) (*models.UserAlert, error) {
	alert, err := s.repo.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	if alert.UserID != userID {
		return nil, ErrForbidden
	}
	return alert, nil
}

func (s *Service) checkQuota(ctx context.Context, userID uint) error {
	if s.plans == nil {
		return nil
	}
	plan, err := s.plans.PlanForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}
	count, err := s.repo.CountAlertsByUser(ctx, userID)
	if err != nil {
		return err
	}
	if !entitlements.CanAddAlert(count, plan) {
		p := entitlements.NormalizePlan(plan)
		return &AlertLimitError{Plan: string(p), MaxAlerts: entitlements.MaxAlerts(p)}
	}
	return nil
}

func (s *Service) isBlocked(category string) bool {
	_, ok := s.blocked[strings.ToLower(strings.TrimSpace(category))]
	return ok
}

func (s *Service) scheduleRetry(ctx context.Context, eventTicker string) {
	if s.retries == nil {
		return
	}
	if err := s.retries.EnqueueUnsubscribe(ctx, eventTicker); err != nil {
		s.logger.Error("failed to enqueue unsubscribe retry", zap.String("event_ticker", eventTicker), zap.Error(err))
	}
}
