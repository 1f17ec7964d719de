package alerts

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/querygen"
	"github.com/ManuelReschke/TickerFox/internal/pkg/superfeedr"
	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
)

// ensureWebhook returns the event webhook for parsed, creating it on first
// interest and re-opening it when it was unsubscribed.
func (s *Service) ensureWebhook(ctx context.Context, parsed ticker.Parsed, title string) (*models.EventWebhook, error) {
	w, err := s.repo.GetWebhookByEvent(ctx, parsed.EventTicker)
	if err == nil {
		return s.reviveWebhook(ctx, w)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.createWebhook(ctx, parsed, title)
}

func (s *Service) createWebhook(ctx context.Context, parsed ticker.Parsed, title string) (*models.EventWebhook, error) {
	res := s.generator.Generate(ctx, parsed.EventTicker, title)
	s.metrics.ObserveQuery(res.Strategy)

	category := parsed.Category
	if category == "" {
		category = res.Category
	}

	w := &models.EventWebhook{
		EventTicker:   parsed.EventTicker,
		EventTitle:    title,
		Category:      category,
		Topic:         querygen.BuildTopicURL(res.Query),
		SearchQuery:   res.Query,
		SearchTerms:   res.SearchTerms,
		QueryStrategy: res.Strategy,
	}

	subscribed := false
	sibling, err := s.liveSibling(ctx, w)
	if err != nil {
		return nil, err
	}
	if sibling != nil {
		// The hub already delivers this topic; share its subscription.
		w.Secret = sibling.Secret
		w.Status = sibling.Status
		s.logger.Info("sharing hub subscription",
			zap.String("event_ticker", w.EventTicker),
			zap.String("shared_with", sibling.EventTicker),
		)
	} else {
		secret, err := superfeedr.GenerateSecret()
		if err != nil {
			return nil, err
		}
		w.Secret = secret
		status, err := s.subscribe(ctx, w)
		if err != nil {
			return nil, err
		}
		w.Status = status
		subscribed = true
	}

	if err := s.repo.CreateWebhook(ctx, w); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return s.adoptExisting(ctx, w, subscribed)
		}
		if subscribed {
			s.discardSubscription(ctx, w)
		}
		return nil, err
	}

	s.logger.Info("event webhook created",
		zap.String("event_ticker", w.EventTicker),
		zap.String("status", w.Status),
		zap.String("strategy", w.QueryStrategy),
		zap.String("query", w.SearchQuery),
	)
	return w, nil
}

// adoptExisting handles losing the creation race for an event ticker. The
// hub subscription we opened either used another topic, or replaced the
// winner's secret on the same topic; both are undone.
func (s *Service) adoptExisting(ctx context.Context, ours *models.EventWebhook, subscribed bool) (*models.EventWebhook, error) {
	winner, err := s.repo.GetWebhookByEvent(ctx, ours.EventTicker)
	if err != nil {
		return nil, err
	}
	if !subscribed {
		return winner, nil
	}

	if winner.Topic != ours.Topic {
		s.discardSubscription(ctx, ours)
		return winner, nil
	}
	if winner.Secret != ours.Secret && winner.Status == models.WebhookStatusActive {
		if _, err := s.subscribe(ctx, winner); err != nil {
			s.logger.Error("failed to restore hub secret after creation race",
				zap.String("event_ticker", winner.EventTicker),
				zap.Error(err),
			)
		}
	}
	return winner, nil
}

// reviveWebhook re-opens a webhook that new interest finds closed. A
// PENDING webhook gets a best-effort retry of its subscription.
func (s *Service) reviveWebhook(ctx context.Context, w *models.EventWebhook) (*models.EventWebhook, error) {
	switch {
	case w.NeedsResubscribe() || w.Status == models.WebhookStatusFailed:
		sibling, err := s.liveSibling(ctx, w)
		if err != nil {
			return nil, err
		}
		status := models.WebhookStatusActive
		if sibling != nil {
			status = sibling.Status
		} else if status, err = s.subscribe(ctx, w); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateWebhookStatus(ctx, w.EventTicker, status); err != nil {
			return nil, err
		}
		s.logger.Info("event webhook re-subscribed",
			zap.String("event_ticker", w.EventTicker),
			zap.String("previous_status", w.Status),
			zap.String("status", status),
		)
		w.Status = status

	case w.Status == models.WebhookStatusPending:
		status, err := s.subscribe(ctx, w)
		if err != nil {
			s.logger.Warn("pending webhook still cannot subscribe", zap.String("event_ticker", w.EventTicker), zap.Error(err))
			return w, nil
		}
		if status == models.WebhookStatusActive {
			if err := s.repo.UpdateWebhookStatus(ctx, w.EventTicker, status); err != nil {
				return nil, err
			}
			w.Status = status
		}
	}
	return w, nil
}

// subscribe opens the hub subscription for w and maps the outcome to a
// webhook status: ACTIVE on success, PENDING when the hub is not
// configured. Any other failure is an UpstreamError.
func (s *Service) subscribe(ctx context.Context, w *models.EventWebhook) (string, error) {
	err := s.hub.Subscribe(ctx, w.Topic, s.callbackURL, w.Secret)
	s.metrics.ObserveHubRequest("subscribe", err == nil)

	switch {
	case err == nil:
		return models.WebhookStatusActive, nil
	case superfeedr.IsNotConfigured(err):
		s.logger.Warn("hub credentials not configured, webhook left pending",
			zap.String("event_ticker", w.EventTicker),
			zap.String("topic", w.Topic),
		)
		return models.WebhookStatusPending, nil
	default:
		s.logger.Error("hub subscribe failed",
			zap.String("event_ticker", w.EventTicker),
			zap.String("topic", w.Topic),
			zap.Error(err),
		)
		return "", &UpstreamError{Op: "subscribe", EventTicker: w.EventTicker, Err: err}
	}
}

// liveSibling returns another webhook on the same topic whose hub
// subscription is open, if any.
func (s *Service) liveSibling(ctx context.Context, w *models.EventWebhook) (*models.EventWebhook, error) {
	siblings, err := s.repo.FindWebhooksByTopic(ctx, w.Topic)
	if err != nil {
		return nil, err
	}
	for i := range siblings {
		sib := &siblings[i]
		if sib.EventTicker != w.EventTicker && sib.IsLive() {
			return sib, nil
		}
	}
	return nil, nil
}

// topicStillWanted reports whether another webhook sharing w's topic still
// has subscribers.
func (s *Service) topicStillWanted(ctx context.Context, w *models.EventWebhook) (bool, error) {
	siblings, err := s.repo.FindWebhooksByTopic(ctx, w.Topic)
	if err != nil {
		return false, err
	}
	for _, sib := range siblings {
		if sib.EventTicker != w.EventTicker && sib.IsLive() && sib.SubscriberCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

// discardSubscription closes a hub subscription no stored webhook uses.
func (s *Service) discardSubscription(ctx context.Context, w *models.EventWebhook) {
	siblings, err := s.repo.FindWebhooksByTopic(ctx, w.Topic)
	if err != nil {
		s.logger.Warn("could not check topic before discarding subscription", zap.String("topic", w.Topic), zap.Error(err))
		return
	}
	for _, sib := range siblings {
		if sib.IsLive() {
			return
		}
	}
	err = s.hub.Unsubscribe(ctx, w.Topic, s.callbackURL)
	s.metrics.ObserveHubRequest("unsubscribe", err == nil)
	if err != nil {
		s.logger.Warn("failed to discard orphaned subscription", zap.String("topic", w.Topic), zap.Error(err))
	}
}
