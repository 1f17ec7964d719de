// Package dispatch fans inbound hub deliveries out to the users alerted on
// the delivered event.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TickerFox/internal/pkg/superfeedr"
	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	defaultConcurrency = 8
)

// WebhookLookup resolves a hub topic to the event webhooks sharing it.
type WebhookLookup interface {
	FindWebhooksByTopic(ctx context.Context, topic string) ([]models.EventWebhook, error)
}

// AlertLister returns the ACTIVE alerts of a set of events.
type AlertLister interface {
	ListActiveAlertsByEvents(ctx context.Context, eventTickers []string) ([]models.UserAlert, error)
}

// Contact holds the delivery addresses of a user. Phone is empty when the
// user has none on file.
type Contact struct {
	Email string
	Phone string
}

// UserDirectory resolves users to contacts.
type UserDirectory interface {
	ContactsByIDs(ctx context.Context, userIDs []uint) (map[uint]Contact, error)
}

// Sender delivers one article over one channel.
type Sender interface {
	Send(ctx context.Context, to, eventTitle string, article models.NotificationArticle) models.DeliveryResult
}

// Archiver stores verified raw payloads.
type Archiver interface {
	Archive(ctx context.Context, eventTicker string, payload []byte) error
}

// DeliveryRecorder counts successful sends per event.
type DeliveryRecorder interface {
	Record(ctx context.Context, eventTicker string, n int64) error
}

type Options struct {
	Concurrency int
	SMS         Sender
	Archiver    Archiver
	Recorder    DeliveryRecorder
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Dispatcher handles inbound deliveries.
type Dispatcher struct {
	webhooks    WebhookLookup
	alerts      AlertLister
	users       UserDirectory
	email       Sender
	sms         Sender
	archiver    Archiver
	recorder    DeliveryRecorder
	metrics     *metrics.Metrics
	logger      *zap.Logger
	concurrency int
}

func NewDispatcher(webhooks WebhookLookup, alerts AlertLister, users UserDirectory, email Sender, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		webhooks:    webhooks,
		alerts:      alerts,
		users:       users,
		email:       email,
		sms:         opts.SMS,
		archiver:    opts.Archiver,
		recorder:    opts.Recorder,
		metrics:     opts.Metrics,
		logger:      opts.Logger.Named("dispatch"),
		concurrency: opts.Concurrency,
	}
}

// Outcome classifies how a delivery was handled.
type Outcome string

const (
	OutcomeInvalidJSON      Outcome = "invalid_json"
	OutcomeNoTopic          Outcome = "no_topic"
	OutcomeStale            Outcome = "stale"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeNoItems          Outcome = "no_items"
	OutcomeNoAlerts         Outcome = "no_alerts"
	OutcomeDelivered        Outcome = "delivered"
	OutcomeInternalError    Outcome = "internal_error"
)

// Report summarises one delivery. Counters are only meaningful for
// OutcomeDelivered.
type Report struct {
	Outcome      Outcome
	EventTickers []string
	Items        int
	Users        int
	EmailsSent   int64
	EmailsFailed int64
	SMSSent      int64
	SMSFailed    int64
	SMSSkipped   int64
}

// StatusCode is the HTTP status acknowledged to the hub. Only a bad
// signature is rejected; everything else is acknowledged so the hub does
// not retry.
func (r Report) StatusCode() int {
	if r.Outcome == OutcomeInvalidSignature {
		return http.StatusUnauthorized
	}
	return http.StatusOK
}

// Body is the JSON response for the report.
func (r Report) Body() map[string]any {
	switch r.Outcome {
	case OutcomeInvalidJSON:
		return map[string]any{"received": true, "error": "Invalid JSON"}
	case OutcomeNoTopic:
		return map[string]any{"received": true, "error": "No topic URL"}
	case OutcomeStale:
		return map[string]any{"received": true, "stale": true}
	case OutcomeInvalidSignature:
		return map[string]any{"error": "Invalid signature"}
	case OutcomeNoItems:
		return map[string]any{"received": true, "items": 0}
	case OutcomeNoAlerts:
		return map[string]any{"received": true, "alerts": 0}
	case OutcomeInternalError:
		return map[string]any{"received": true, "error": "Internal error - logged for investigation"}
	default:
		return map[string]any{
			"received":     true,
			"items":        r.Items,
			"users":        r.Users,
			"emailsSent":   r.EmailsSent,
			"emailsFailed": r.EmailsFailed,
			"smsSent":      r.SMSSent,
			"smsFailed":    r.SMSFailed,
			"smsSkipped":   r.SMSSkipped,
		}
	}
}

// Handle processes one raw delivery body with its X-Hub-Signature header.
// It never returns an error: every failure is expressed in the report.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, signature string) Report {
	start := time.Now()
	report := d.handle(ctx, body, signature)
	d.metrics.ObserveDelivery(string(report.Outcome))
	if report.Outcome == OutcomeDelivered {
		d.metrics.ObserveDispatch(time.Since(start))
	}
	return report
}

func (d *Dispatcher) handle(ctx context.Context, body []byte, signature string) Report {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		d.logger.Warn("failed to parse delivery", zap.Error(err))
		return Report{Outcome: OutcomeInvalidJSON}
	}

	topic := payload.Topic()
	if topic == "" {
		d.logger.Warn("delivery without topic")
		return Report{Outcome: OutcomeNoTopic}
	}

	webhooks, err := d.webhooks.FindWebhooksByTopic(ctx, topic)
	if err != nil {
		d.logger.Error("failed to resolve topic", zap.String("topic", topic), zap.Error(err))
		return Report{Outcome: OutcomeInternalError}
	}
	if len(webhooks) == 0 {
		d.logger.Warn("delivery for unknown topic", zap.String("topic", topic))
		return Report{Outcome: OutcomeStale}
	}

	if !signatureMatches(body, signature, webhooks) {
		d.logger.Warn("invalid delivery signature", zap.String("topic", topic))
		return Report{Outcome: OutcomeInvalidSignature}
	}

	tickers := make([]string, 0, len(webhooks))
	titles := make(map[string]string, len(webhooks))
	for _, w := range webhooks {
		tickers = append(tickers, w.EventTicker)
		title := w.EventTitle
		if title == "" {
			title = ticker.FormatEventTitle(w.EventTicker)
		}
		titles[w.EventTicker] = title
	}
	report := Report{EventTickers: tickers}

	d.archive(ctx, tickers[0], body)

	if len(payload.Items) == 0 {
		d.logger.Info("delivery without items", zap.Strings("event_tickers", tickers))
		report.Outcome = OutcomeNoItems
		return report
	}

	alerts, err := d.alerts.ListActiveAlertsByEvents(ctx, tickers)
	if err != nil {
		d.logger.Error("failed to load alerts", zap.Strings("event_tickers", tickers), zap.Error(err))
		report.Outcome = OutcomeInternalError
		return report
	}
	if len(alerts) == 0 {
		d.logger.Info("no active alerts for delivery", zap.Strings("event_tickers", tickers))
		report.Outcome = OutcomeNoAlerts
		return report
	}

	userIDs := distinctUsers(alerts)
	contacts, err := d.users.ContactsByIDs(ctx, userIDs)
	if err != nil {
		d.logger.Error("failed to load contacts", zap.Strings("event_tickers", tickers), zap.Error(err))
		report.Outcome = OutcomeInternalError
		return report
	}

	articles := make([]models.NotificationArticle, 0, len(payload.Items))
	for _, it := range payload.Items {
		articles = append(articles, it.Article())
	}

	report.Outcome = OutcomeDelivered
	report.Items = len(articles)
	report.Users = len(userIDs)
	d.fanOut(context.WithoutCancel(ctx), articles, alerts, contacts, titles, &report)

	d.logger.Info("delivery processed",
		zap.Strings("event_tickers", tickers),
		zap.Int("items", report.Items),
		zap.Int("users", report.Users),
		zap.Int64("emails_sent", report.EmailsSent),
		zap.Int64("emails_failed", report.EmailsFailed),
		zap.Int64("sms_sent", report.SMSSent),
		zap.Int64("sms_failed", report.SMSFailed),
		zap.Int64("sms_skipped", report.SMSSkipped),
	)
	return report
}

type counters struct {
	emailsSent, emailsFailed       atomic.Int64
	smsSent, smsFailed, smsSkipped atomic.Int64
}

// fanOut sends every article to every alert with bounded concurrency. Send
// failures are counted and never stop the remaining sends.
func (d *Dispatcher) fanOut(ctx context.Context, articles []models.NotificationArticle, alerts []models.UserAlert, contacts map[uint]Contact, titles map[string]string, report *Report) {
	var c counters
	delivered := make(map[string]*atomic.Int64, len(titles))
	for t := range titles {
		delivered[t] = new(atomic.Int64)
	}

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for _, article := range articles {
		for _, alert := range alerts {
			g.Go(func() error {
				n := d.deliver(ctx, article, alert, contacts, titles[alert.EventTicker], &c)
				if n > 0 {
					if cnt, ok := delivered[alert.EventTicker]; ok {
						cnt.Add(n)
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	report.EmailsSent = c.emailsSent.Load()
	report.EmailsFailed = c.emailsFailed.Load()
	report.SMSSent = c.smsSent.Load()
	report.SMSFailed = c.smsFailed.Load()
	report.SMSSkipped = c.smsSkipped.Load()

	d.record(ctx, delivered)
}

// deliver sends one article to the owner of one alert and returns the
// number of successful sends.
func (d *Dispatcher) deliver(ctx context.Context, article models.NotificationArticle, alert models.UserAlert, contacts map[uint]Contact, eventTitle string, c *counters) int64 {
	var sent int64
	fields := []zap.Field{
		zap.Uint("user_id", alert.UserID),
		zap.String("event_ticker", alert.EventTicker),
		zap.String("article_id", article.ID),
	}

	contact, ok := contacts[alert.UserID]
	if !ok {
		c.emailsFailed.Add(1)
		c.smsSkipped.Add(1)
		d.metrics.ObserveSend(ChannelEmail, false)
		d.logger.Warn("no contact for alerted user", fields...)
		return 0
	}

	res := d.email.Send(ctx, contact.Email, eventTitle, article)
	d.metrics.ObserveSend(ChannelEmail, res.Success)
	if res.Success {
		c.emailsSent.Add(1)
		sent++
	} else {
		c.emailsFailed.Add(1)
		d.logger.Warn("channel send failed", append(fields, zap.String("channel", ChannelEmail), zap.String("error", res.Error))...)
	}

	if contact.Phone == "" || d.sms == nil {
		c.smsSkipped.Add(1)
		return sent
	}
	res = d.sms.Send(ctx, contact.Phone, eventTitle, article)
	d.metrics.ObserveSend(ChannelSMS, res.Success)
	if res.Success {
		c.smsSent.Add(1)
		sent++
	} else {
		c.smsFailed.Add(1)
		d.logger.Warn("channel send failed", append(fields, zap.String("channel", ChannelSMS), zap.String("error", res.Error))...)
	}
	return sent
}

func (d *Dispatcher) archive(ctx context.Context, eventTicker string, body []byte) {
	if d.archiver == nil {
		return
	}
	if err := d.archiver.Archive(ctx, eventTicker, body); err != nil {
		d.logger.Warn("failed to archive delivery", zap.String("event_ticker", eventTicker), zap.Error(err))
	}
}

func (d *Dispatcher) record(ctx context.Context, delivered map[string]*atomic.Int64) {
	if d.recorder == nil {
		return
	}
	for eventTicker, n := range delivered {
		if v := n.Load(); v > 0 {
			if err := d.recorder.Record(ctx, eventTicker, v); err != nil {
				d.logger.Warn("failed to record deliveries", zap.String("event_ticker", eventTicker), zap.Error(err))
			}
		}
	}
}

// signatureMatches accepts the delivery if the header matches the secret of
// any webhook sharing the topic.
func signatureMatches(body []byte, signature string, webhooks []models.EventWebhook) bool {
	if signature == "" {
		return false
	}
	tried := make(map[string]struct{}, len(webhooks))
	for _, w := range webhooks {
		if _, seen := tried[w.Secret]; seen {
			continue
		}
		tried[w.Secret] = struct{}{}
		if superfeedr.VerifySignature(body, signature, w.Secret) {
			return true
		}
	}
	return false
}

func distinctUsers(alerts []models.UserAlert) []uint {
	seen := make(map[uint]struct{}, len(alerts))
	ids := make([]uint, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		ids = append(ids, a.UserID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
