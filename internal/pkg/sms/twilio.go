// Package sms sends alert notifications as text messages through Twilio.
package sms

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/logging"
)

const (
	defaultTimeout = 10 * time.Second

	// MaxLength is the size of a single GSM-7 segment.
	MaxLength      = 160
	maxEventLength = 30
	ellipsis       = "..."
)

// MessageCreator is the part of the Twilio API the sender uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Sender delivers alerts by SMS.
type Sender struct {
	api     MessageCreator
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSender creates a Twilio backed sender. Missing credentials produce a
// sender that reports every send as not configured.
func NewSender(accountSID, authToken, from string, timeout time.Duration, logger *zap.Logger) *Sender {
	var api MessageCreator
	if accountSID != "" && authToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		api = client.Api
	}
	return NewSenderWithAPI(api, from, timeout, logger)
}

// NewSenderWithAPI creates a sender on top of an existing message API.
func NewSenderWithAPI(api MessageCreator, from string, timeout time.Duration, logger *zap.Logger) *Sender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{api: api, from: from, timeout: timeout, logger: logger.Named("sms")}
}

// Configured reports whether credentials and a sender number are set.
func (s *Sender) Configured() bool {
	return s.api != nil && s.from != ""
}

// Send texts article to the E.164 number to. Failures are reported in the
// result and never as an error.
func (s *Sender) Send(ctx context.Context, to, eventTitle string, article models.NotificationArticle) models.DeliveryResult {
	if !s.Configured() {
		s.logger.Warn("twilio not configured, sms not sent", zap.String("to", logging.MaskPhone(to)))
		return models.Failed("twilio not configured")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(BuildMessage(eventTitle, article.Title, article.URL))

	type outcome struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := s.api.CreateMessage(params)
		done <- outcome{msg: msg, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-done:
	case <-timer.C:
		out.err = fmt.Errorf("sms timeout after %s", s.timeout)
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	if out.err != nil {
		s.logger.Warn("sms send failed",
			zap.String("to", logging.MaskPhone(to)),
			zap.String("event_title", eventTitle),
			zap.Error(out.err),
		)
		return models.Failed(out.err.Error())
	}

	var sid, status string
	if out.msg != nil {
		if out.msg.Sid != nil {
			sid = *out.msg.Sid
		}
		if out.msg.Status != nil {
			status = *out.msg.Status
		}
	}
	s.logger.Info("sms sent",
		zap.String("to", logging.MaskPhone(to)),
		zap.String("event_title", eventTitle),
		zap.String("message_sid", sid),
		zap.String("status", status),
	)
	return models.DeliveryResult{Success: true, ProviderMessageID: sid}
}

// BuildMessage renders "<event>\n<title>\n<url>" within MaxLength
// characters. The event title is capped at 30 characters and the article
// title takes what is left. The URL is never cut: when it leaves no room for
// the article title only "<event>\n<url>" is sent, and a URL that alone
// exceeds the budget is sent on its own.
func BuildMessage(eventTitle, articleTitle, articleURL string) string {
	event := truncate(eventTitle, maxEventLength)
	prefix := event + "\n"
	suffix := "\n" + articleURL

	available := MaxLength - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(suffix)
	if available > 0 {
		return prefix + truncate(articleTitle, available) + suffix
	}
	if utf8.RuneCountInString(prefix+articleURL) <= MaxLength {
		return prefix + articleURL
	}
	return articleURL
}

// truncate shortens s to at most max runes, marking the cut with "...".
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-len(ellipsis)]) + ellipsis
}
