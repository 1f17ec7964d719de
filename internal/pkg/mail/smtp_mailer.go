// Package mail sends alert notifications by email over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/template/html/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/logging"
)

const defaultTimeout = 5 * time.Second

//go:embed templates/*.html
var templatesFS embed.FS

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer renders and sends alert emails.
type Mailer struct {
	cfg    Config
	views  *html.Engine
	logger *zap.Logger
}

type alertView struct {
	EventTitle string
	Title      string
	Summary    string
	URL        string
	Source     string
	Published  string
}

// NewMailer creates a mailer with the embedded templates loaded.
func NewMailer(cfg Config, logger *zap.Logger) (*Mailer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	views := html.NewFileSystem(http.FS(sub), ".html")
	if err := views.Load(); err != nil {
		return nil, fmt.Errorf("load mail templates: %w", err)
	}

	return &Mailer{cfg: cfg, views: views, logger: logger.Named("mail")}, nil
}

// Configured reports whether an SMTP host is set.
func (m *Mailer) Configured() bool {
	return m.cfg.Host != ""
}

// Subject returns the subject line for an alert about eventTitle.
func Subject(eventTitle string) string {
	return "News Alert: " + eventTitle
}

// Send delivers article to the address to. Failures are reported in the
// result and never as an error.
func (m *Mailer) Send(ctx context.Context, to, eventTitle string, article models.NotificationArticle) models.DeliveryResult {
	if !m.Configured() {
		m.logger.Warn("smtp not configured, email skipped", zap.String("to", logging.MaskEmail(to)))
		return models.Failed("smtp not configured")
	}
	if to == "" {
		return models.Failed("no recipient")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), senderDomain(m.cfg.From))
	msg, err := m.compose(to, eventTitle, messageID, article)
	if err != nil {
		m.logger.Error("failed to render email", zap.String("to", logging.MaskEmail(to)), zap.Error(err))
		return models.Failed(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.deliver(ctx, to, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			err = fmt.Errorf("smtp timeout after %s", m.cfg.Timeout)
		}
		m.logger.Warn("email send failed", zap.String("to", logging.MaskEmail(to)), zap.Error(err))
		return models.Failed(err.Error())
	}

	m.logger.Info("email sent", zap.String("to", logging.MaskEmail(to)), zap.String("message_id", messageID))
	return models.DeliveryResult{Success: true, ProviderMessageID: messageID}
}

// compose builds a multipart/alternative message with a plain-text and an
// HTML part.
func (m *Mailer) compose(to, eventTitle, messageID string, article models.NotificationArticle) ([]byte, error) {
	view := alertView{
		EventTitle: eventTitle,
		Title:      article.Title,
		Summary:    article.Summary,
		URL:        article.URL,
		Source:     article.Source,
	}
	if article.PublishedAt != nil {
		view.Published = article.PublishedAt.UTC().Format("Jan 2, 2006 15:04 MST")
	}

	var htmlBody bytes.Buffer
	if err := m.views.Render(&htmlBody, "alert", view); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(plainText(view))); err != nil {
		return nil, err
	}

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write(htmlBody.Bytes()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", Subject(eventTitle)))
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func plainText(v alertView) string {
	var b strings.Builder
	b.WriteString(v.EventTitle + "\r\n\r\n")
	b.WriteString(v.Title + "\r\n")
	if v.Summary != "" {
		b.WriteString("\r\n" + v.Summary + "\r\n")
	}
	if v.Source != "" || v.Published != "" {
		b.WriteString("\r\n" + strings.TrimSpace(v.Source+" "+v.Published) + "\r\n")
	}
	b.WriteString("\r\nRead more: " + v.URL + "\r\n")
	return b.String()
}

// deliver runs one SMTP transaction. The connection deadline follows ctx.
func (m *Mailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if m.cfg.Username != "" && m.cfg.Password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
				return err
			}
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func senderDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return strings.Trim(from[i+1:], "> ")
	}
	return "localhost"
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
