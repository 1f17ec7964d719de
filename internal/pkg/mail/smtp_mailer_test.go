package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TickerFox/app/models"
)

// fakeSMTP accepts one session per connection and records the DATA payload.
type fakeSMTP struct {
	ln       net.Listener
	mu       sync.Mutex
	messages []string
	rcpts    []string
	silent   bool
}

func startFakeSMTP(t *testing.T, silent bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, silent: silent}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	if s.silent {
		time.Sleep(2 * time.Second)
		return
	}

	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }
	reply("220 fake ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, strings.TrimSpace(line))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.mu.Lock()
			s.messages = append(s.messages, data.String())
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func testArticle() models.NotificationArticle {
	published := time.Date(2025, 12, 5, 14, 30, 0, 0, time.UTC)
	return models.NotificationArticle{
		Title:       "Bitcoin breaks $100k",
		Summary:     "Markets rally <strongly> after ETF inflows.",
		URL:         "https://news.example.com/btc",
		Source:      "Example News",
		PublishedAt: &published,
	}
}

func TestMailerSendDeliversMultipartMessage(t *testing.T) {
	srv := startFakeSMTP(t, false)
	m, err := NewMailer(Config{Host: "127.0.0.1", Port: srv.port(), From: "alerts@tickerfox.test"}, nil)
	require.NoError(t, err)

	res := m.Send(context.Background(), "alice@example.com", "Bitcoin Price", testArticle())
	require.True(t, res.Success, res.Error)
	assert.True(t, strings.HasSuffix(res.ProviderMessageID, "@tickerfox.test>"))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.messages, 1)
	msg := srv.messages[0]

	assert.Contains(t, srv.rcpts[0], "alice@example.com")
	assert.Contains(t, msg, "Subject: News Alert: Bitcoin Price")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "text/plain; charset=UTF-8")
	assert.Contains(t, msg, "text/html; charset=UTF-8")
	assert.Contains(t, msg, "Read more: https://news.example.com/btc")
	assert.Contains(t, msg, `href="https://news.example.com/btc"`)
	assert.Contains(t, msg, "&lt;strongly&gt;", "summary is escaped in the HTML part")
	assert.Contains(t, msg, "Dec 5, 2025 14:30 UTC")
}

func TestMailerSendNotConfigured(t *testing.T) {
	m, err := NewMailer(Config{}, nil)
	require.NoError(t, err)

	res := m.Send(context.Background(), "alice@example.com", "Bitcoin Price", testArticle())
	assert.False(t, res.Success)
	assert.Equal(t, "smtp not configured", res.Error)
}

func TestMailerSendTimeout(t *testing.T) {
	srv := startFakeSMTP(t, true)
	m, err := NewMailer(Config{Host: "127.0.0.1", Port: srv.port(), From: "alerts@tickerfox.test", Timeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	res := m.Send(context.Background(), "alice@example.com", "Bitcoin Price", testArticle())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timeout")
	assert.Less(t, time.Since(start), time.Second)
}

func TestMailerSendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m, err := NewMailer(Config{Host: "127.0.0.1", Port: port, From: "alerts@tickerfox.test"}, nil)
	require.NoError(t, err)

	res := m.Send(context.Background(), "alice@example.com", "Bitcoin Price", testArticle())
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestSenderDomain(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"alerts@tickerfox.test", "tickerfox.test"},
		{"TickerFox <alerts@tickerfox.test>", "tickerfox.test"},
		{"nobody", "localhost"},
		{"trailing@", "localhost"},
	}
	for _, tt := range tests {
		t.Run(strconv.Quote(tt.from), func(t *testing.T) {
			assert.Equal(t, tt.want, senderDomain(tt.from))
		})
	}
}
