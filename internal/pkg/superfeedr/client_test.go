package superfeedr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeSendsForm(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fox", "token", time.Second, nil)
	err := c.Subscribe(context.Background(), "http://track.superfeedr.com/?query=bitcoin", "https://example.com/cb", "abc")
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
	user, pass, ok := got.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "fox", user)
	assert.Equal(t, "token", pass)

	assert.Equal(t, "subscribe", got.PostForm.Get("hub.mode"))
	assert.Equal(t, "http://track.superfeedr.com/?query=bitcoin", got.PostForm.Get("hub.topic"))
	assert.Equal(t, "https://example.com/cb", got.PostForm.Get("hub.callback"))
	assert.Equal(t, "abc", got.PostForm.Get("hub.secret"))
	assert.Equal(t, "sync", got.PostForm.Get("hub.verify"))
	assert.Equal(t, "json", got.PostForm.Get("format"))
}

func TestUnsubscribeOmitsSecret(t *testing.T) {
	var mode, secret string
	var hasSecret bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mode = r.PostForm.Get("hub.mode")
		secret = r.PostForm.Get("hub.secret")
		_, hasSecret = r.PostForm["hub.secret"]
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fox", "token", time.Second, nil)
	require.NoError(t, c.Unsubscribe(context.Background(), "topic", "https://example.com/cb"))
	assert.Equal(t, "unsubscribe", mode)
	assert.Empty(t, secret)
	assert.False(t, hasSecret)
}

func TestSubscribeErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		notConfigured bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "bad credentials", notConfigured: true},
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "bad request", status: http.StatusUnprocessableEntity, body: "invalid topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", "", time.Second, nil)
			err := c.Subscribe(context.Background(), "topic", "cb", "secret")
			require.Error(t, err)

			var subErr *SubscriptionError
			require.True(t, errors.As(err, &subErr))
			assert.Equal(t, tt.status, subErr.StatusCode)
			assert.Equal(t, tt.body, subErr.Body)
			assert.Equal(t, tt.notConfigured, IsNotConfigured(err))
		})
	}
}

func TestSubscribeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, "", "", 50*time.Millisecond, nil)
	err := c.Subscribe(context.Background(), "topic", "cb", "secret")
	require.Error(t, err)

	var timeoutErr *TimeoutError
	assert.True(t, errors.As(err, &timeoutErr))
	assert.False(t, IsNotConfigured(err))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", "", "", 0, nil)
	assert.Equal(t, DefaultHubURL, c.HubURL)
	assert.Equal(t, defaultTimeout, c.Timeout)
}
