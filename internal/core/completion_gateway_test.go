package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, handler http.HandlerFunc) *GatewayCompleter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGatewayCompleter("test-key", srv.URL+"/v1/", "google/gemini-2.5-flash", srv.Client())
}

func TestGatewayCompleterSendsChatRequest(t *testing.T) {
	var got gatewayRequest
	c := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Olá! Posso ajudar."}}]}`))
	})

	text, err := c.Complete(context.Background(), "system prompt", "Quero financiar")
	require.NoError(t, err)
	assert.Equal(t, "Olá! Posso ajudar.", text)

	assert.Equal(t, "google/gemini-2.5-flash", got.Model)
	assert.Equal(t, []gatewayMessage{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "Quero financiar"},
	}, got.Messages)
}

func TestGatewayCompleterErrorStatus(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusPaymentRequired, http.StatusInternalServerError} {
		c := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", code)
		})
		_, err := c.Complete(context.Background(), "s", "u")
		assert.ErrorIs(t, err, ErrUpstreamStatus, "status %d", code)
	}
}

func TestGatewayCompleterMalformedResponses(t *testing.T) {
	bodies := map[string]string{
		"not json":   `<html>oops</html>`,
		"no choices": `{"choices":[]}`,
		"no message": `{"choices":[{}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Complete(context.Background(), "s", "u")
			assert.ErrorIs(t, err, ErrMalformedUpstreamResponse)
		})
	}
}

func TestGatewayCompleterEmptyContentIsNotAnError(t *testing.T) {
	c := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	})
	text, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGatewayCompleterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewGatewayCompleter("k", url, "m", nil)
	_, err := c.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
