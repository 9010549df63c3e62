// Package testutil provides shared helpers for tests: mock upstream APIs,
// EventSub request signing, and a Postgres test database.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rastaflix/livesync/eventsub"
)

// MockKickServer mocks Kick's channel endpoint with per-path handlers.
type MockKickServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	// Calls counts requests per path so tests can assert the staleness gate.
	Calls map[string]int
}

// NewMockKickServer creates a new mock Kick API server.
func NewMockKickServer(t *testing.T) *MockKickServer {
	t.Helper()
	m := &MockKickServer{
		Handlers: make(map[string]http.HandlerFunc),
		Calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.Calls[key]++
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockChannelLive registers a live channel response for a slug.
func (m *MockKickServer) MockChannelLive(slug, title string, viewers int, thumbnail string) {
	m.Handlers["/channels/"+slug] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"slug": slug,
			"livestream": map[string]any{
				"session_title": title,
				"viewer_count":  viewers,
				"thumbnail":     map[string]string{"url": thumbnail},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChannelOffline registers an offline channel response (livestream null).
func (m *MockKickServer) MockChannelOffline(slug string) {
	m.Handlers["/channels/"+slug] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{"slug": slug, "livestream": nil}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChannelStatus registers a bare status-code response (e.g. 404 for a
// renamed channel).
func (m *MockKickServer) MockChannelStatus(slug string, status int) {
	m.Handlers["/channels/"+slug] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

// MockHelixServer mocks the Helix streams endpoint.
type MockHelixServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockHelixServer creates a new mock Helix API server.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockStreamsResponse registers a /streams response with the given stream objects.
func (m *MockHelixServer) MockStreamsResponse(streams []map[string]any) {
	m.Handlers["/streams"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{"data": streams}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// SignedWebhookRequest builds a POST to /webhooks/twitch with valid EventSub
// headers and signature for the given body.
func SignedWebhookRequest(t *testing.T, secret, messageType string, body []byte) *http.Request {
	t.Helper()
	const (
		msgID        = "test-message-id"
		msgTimestamp = "2024-01-01T00:00:00Z"
	)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twitch", bytes.NewReader(body))
	req.Header.Set(eventsub.HeaderMessageID, msgID)
	req.Header.Set(eventsub.HeaderMessageTimestamp, msgTimestamp)
	req.Header.Set(eventsub.HeaderMessageType, messageType)
	req.Header.Set(eventsub.HeaderMessageSignature, eventsub.ComputeSignature(secret, msgID, msgTimestamp, body))
	return req
}
