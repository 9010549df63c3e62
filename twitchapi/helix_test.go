package twitchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func staticTokenClient(srv *httptest.Server) *HelixClient {
	return &HelixClient{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "app-token"}),
		ClientID:    "client-id",
		BaseURL:     srv.URL,
	}
}

func TestGetStreamLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "client-id" {
			t.Errorf("client-id = %q", got)
		}
		if got := r.URL.Query().Get("user_login"); got != "ovelhera" {
			t.Errorf("user_login = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","user_id":"1234","user_login":"ovelhera","title":"Hello","viewer_count":99,"thumbnail_url":"https://t/{width}x{height}.jpg","type":"live"}]}`))
	}))
	defer srv.Close()

	s, err := staticTokenClient(srv).GetStream(context.Background(), "ovelhera")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if s == nil {
		t.Fatal("stream = nil, want live")
	}
	if s.Title != "Hello" || s.ViewerCount != 99 || s.UserID != "1234" {
		t.Errorf("stream = %+v", s)
	}
	if got := s.ResolveThumbnail(1280, 720); got != "https://t/1280x720.jpg" {
		t.Errorf("thumbnail = %q", got)
	}
}

func TestGetStreamOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	s, err := staticTokenClient(srv).GetStream(context.Background(), "ovelhera")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if s != nil {
		t.Errorf("stream = %+v, want nil for offline channel", s)
	}
}

func TestGetStreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := staticTokenClient(srv).GetStream(context.Background(), "ovelhera"); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestGetStreamEmptyLogin(t *testing.T) {
	hc := &HelixClient{TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"})}
	if _, err := hc.GetStream(context.Background(), ""); err == nil {
		t.Error("expected error for empty login")
	}
}
