package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rastaflix/livesync/kickapi"
	"github.com/rastaflix/livesync/testutil"
)

func decodeLiveStatus(t *testing.T, rr *httptest.ResponseRecorder) liveStatusResponse {
	t.Helper()
	var resp liveStatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestLiveStatusFreshSkipsPoll(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	status := seededStatus()
	status.IsLiveKick = true
	status.KickStreamTitle = strPtr("cached title")
	status.KickViewerCount = intPtr(77)
	status.LastKickUpdate = timePtr(time.Now().Add(-30 * time.Second))
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeLiveStatus(t, rr)
	if !resp.IsLiveKick || resp.KickStreamTitle == nil || *resp.KickStreamTitle != "cached title" {
		t.Errorf("response did not use cached kick block: %+v", resp)
	}
	if n := kick.Calls["/channels/ovelhera"]; n != 0 {
		t.Errorf("kick polled %d times within freshness window, want 0", n)
	}
}

func TestLiveStatusStalePollsOnce(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	kick.MockChannelLive("ovelhera", "Ao vivo", 420, "https://kick.com/thumb.jpg")
	status := seededStatus()
	status.LastKickUpdate = timePtr(time.Now().Add(-3 * time.Minute))
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeLiveStatus(t, rr)
	if !resp.IsLiveKick {
		t.Error("is_live_kick = false, want refreshed live state")
	}
	if resp.KickStreamTitle == nil || *resp.KickStreamTitle != "Ao vivo" {
		t.Errorf("kick title = %v", resp.KickStreamTitle)
	}
	if resp.KickViewerCount == nil || *resp.KickViewerCount != 420 {
		t.Errorf("kick viewers = %v", resp.KickViewerCount)
	}
	if n := kick.Calls["/channels/ovelhera"]; n != 1 {
		t.Errorf("kick polled %d times, want exactly 1", n)
	}

	// The refreshed block is persisted off the request path.
	block := store.waitKickWrite(t)
	if !block.IsLive {
		t.Error("persisted block not live")
	}
}

func TestLiveStatusNullLastUpdateAlwaysPolls(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	kick.MockChannelOffline("ovelhera")
	store := newFakeStore(seededStatus()) // LastKickUpdate nil
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if n := kick.Calls["/channels/ovelhera"]; n != 1 {
		t.Errorf("kick polled %d times, want 1 for never-refreshed row", n)
	}
	store.waitKickWrite(t)
}

func TestLiveStatusNegativeCache(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	kick.MockChannelStatus("ovelhera", http.StatusNotFound)
	status := seededStatus()
	status.IsLiveKick = true
	status.KickStreamTitle = strPtr("stale title")
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeLiveStatus(t, rr)
	if resp.IsLiveKick {
		t.Error("is_live_kick = true, want offline for 404 channel")
	}

	// The offline state is persisted as a fresh write so the next 2 minutes of
	// requests don't hammer the broken channel.
	block := store.waitKickWrite(t)
	if block.IsLive || block.StreamTitle != nil {
		t.Errorf("persisted block = %+v, want cleared offline state", block)
	}
	got := store.snapshot()
	if got.LastKickUpdate == nil || time.Since(*got.LastKickUpdate) > time.Minute {
		t.Error("last_kick_update not refreshed by negative cache")
	}
}

func TestLiveStatusTransportErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	status := seededStatus()
	status.IsLiveKick = true
	status.KickStreamTitle = strPtr("last known")
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: srv.URL})

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite upstream failure", rr.Code)
	}
	resp := decodeLiveStatus(t, rr)
	if !resp.IsLiveKick || resp.KickStreamTitle == nil || *resp.KickStreamTitle != "last known" {
		t.Errorf("response = %+v, want cached kick block", resp)
	}
	// No write should land for a transport failure.
	select {
	case b := <-store.kickWrites:
		t.Errorf("unexpected kick write %+v after transport failure", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLiveStatusMergesTwitchVerbatim(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	status := seededStatus()
	status.IsLiveTwitch = true
	status.TwitchStreamTitle = strPtr("Twitch Title")
	status.TwitchViewerCount = intPtr(1234)
	status.TwitchThumbnailURL = strPtr("https://t/thumb.jpg")
	status.LastKickUpdate = timePtr(time.Now())
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	resp := decodeLiveStatus(t, rr)
	if !resp.IsLiveTwitch {
		t.Error("is_live_twitch mismatch")
	}
	if resp.TwitchStreamTitle == nil || *resp.TwitchStreamTitle != "Twitch Title" {
		t.Errorf("twitch title = %v", resp.TwitchStreamTitle)
	}
	if resp.TwitchViewerCount == nil || *resp.TwitchViewerCount != 1234 {
		t.Errorf("twitch viewers = %v", resp.TwitchViewerCount)
	}
	if resp.TwitchThumbnailURL == nil || *resp.TwitchThumbnailURL != "https://t/thumb.jpg" {
		t.Errorf("twitch thumbnail = %v", resp.TwitchThumbnailURL)
	}
}

func TestLiveStatusNotProvisioned(t *testing.T) {
	store := newFakeStore(nil)
	h := newTestHandlers(store, testConfig(), nil)

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for missing row", rr.Code)
	}
}

func TestLiveStatusStoreError(t *testing.T) {
	store := newFakeStore(seededStatus())
	store.getErr = errors.New("connection refused")
	h := newTestHandlers(store, testConfig(), nil)

	rr := httptest.NewRecorder()
	h.HandleLiveStatus(rr, httptest.NewRequest(http.MethodGet, "/live-status", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestCheckKickStatusForcedRefresh(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	kick.MockChannelLive("ovelhera", "Forced", 7, "https://kick.com/t.jpg")
	status := seededStatus()
	status.LastKickUpdate = timePtr(time.Now()) // fresh, but forced path ignores the gate
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleCheckKickStatus(rr, httptest.NewRequest(http.MethodGet, "/check-kick-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if n := kick.Calls["/channels/ovelhera"]; n != 1 {
		t.Errorf("kick polled %d times, want 1 (no staleness gate)", n)
	}
	got := store.snapshot()
	if !got.IsLiveKick || got.KickStreamTitle == nil || *got.KickStreamTitle != "Forced" {
		t.Errorf("persisted state = %+v", got)
	}
}

func TestCheckKickStatusUpstreamGone(t *testing.T) {
	kick := testutil.NewMockKickServer(t)
	kick.MockChannelStatus("ovelhera", http.StatusNotFound)
	status := seededStatus()
	status.IsLiveKick = true
	store := newFakeStore(status)
	h := newTestHandlers(store, testConfig(), &kickapi.Client{BaseURL: kick.URL})

	rr := httptest.NewRecorder()
	h.HandleCheckKickStatus(rr, httptest.NewRequest(http.MethodGet, "/check-kick-status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with explanatory message", rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if live, _ := resp["is_live_kick"].(bool); live {
		t.Error("is_live_kick = true, want false")
	}
	if _, ok := resp["message"]; !ok {
		t.Error("missing explanatory message")
	}
	if store.snapshot().IsLiveKick {
		t.Error("offline state not persisted")
	}
}

func TestCheckKickStatusTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	h := newTestHandlers(newFakeStore(seededStatus()), testConfig(), &kickapi.Client{BaseURL: srv.URL})

	rr := httptest.NewRecorder()
	h.HandleCheckKickStatus(rr, httptest.NewRequest(http.MethodGet, "/check-kick-status", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}
