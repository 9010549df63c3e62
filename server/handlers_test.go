package server

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rastaflix/livesync/config"
	"github.com/rastaflix/livesync/db"
	"github.com/rastaflix/livesync/kickapi"
	"github.com/rastaflix/livesync/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

// fakeStore is an in-memory StatusStore with the same keying and timestamp
// semantics as the db helpers. kickWrites lets tests observe detached writes.
type fakeStore struct {
	mu         sync.Mutex
	status     *db.StreamerStatus
	getErr     error
	writeErr   error
	kickWrites chan db.KickBlock
}

func newFakeStore(status *db.StreamerStatus) *fakeStore {
	return &fakeStore{status: status, kickWrites: make(chan db.KickBlock, 4)}
}

func (f *fakeStore) snapshot() db.StreamerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.status
}

func (f *fakeStore) GetStreamerStatus(_ context.Context, twitchUsername string) (*db.StreamerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.status == nil || !strings.EqualFold(f.status.TwitchUsername, twitchUsername) {
		return nil, db.ErrStatusNotFound
	}
	cp := *f.status
	return &cp, nil
}

func (f *fakeStore) SetTwitchLive(_ context.Context, twitchUsername, userID string, title *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.status == nil || !strings.EqualFold(f.status.TwitchUsername, twitchUsername) {
		return db.ErrStatusNotFound
	}
	now := time.Now()
	f.status.IsLiveTwitch = true
	f.status.TwitchStreamTitle = title
	f.status.TwitchUserID = &userID
	f.status.LastTwitchUpdate = &now
	f.status.UpdatedAt = now
	return nil
}

func (f *fakeStore) SetTwitchOffline(_ context.Context, twitchUsername string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.status == nil || !strings.EqualFold(f.status.TwitchUsername, twitchUsername) {
		return db.ErrStatusNotFound
	}
	now := time.Now()
	f.status.IsLiveTwitch = false
	f.status.TwitchStreamTitle = nil
	f.status.TwitchViewerCount = nil
	f.status.LastTwitchUpdate = &now
	f.status.UpdatedAt = now
	return nil
}

func (f *fakeStore) SetTwitchTitle(_ context.Context, twitchUsername string, title *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.status == nil || !strings.EqualFold(f.status.TwitchUsername, twitchUsername) {
		return db.ErrStatusNotFound
	}
	now := time.Now()
	f.status.TwitchStreamTitle = title
	f.status.LastTwitchUpdate = &now
	f.status.UpdatedAt = now
	return nil
}

func (f *fakeStore) UpdateKickBlock(_ context.Context, kickUsername string, b db.KickBlock) error {
	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	match := f.status != nil && strings.EqualFold(f.status.KickUsername, kickUsername)
	if match {
		now := time.Now()
		f.status.IsLiveKick = b.IsLive
		f.status.KickStreamTitle = b.StreamTitle
		f.status.KickViewerCount = b.ViewerCount
		f.status.KickThumbnailURL = b.ThumbnailURL
		f.status.LastKickUpdate = &now
		f.status.UpdatedAt = now
	}
	f.mu.Unlock()
	if !match {
		return db.ErrStatusNotFound
	}
	select {
	case f.kickWrites <- b:
	default:
	}
	return nil
}

// waitKickWrite blocks until a detached Kick write lands or the test times out.
func (f *fakeStore) waitKickWrite(t *testing.T) db.KickBlock {
	t.Helper()
	select {
	case b := <-f.kickWrites:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for kick write")
		return db.KickBlock{}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		StreamerTwitchUsername: "ovelhera",
		StreamerKickUsername:   "ovelhera",
		TwitchWebhookSecret:    "s3cr3t",
		KickStaleAfter:         2 * time.Minute,
		KickHTTPTimeout:        5 * time.Second,
	}
}

func newTestHandlers(store StatusStore, cfg *config.Config, kick *kickapi.Client) *Handlers {
	return &Handlers{ctx: context.Background(), cfg: cfg, store: store, kick: kick}
}

func seededStatus() *db.StreamerStatus {
	return &db.StreamerStatus{
		TwitchUsername: "ovelhera",
		KickUsername:   "ovelhera",
		UpdatedAt:      time.Now(),
	}
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func timePtr(t time.Time) *time.Time { return &t }
