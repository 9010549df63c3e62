package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STREAMER_TWITCH_USERNAME", "")
	t.Setenv("STREAMER_KICK_USERNAME", "")
	t.Setenv("KICK_API_BASE_URL", "")
	t.Setenv("KICK_STALE_AFTER", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.StreamerTwitchUsername == "" {
		t.Error("expected default twitch username, got empty")
	}
	if cfg.StreamerKickUsername != cfg.StreamerTwitchUsername {
		t.Errorf("kick username = %q, want twitch default %q", cfg.StreamerKickUsername, cfg.StreamerTwitchUsername)
	}
	if cfg.KickAPIBaseURL != "https://kick.com/api/v2" {
		t.Errorf("kick base url = %q", cfg.KickAPIBaseURL)
	}
	if cfg.KickStaleAfter != 2*time.Minute {
		t.Errorf("stale after = %v, want 2m", cfg.KickStaleAfter)
	}
	if cfg.KickHTTPTimeout != 5*time.Second {
		t.Errorf("kick timeout = %v, want 5s", cfg.KickHTTPTimeout)
	}
}

func TestLoadLowercasesUsernames(t *testing.T) {
	t.Setenv("STREAMER_TWITCH_USERNAME", "Ovelhera")
	t.Setenv("STREAMER_KICK_USERNAME", "OvelheraKick")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.StreamerTwitchUsername != "ovelhera" {
		t.Errorf("twitch username = %q, want lowercase", cfg.StreamerTwitchUsername)
	}
	if cfg.StreamerKickUsername != "ovelherakick" {
		t.Errorf("kick username = %q, want lowercase", cfg.StreamerKickUsername)
	}
}

func TestLoadDurationOverride(t *testing.T) {
	t.Setenv("KICK_STALE_AFTER", "45s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.KickStaleAfter != 45*time.Second {
		t.Errorf("stale after = %v, want 45s", cfg.KickStaleAfter)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("KICK_STALE_AFTER", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestValidateWebhookReady(t *testing.T) {
	t.Setenv("TWITCH_WEBHOOK_SECRET", "")
	cfg, _ := Load()
	if err := cfg.ValidateWebhookReady(); err == nil {
		t.Error("expected error without webhook secret")
	}

	t.Setenv("TWITCH_WEBHOOK_SECRET", "s3cr3t")
	cfg, _ = Load()
	if err := cfg.ValidateWebhookReady(); err != nil {
		t.Errorf("expected valid webhook config, got %v", err)
	}
}

func TestValidateReconcileReady(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "")
	t.Setenv("TWITCH_CLIENT_SECRET", "")
	cfg, _ := Load()
	if err := cfg.ValidateReconcileReady(); err == nil {
		t.Error("expected error without helix creds")
	}

	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ = Load()
	if err := cfg.ValidateReconcileReady(); err != nil {
		t.Errorf("expected valid reconcile config, got %v", err)
	}
}
