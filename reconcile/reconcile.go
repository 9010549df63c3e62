// Package reconcile runs a periodic Helix poll as a safety net for the webhook
// path: if an EventSub delivery is lost (platform outage, secret rotation
// mid-flight), Twitch state would otherwise stay stale indefinitely.
package reconcile

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/rastaflix/livesync/config"
	"github.com/rastaflix/livesync/db"
	"github.com/rastaflix/livesync/telemetry"
	"github.com/rastaflix/livesync/twitchapi"
)

const thumbnailWidth, thumbnailHeight = 1280, 720

// StartTwitchReconcileJob polls Helix for the tracked channel on a long interval
// and writes the full Twitch block through the same store path the webhook uses.
// Last-write-wins with the webhook is fine: both derive from upstream truth.
func StartTwitchReconcileJob(ctx context.Context, dbc *sql.DB, cfg *config.Config, helix *twitchapi.HelixClient) {
	interval := cfg.TwitchReconcileInterval
	if interval <= 0 {
		slog.Info("twitch reconcile job disabled")
		return
	}
	slog.Info("twitch reconcile job starting",
		slog.Duration("interval", interval),
		slog.String("login", cfg.StreamerTwitchUsername))
	// Kick an immediate run so we don't wait a full interval after boot.
	if err := reconcileOnce(ctx, dbc, cfg, helix); err != nil {
		slog.Warn("reconcile once", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("twitch reconcile job stopped")
			return
		case <-ticker.C:
			if err := reconcileOnce(ctx, dbc, cfg, helix); err != nil {
				slog.Warn("reconcile once", slog.Any("err", err))
			}
		}
	}
}

func reconcileOnce(ctx context.Context, dbc *sql.DB, cfg *config.Config, helix *twitchapi.HelixClient) error {
	telemetry.ReconcileCycles.Inc()
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	login := cfg.StreamerTwitchUsername
	stream, err := helix.GetStream(cctx, login)
	if err != nil {
		return err
	}
	if stream == nil {
		if err := db.SetTwitchOffline(cctx, dbc, login); err != nil {
			return err
		}
		telemetry.SetTwitchLive(false)
		slog.Debug("reconcile: channel offline", slog.String("login", login))
		return nil
	}

	thumb := stream.ResolveThumbnail(thumbnailWidth, thumbnailHeight)
	block := db.TwitchBlock{
		IsLive:       true,
		UserID:       &stream.UserID,
		StreamTitle:  &stream.Title,
		ViewerCount:  &stream.ViewerCount,
		ThumbnailURL: &thumb,
	}
	if err := db.UpdateTwitchBlock(cctx, dbc, login, block); err != nil {
		return err
	}
	telemetry.SetTwitchLive(true)
	slog.Info("reconcile: channel live",
		slog.String("login", login),
		slog.String("title", stream.Title),
		slog.Int("viewers", stream.ViewerCount))
	return nil
}
