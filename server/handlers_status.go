package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rastaflix/livesync/db"
	"github.com/rastaflix/livesync/kickapi"
	"github.com/rastaflix/livesync/telemetry"
)

// kickWriteTimeout bounds the detached persistence of a refreshed Kick block.
const kickWriteTimeout = 10 * time.Second

// liveStatusResponse is the flat merged snapshot the front end polls.
type liveStatusResponse struct {
	TwitchUsername     string  `json:"twitch_username"`
	KickUsername       string  `json:"kick_username"`
	IsLiveTwitch       bool    `json:"is_live_twitch"`
	IsLiveKick         bool    `json:"is_live_kick"`
	TwitchStreamTitle  *string `json:"twitch_stream_title"`
	KickStreamTitle    *string `json:"kick_stream_title"`
	TwitchViewerCount  *int    `json:"twitch_viewer_count"`
	KickViewerCount    *int    `json:"kick_viewer_count"`
	TwitchThumbnailURL *string `json:"twitch_thumbnail_url"`
	KickThumbnailURL   *string `json:"kick_thumbnail_url"`
}

// HandleLiveStatus serves GET /live-status: the Twitch block comes straight from
// the store (webhooks keep it current), the Kick block is lazily refreshed when
// older than the staleness threshold. Outbound call volume is therefore bounded
// by the threshold, not by how often the front end polls.
func (h *Handlers) HandleLiveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.store.GetStreamerStatus(r.Context(), h.cfg.StreamerTwitchUsername)
	if errors.Is(err, db.ErrStatusNotFound) {
		writeError(w, http.StatusNotFound, "streamer status not provisioned")
		return
	}
	if err != nil {
		slog.Error("status read failed", slog.Any("err", err), slog.String("component", "live_status"))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	kickUsername := status.KickUsername
	if kickUsername == "" {
		kickUsername = h.cfg.StreamerKickUsername
	}

	resp := liveStatusResponse{
		TwitchUsername:     status.TwitchUsername,
		KickUsername:       kickUsername,
		IsLiveTwitch:       status.IsLiveTwitch,
		IsLiveKick:         status.IsLiveKick,
		TwitchStreamTitle:  status.TwitchStreamTitle,
		KickStreamTitle:    status.KickStreamTitle,
		TwitchViewerCount:  status.TwitchViewerCount,
		KickViewerCount:    status.KickViewerCount,
		TwitchThumbnailURL: status.TwitchThumbnailURL,
		KickThumbnailURL:   status.KickThumbnailURL,
	}

	// A missing last_kick_update means the row has never been refreshed: always stale.
	stale := status.LastKickUpdate == nil || time.Since(*status.LastKickUpdate) >= h.cfg.KickStaleAfter
	if !stale {
		telemetry.KickCacheHits.Inc()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	block, ok := h.pollKick(r.Context(), kickUsername)
	if ok {
		resp.IsLiveKick = block.IsLive
		resp.KickStreamTitle = block.StreamTitle
		resp.KickViewerCount = block.ViewerCount
		resp.KickThumbnailURL = block.ThumbnailURL
		// Detached write: the response must not wait on the store, but failures
		// still get logged and counted.
		h.persistKickAsync(kickUsername, block)
	}
	// On transport failure (!ok) the cached block already in resp is served as-is.
	writeJSON(w, http.StatusOK, resp)
}

// HandleCheckKickStatus serves GET /check-kick-status: an on-demand refresh with
// no staleness gate. The write is synchronous here; callers asked for a refresh
// and get the persisted result.
func (h *Handlers) HandleCheckKickStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.store.GetStreamerStatus(r.Context(), h.cfg.StreamerTwitchUsername)
	if err != nil {
		slog.Error("status read failed", slog.Any("err", err), slog.String("component", "kick_check"))
		if errors.Is(err, db.ErrStatusNotFound) {
			writeError(w, http.StatusInternalServerError, "streamer status not provisioned")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	kickUsername := status.KickUsername
	if kickUsername == "" {
		kickUsername = h.cfg.StreamerKickUsername
	}

	telemetry.KickPolls.Inc()
	ch, err := h.kick.GetChannel(r.Context(), kickUsername)
	var statusErr *kickapi.StatusError
	switch {
	case errors.As(err, &statusErr):
		// Broken or renamed channel: persist the offline state so the lazy path
		// doesn't re-poll for the next staleness window.
		offline := db.KickBlock{IsLive: false}
		if werr := h.store.UpdateKickBlock(r.Context(), kickUsername, offline); werr != nil {
			telemetry.StoreWriteFailures.Inc()
			slog.Error("kick status write failed", slog.Any("err", werr), slog.String("component", "kick_check"))
		}
		telemetry.SetKickLive(false)
		writeJSON(w, http.StatusOK, map[string]any{
			"kick_username": kickUsername,
			"is_live_kick":  false,
			"message":       "kick channel unavailable, marked offline",
		})
	case err != nil:
		telemetry.KickPollErrors.Inc()
		slog.Error("kick poll failed", slog.Any("err", err), slog.String("component", "kick_check"))
		writeError(w, http.StatusInternalServerError, "failed to reach kick api")
	default:
		block := kickBlockFromChannel(ch)
		if werr := h.store.UpdateKickBlock(r.Context(), kickUsername, block); werr != nil {
			telemetry.StoreWriteFailures.Inc()
			slog.Error("kick status write failed", slog.Any("err", werr), slog.String("component", "kick_check"))
			writeError(w, http.StatusInternalServerError, "failed to persist status")
			return
		}
		telemetry.SetKickLive(block.IsLive)
		writeJSON(w, http.StatusOK, map[string]any{
			"kick_username":      kickUsername,
			"is_live_kick":       block.IsLive,
			"kick_stream_title":  block.StreamTitle,
			"kick_viewer_count":  block.ViewerCount,
			"kick_thumbnail_url": block.ThumbnailURL,
		})
	}
}

// pollKick fetches current Kick channel state. The bool reports whether a usable
// result came back: non-2xx responses count (they negative-cache as offline),
// transport failures don't.
func (h *Handlers) pollKick(ctx context.Context, kickUsername string) (db.KickBlock, bool) {
	telemetry.KickPolls.Inc()
	var (
		ch  *kickapi.Channel
		err error
	)
	telemetry.TimeFunc(telemetry.KickPollDuration, func() {
		ch, err = h.kick.GetChannel(ctx, kickUsername)
	})

	var statusErr *kickapi.StatusError
	if errors.As(err, &statusErr) {
		slog.Warn("kick channel unavailable, caching offline",
			slog.Int("status", statusErr.Code),
			slog.String("kick_username", kickUsername),
			slog.String("component", "live_status"))
		telemetry.SetKickLive(false)
		return db.KickBlock{IsLive: false}, true
	}
	if err != nil {
		telemetry.KickPollErrors.Inc()
		slog.Error("kick poll failed, serving cached block",
			slog.Any("err", err),
			slog.String("kick_username", kickUsername),
			slog.String("component", "live_status"))
		return db.KickBlock{}, false
	}

	block := kickBlockFromChannel(ch)
	telemetry.SetKickLive(block.IsLive)
	return block, true
}

// persistKickAsync hands the refreshed block to a detached write so a slow store
// cannot add latency to the status endpoint. context.WithoutCancel keeps the
// write alive past the originating request.
func (h *Handlers) persistKickAsync(kickUsername string, b db.KickBlock) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), kickWriteTimeout)
	go func() {
		defer cancel()
		if err := h.store.UpdateKickBlock(ctx, kickUsername, b); err != nil {
			telemetry.StoreWriteFailures.Inc()
			slog.Error("kick status write failed",
				slog.Any("err", err),
				slog.String("kick_username", kickUsername),
				slog.String("component", "live_status"))
		}
	}()
}

func kickBlockFromChannel(ch *kickapi.Channel) db.KickBlock {
	if ch.Livestream == nil {
		return db.KickBlock{IsLive: false}
	}
	return db.KickBlock{
		IsLive:       true,
		StreamTitle:  ch.Livestream.SessionTitle,
		ViewerCount:  ch.Livestream.ViewerCount,
		ThumbnailURL: ch.Livestream.ThumbnailURL(),
	}
}
