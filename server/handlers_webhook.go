package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rastaflix/livesync/db"
	"github.com/rastaflix/livesync/eventsub"
	"github.com/rastaflix/livesync/telemetry"
)

// maxWebhookBody caps the request body read. EventSub notifications are tiny;
// anything near this size is not a legitimate message.
const maxWebhookBody = 1 << 20

// HandleTwitchWebhook serves /webhooks/twitch. GET is a liveness probe for uptime
// checks; POST is the EventSub ingestion path.
func (h *Handlers) HandleTwitchWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "twitch-webhook"})
	case http.MethodPost:
		h.handleWebhookPost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleWebhookPost(w http.ResponseWriter, r *http.Request) {
	secret := h.cfg.TwitchWebhookSecret
	if secret == "" {
		// Cannot verify anything without a secret; refuse rather than process unsigned input.
		slog.Error("TWITCH_WEBHOOK_SECRET not configured", slog.String("component", "webhook"))
		writeError(w, http.StatusInternalServerError, "webhook secret not configured")
		return
	}

	// The signature covers the exact bytes on the wire, so the body must be read
	// raw before any JSON decoding.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	msgID := r.Header.Get(eventsub.HeaderMessageID)
	msgTimestamp := r.Header.Get(eventsub.HeaderMessageTimestamp)
	msgSignature := r.Header.Get(eventsub.HeaderMessageSignature)
	msgType := r.Header.Get(eventsub.HeaderMessageType)
	if msgID == "" || msgTimestamp == "" || msgSignature == "" || msgType == "" {
		telemetry.WebhookRejected.Inc()
		writeError(w, http.StatusBadRequest, "missing eventsub headers")
		return
	}

	if !eventsub.VerifySignature(secret, msgID, msgTimestamp, msgSignature, body) {
		telemetry.WebhookRejected.Inc()
		slog.Warn("webhook signature mismatch",
			slog.String("message_id", msgID),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("component", "webhook"))
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	switch msgType {
	case eventsub.MessageTypeVerification:
		msg, err := eventsub.ParseMessage(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		telemetry.WebhookVerifications.Inc()
		slog.Info("answering eventsub challenge", slog.String("message_id", msgID), slog.String("component", "webhook"))
		// Twitch expects the raw challenge string back, not JSON.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(msg.Challenge))

	case eventsub.MessageTypeNotification:
		msg, err := eventsub.ParseMessage(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		h.dispatchNotification(w, r, msg)

	case eventsub.MessageTypeRevocation:
		msg, _ := eventsub.ParseMessage(body)
		subType, subStatus := "", ""
		if msg != nil {
			subType, subStatus = msg.Subscription.Type, msg.Subscription.Status
		}
		slog.Warn("eventsub subscription revoked",
			slog.String("type", subType),
			slog.String("status", subStatus),
			slog.String("component", "webhook"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		// Unknown message types are acknowledged so Twitch does not retry forever.
		slog.Info("ignoring unknown eventsub message type",
			slog.String("message_type", msgType),
			slog.String("component", "webhook"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// dispatchNotification applies a verified notification to the status store.
// A store write failure returns 500 so EventSub's own redelivery recovers the
// notification instead of the state update being silently dropped.
func (h *Handlers) dispatchNotification(w http.ResponseWriter, r *http.Request, msg *eventsub.Message) {
	subType := msg.Subscription.Type
	switch subType {
	case eventsub.SubStreamOnline, eventsub.SubStreamOffline, eventsub.SubChannelUpdate:
	default:
		slog.Info("ignoring unhandled subscription type",
			slog.String("type", subType),
			slog.String("component", "webhook"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	ev, err := msg.ParseStreamEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	login := strings.ToLower(ev.BroadcasterUserLogin)
	log := telemetry.LoggerWithCorr(r.Context()).With(
		slog.String("type", subType),
		slog.String("login", login),
		slog.String("component", "webhook"))

	var storeErr error
	switch subType {
	case eventsub.SubStreamOnline:
		storeErr = h.store.SetTwitchLive(r.Context(), login, ev.BroadcasterUserID, ev.Title)
		if storeErr == nil {
			telemetry.SetTwitchLive(true)
		}
	case eventsub.SubStreamOffline:
		storeErr = h.store.SetTwitchOffline(r.Context(), login)
		if storeErr == nil {
			telemetry.SetTwitchLive(false)
		}
	case eventsub.SubChannelUpdate:
		storeErr = h.store.SetTwitchTitle(r.Context(), login, ev.Title)
	}

	switch {
	case errors.Is(storeErr, db.ErrStatusNotFound):
		// Notification for a channel we don't track; nothing to update.
		log.Warn("notification for untracked channel")
	case storeErr != nil:
		telemetry.StoreWriteFailures.Inc()
		log.Error("status write failed", slog.Any("err", storeErr))
		writeError(w, http.StatusInternalServerError, "failed to persist status")
		return
	default:
		log.Info("status updated")
	}

	telemetry.WebhookNotifications.Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
