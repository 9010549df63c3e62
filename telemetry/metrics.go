// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	WebhookNotifications prometheus.Counter
	WebhookRejected      prometheus.Counter
	WebhookVerifications prometheus.Counter
	KickPolls            prometheus.Counter
	KickPollErrors       prometheus.Counter
	KickCacheHits        prometheus.Counter
	StoreWriteFailures   prometheus.Counter
	ReconcileCycles      prometheus.Counter

	// Histograms (seconds)
	KickPollDuration prometheus.Observer

	// Gauges (1=live, 0=offline)
	TwitchLiveGauge prometheus.Gauge
	KickLiveGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		WebhookNotifications = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_webhook_notifications_total", Help: "Number of verified EventSub notifications processed"})
		WebhookRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_webhook_rejected_total", Help: "Number of webhook requests rejected (missing headers or bad signature)"})
		WebhookVerifications = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_webhook_verifications_total", Help: "Number of EventSub challenge handshakes answered"})
		KickPolls = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_kick_polls_total", Help: "Number of outbound Kick channel API calls"})
		KickPollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_kick_poll_errors_total", Help: "Number of Kick polls that failed at the transport level"})
		KickCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_kick_cache_hits_total", Help: "Number of status requests served from the cached Kick block"})
		StoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_store_write_failures_total", Help: "Number of failed streamer status writes"})
		ReconcileCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "livesync_reconcile_cycles_total", Help: "Number of Twitch reconcile job cycles"})
		KickPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livesync_kick_poll_duration_seconds", Help: "Kick channel poll duration seconds", Buckets: prometheus.DefBuckets})
		TwitchLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livesync_twitch_live", Help: "Twitch channel live=1 offline=0"})
		KickLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livesync_kick_live", Help: "Kick channel live=1 offline=0"})
	})
}

// SetTwitchLive sets the Twitch live gauge.
func SetTwitchLive(live bool) { setGauge(TwitchLiveGauge, live) }

// SetKickLive sets the Kick live gauge.
func SetKickLive(live bool) { setGauge(KickLiveGauge, live) }

func setGauge(g prometheus.Gauge, on bool) {
	if g == nil {
		return
	}
	if on {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
