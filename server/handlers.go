// Package server exposes the HTTP API: the EventSub webhook receiver, the lazy
// live-status poller, health probes, and metrics.
package server

import (
	"context"
	"database/sql"

	"github.com/rastaflix/livesync/config"
	"github.com/rastaflix/livesync/db"
	"github.com/rastaflix/livesync/kickapi"
)

// StatusStore is the narrow persistence facade both entry points go through.
// db.StatusStoreAdapter is the production implementation.
type StatusStore interface {
	GetStreamerStatus(ctx context.Context, twitchUsername string) (*db.StreamerStatus, error)
	SetTwitchLive(ctx context.Context, twitchUsername, userID string, title *string) error
	SetTwitchOffline(ctx context.Context, twitchUsername string) error
	SetTwitchTitle(ctx context.Context, twitchUsername string, title *string) error
	UpdateKickBlock(ctx context.Context, kickUsername string, b db.KickBlock) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx   context.Context
	db    *sql.DB
	cfg   *config.Config
	store StatusStore
	kick  *kickapi.Client
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, database *sql.DB, cfg *config.Config, kick *kickapi.Client) *Handlers {
	return &Handlers{
		ctx:   ctx,
		db:    database,
		cfg:   cfg,
		store: &db.StatusStoreAdapter{DB: database},
		kick:  kick,
	}
}
