package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrStatusNotFound is returned when no streamer_status row matches the given key.
var ErrStatusNotFound = errors.New("streamer status not found")

// StreamerStatus is the single persisted record holding the last-known live state
// for both platforms. Nullable columns map to pointer fields.
type StreamerStatus struct {
	TwitchUsername     string
	KickUsername       string
	TwitchUserID       *string
	IsLiveTwitch       bool
	IsLiveKick         bool
	TwitchStreamTitle  *string
	KickStreamTitle    *string
	TwitchViewerCount  *int
	KickViewerCount    *int
	TwitchThumbnailURL *string
	KickThumbnailURL   *string
	LastTwitchUpdate   *time.Time
	LastKickUpdate     *time.Time
	UpdatedAt          time.Time
}

// KickBlock is the full set of Kick-side fields written atomically by a poll refresh.
// An offline block (IsLive=false, everything else nil) is also how upstream failures
// are negative-cached.
type KickBlock struct {
	IsLive       bool
	StreamTitle  *string
	ViewerCount  *int
	ThumbnailURL *string
}

// TwitchBlock is the full set of Twitch-side fields, written by the reconcile job
// which has complete stream data from Helix. The webhook path uses the narrower
// transition helpers below instead, which only touch the fields the event carries.
type TwitchBlock struct {
	IsLive       bool
	UserID       *string
	StreamTitle  *string
	ViewerCount  *int
	ThumbnailURL *string
}

// GetStreamerStatus reads the status row keyed by twitch username (case-insensitive).
func GetStreamerStatus(ctx context.Context, dbx *sql.DB, twitchUsername string) (*StreamerStatus, error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT twitch_username, kick_username, twitch_user_id,
		        is_live_twitch, is_live_kick,
		        twitch_stream_title, kick_stream_title,
		        twitch_viewer_count, kick_viewer_count,
		        twitch_thumbnail_url, kick_thumbnail_url,
		        last_twitch_update, last_kick_update, updated_at
		   FROM streamer_status
		  WHERE LOWER(twitch_username) = LOWER($1)`, twitchUsername)
	var s StreamerStatus
	err := row.Scan(&s.TwitchUsername, &s.KickUsername, &s.TwitchUserID,
		&s.IsLiveTwitch, &s.IsLiveKick,
		&s.TwitchStreamTitle, &s.KickStreamTitle,
		&s.TwitchViewerCount, &s.KickViewerCount,
		&s.TwitchThumbnailURL, &s.KickThumbnailURL,
		&s.LastTwitchUpdate, &s.LastKickUpdate, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read streamer status: %w", err)
	}
	return &s, nil
}

// SetTwitchLive marks the channel live. Only the fields a stream.online event carries
// are touched: viewer count and thumbnail keep whatever value they had.
func SetTwitchLive(ctx context.Context, dbx *sql.DB, twitchUsername, userID string, title *string) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE streamer_status
		    SET is_live_twitch = TRUE,
		        twitch_stream_title = $2,
		        twitch_user_id = $3,
		        last_twitch_update = NOW(),
		        updated_at = NOW()
		  WHERE LOWER(twitch_username) = LOWER($1)`, twitchUsername, title, userID)
	return checkUpdated(res, err)
}

// SetTwitchOffline marks the channel offline, clearing title and viewer count.
// The thumbnail is intentionally left in place so the front end can keep showing
// the last frame until the next online event replaces it.
func SetTwitchOffline(ctx context.Context, dbx *sql.DB, twitchUsername string) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE streamer_status
		    SET is_live_twitch = FALSE,
		        twitch_stream_title = NULL,
		        twitch_viewer_count = NULL,
		        last_twitch_update = NOW(),
		        updated_at = NOW()
		  WHERE LOWER(twitch_username) = LOWER($1)`, twitchUsername)
	return checkUpdated(res, err)
}

// SetTwitchTitle applies a channel.update metadata change without touching live state.
func SetTwitchTitle(ctx context.Context, dbx *sql.DB, twitchUsername string, title *string) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE streamer_status
		    SET twitch_stream_title = $2,
		        last_twitch_update = NOW(),
		        updated_at = NOW()
		  WHERE LOWER(twitch_username) = LOWER($1)`, twitchUsername, title)
	return checkUpdated(res, err)
}

// UpdateTwitchBlock writes the full Twitch block. Used by the Helix reconcile job,
// which unlike the webhook path has viewer count and thumbnail available.
func UpdateTwitchBlock(ctx context.Context, dbx *sql.DB, twitchUsername string, b TwitchBlock) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE streamer_status
		    SET is_live_twitch = $2,
		        twitch_user_id = COALESCE($3, twitch_user_id),
		        twitch_stream_title = $4,
		        twitch_viewer_count = $5,
		        twitch_thumbnail_url = COALESCE($6, twitch_thumbnail_url),
		        last_twitch_update = NOW(),
		        updated_at = NOW()
		  WHERE LOWER(twitch_username) = LOWER($1)`,
		twitchUsername, b.IsLive, b.UserID, b.StreamTitle, b.ViewerCount, b.ThumbnailURL)
	return checkUpdated(res, err)
}

// UpdateKickBlock writes the full Kick block keyed by kick username and stamps
// last_kick_update, which is what the lazy poller's staleness gate reads.
func UpdateKickBlock(ctx context.Context, dbx *sql.DB, kickUsername string, b KickBlock) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE streamer_status
		    SET is_live_kick = $2,
		        kick_stream_title = $3,
		        kick_viewer_count = $4,
		        kick_thumbnail_url = $5,
		        last_kick_update = NOW(),
		        updated_at = NOW()
		  WHERE LOWER(kick_username) = LOWER($1)`,
		kickUsername, b.IsLive, b.StreamTitle, b.ViewerCount, b.ThumbnailURL)
	return checkUpdated(res, err)
}

// SeedStreamerStatus provisions the single tracked row if it does not exist yet.
// Provisioning normally happens out-of-band; this exists for tests and first boot.
func SeedStreamerStatus(ctx context.Context, dbx *sql.DB, twitchUsername, kickUsername string) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO streamer_status (twitch_username, kick_username)
		 VALUES (LOWER($1), LOWER($2))
		 ON CONFLICT (twitch_username) DO NOTHING`, twitchUsername, kickUsername)
	return err
}

func checkUpdated(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update streamer status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update streamer status: %w", err)
	}
	if n == 0 {
		return ErrStatusNotFound
	}
	return nil
}

// StatusStoreAdapter implements server.StatusStore over *sql.DB and reuses the helpers here.
type StatusStoreAdapter struct{ DB *sql.DB }

func (a *StatusStoreAdapter) GetStreamerStatus(ctx context.Context, twitchUsername string) (*StreamerStatus, error) {
	return GetStreamerStatus(ctx, a.DB, twitchUsername)
}

func (a *StatusStoreAdapter) SetTwitchLive(ctx context.Context, twitchUsername, userID string, title *string) error {
	return SetTwitchLive(ctx, a.DB, twitchUsername, userID, title)
}

func (a *StatusStoreAdapter) SetTwitchOffline(ctx context.Context, twitchUsername string) error {
	return SetTwitchOffline(ctx, a.DB, twitchUsername)
}

func (a *StatusStoreAdapter) SetTwitchTitle(ctx context.Context, twitchUsername string, title *string) error {
	return SetTwitchTitle(ctx, a.DB, twitchUsername, title)
}

func (a *StatusStoreAdapter) UpdateKickBlock(ctx context.Context, kickUsername string, b KickBlock) error {
	return UpdateKickBlock(ctx, a.DB, kickUsername, b)
}
