package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rastaflix/livesync/db"
)

// SetupTestDB creates a test database connection, runs migrations, and seeds the
// tracked streamer row. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T, twitchUsername, kickUsername string) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.ExecContext(ctx, `DELETE FROM streamer_status`); err != nil {
		database.Close()
		t.Fatalf("failed to reset streamer_status: %v", err)
	}
	if err := db.SeedStreamerStatus(ctx, database, twitchUsername, kickUsername); err != nil {
		database.Close()
		t.Fatalf("failed to seed streamer status: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
