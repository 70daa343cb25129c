package repository

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/database"
)

// Runs against a real postgres when TEST_DATABASE_DSN is set, for example
// "host=localhost user=postgres password=postgres dbname=custom_orders_test sslmode=disable".
func TestGormRepositoryContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := database.Open(dsn, config.DatabaseConfig{
		LogLevel:     "silent",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxLifetime:  60,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.RunMigrations(db))

	runContract(t, func(t *testing.T) Repository {
		require.NoError(t, db.Exec("TRUNCATE custom_order_items, custom_order_requests, custom_order_broadcasts, bridge_events, audit_logs").Error)
		return NewGormRepository(db)
	})
}
