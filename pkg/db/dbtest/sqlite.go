// Package dbtest opens throwaway SQLite databases carrying the loyalty schema
// for repository and service tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const schema = `
CREATE TABLE restaurants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  settings TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE menu_items (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  cost_price TEXT NOT NULL DEFAULT '0',
  selling_price TEXT NOT NULL DEFAULT '0',
  loyalty_mode TEXT NOT NULL DEFAULT 'none',
  profit_allocation_percent INTEGER NOT NULL DEFAULT 0,
  fixed_points INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE customers (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  phone TEXT,
  total_points INTEGER NOT NULL DEFAULT 0 CHECK (total_points >= 0),
  lifetime_points INTEGER NOT NULL DEFAULT 0,
  current_tier TEXT NOT NULL DEFAULT 'bronze',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX idx_customers_restaurant_email ON customers (restaurant_id, email COLLATE NOCASE);
CREATE TABLE point_transactions (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  type TEXT NOT NULL,
  points INTEGER NOT NULL CHECK (points <> 0),
  description TEXT NOT NULL DEFAULT '',
  amount_spent TEXT,
  reward_id TEXT,
  branch_id TEXT,
  created_at DATETIME
);
CREATE TABLE rewards (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  points_required INTEGER NOT NULL CHECK (points_required > 0),
  min_tier TEXT NOT NULL DEFAULT 'bronze',
  total_available INTEGER,
  total_redeemed INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (total_available IS NULL OR total_redeemed <= total_available)
);
CREATE TABLE redemptions (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  reward_id TEXT NOT NULL,
  branch_id TEXT,
  points_used INTEGER NOT NULL,
  code TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  used_at DATETIME,
  expired_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);
`

// Open returns a private in-memory database with the loyalty schema applied.
// The pool is pinned to a single connection so concurrent transactions
// serialize the way row locks would on Postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(schema).Error)
	return conn
}
