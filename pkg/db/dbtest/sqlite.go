// Package dbtest opens throwaway sqlite databases carrying the onboarding schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const schema = `
CREATE TABLE IF NOT EXISTS worker_assignment_requests (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  request_number TEXT NOT NULL,
  job_title TEXT NOT NULL,
  position_count INTEGER NOT NULL DEFAULT 1,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'open',
  contact_name TEXT,
  contact_email TEXT,
  contact_phone TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS candidate_matches (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  request_id TEXT NOT NULL,
  worker_id TEXT NOT NULL,
  status TEXT NOT NULL,
  attempt_number INTEGER NOT NULL DEFAULT 1,
  application_deadline DATETIME NOT NULL,
  assignment_onboarding_deadline DATETIME NOT NULL,
  claim_token TEXT,
  claimed_at DATETIME,
  created_at DATETIME NOT NULL,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS candidate_matches_live_request_idx
  ON candidate_matches (request_id)
  WHERE status IN ('proposed', 'applied', 'accepted', 'onboarding', 'active');
CREATE TABLE IF NOT EXISTS candidate_suggestions (
  id TEXT PRIMARY KEY,
  request_id TEXT NOT NULL,
  worker_id TEXT NOT NULL,
  score NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'suggested',
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS reassignment_events (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  request_id TEXT NOT NULL,
  expired_match_id TEXT NOT NULL UNIQUE,
  new_match_id TEXT,
  reason TEXT NOT NULL,
  occurred_at DATETIME NOT NULL
);
`

// Open returns an isolated in-memory database with the schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:onboarding_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.Exec(schema).Error; err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
