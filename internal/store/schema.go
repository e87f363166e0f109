package store

import (
	"context"
	"fmt"
)

// Sessions deliberately have no foreign key to classes: the two are
// deleted by separate calls and may briefly (or permanently) diverge.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL DEFAULT '',
		program        TEXT NOT NULL,
		branch         TEXT NOT NULL,
		year           TEXT NOT NULL,
		institute_id   TEXT NOT NULL DEFAULT '',
		email          TEXT NOT NULL,
		contact_number TEXT NOT NULL DEFAULT '',
		dob            TEXT NOT NULL DEFAULT '',
		profile_image  TEXT NOT NULL DEFAULT '',
		created_at     BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS students_program_idx ON students (program)`,
	`CREATE INDEX IF NOT EXISTS students_email_idx ON students (lower(email))`,
	`CREATE TABLE IF NOT EXISTS classes (
		id               TEXT PRIMARY KEY,
		program          TEXT NOT NULL,
		branch           TEXT NOT NULL,
		year             TEXT NOT NULL,
		class_name       TEXT NOT NULL,
		created_by       TEXT NOT NULL DEFAULT '',
		created_by_email TEXT NOT NULL,
		created_at       BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS classes_creator_idx ON classes (created_by_email)`,
	`CREATE INDEX IF NOT EXISTS classes_program_idx ON classes (program)`,
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		class_id     TEXT NOT NULL,
		session_key  TEXT NOT NULL,
		session_date TEXT NOT NULL,
		session_time TEXT NOT NULL DEFAULT '',
		ts           BIGINT NOT NULL,
		class_name   TEXT NOT NULL DEFAULT '',
		marked_by    TEXT NOT NULL DEFAULT '',
		records      JSONB NOT NULL,
		PRIMARY KEY (class_id, session_key)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_sessions_ts_idx ON attendance_sessions (class_id, ts)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		email         TEXT PRIMARY KEY,
		uid           TEXT NOT NULL,
		password_hash BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		subject    TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

// Migrate creates the schema. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
