package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the durable local state of a storefront client: the availability
// map, the cart, the catalog, the pending donation info and the audit log.
type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS card_availability (
  card_id     TEXT PRIMARY KEY,
  available   INTEGER NOT NULL CHECK (available IN (0,1)),
  updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS cart_items (
  card_id   TEXT PRIMARY KEY,
  position  INTEGER NOT NULL,
  name      TEXT NOT NULL,
  amount    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cart_meta (
  id         INTEGER PRIMARY KEY CHECK (id = 1),
  voluntary  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cards (
  card_id       TEXT PRIMARY KEY,
  backend_ref   TEXT,
  display_name  TEXT NOT NULL,
  age_band      TEXT NOT NULL,
  category      TEXT,
  image_url     TEXT
);
CREATE TABLE IF NOT EXISTS donation_log (
  id           INTEGER PRIMARY KEY,
  occurred_at  TEXT NOT NULL,
  attempt_id   TEXT,
  card_ids     TEXT NOT NULL,
  action       TEXT NOT NULL,
  detail       TEXT
);
CREATE INDEX IF NOT EXISTS idx_donation_log_time ON donation_log(occurred_at);
CREATE TABLE IF NOT EXISTS pending_donations (
  id         INTEGER PRIMARY KEY,
  reference  TEXT NOT NULL UNIQUE,
  info       TEXT NOT NULL
);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}
