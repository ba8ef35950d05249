// Package store provides durable persistence for a table's event log and
// snapshots, selectable between Postgres and SQLite at startup the same way
// the auth and ledger services choose a backend.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"pokertable/events"
	"pokertable/holdem"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// backendFromEnv mirrors the auth service's AUTH_MODE switch: STORE_BACKEND
// selects sqlite by default so a fresh checkout runs without any external
// service.
func backendFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	switch raw {
	case "", BackendSQLite, "sqlite3":
		return BackendSQLite
	case BackendPostgres, "postgresql", "pq":
		return BackendPostgres
	default:
		return raw
	}
}

// Store persists events and snapshots for every table sharing one
// underlying *sql.DB. It implements dispatch.EventSink.
type Store struct {
	db      *sql.DB
	backend string
}

// NewFromEnv opens the backend named by STORE_BACKEND (sqlite by default),
// using SQLITE_PATH or DATABASE_URL respectively, and ensures its schema.
func NewFromEnv() (*Store, error) {
	switch backendFromEnv() {
	case BackendPostgres:
		dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if dsn == "" {
			return nil, fmt.Errorf("store: DATABASE_URL is required for the postgres backend")
		}
		return Open(BackendPostgres, dsn)
	case BackendSQLite:
		path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
		if path == "" {
			path = "pokertable.db"
		}
		return Open(BackendSQLite, path)
	default:
		return nil, fmt.Errorf("store: invalid STORE_BACKEND %q (supported: %s, %s)", backendFromEnv(), BackendSQLite, BackendPostgres)
	}
}

// Open connects to backend (BackendSQLite or BackendPostgres) at dsn and
// ensures the event_log and table_snapshots tables exist.
func Open(backend, dsn string) (*Store, error) {
	driver := "sqlite"
	if backend == BackendPostgres {
		driver = "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if backend == BackendSQLite {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, backend: backend}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	eventLogDDL := `
CREATE TABLE IF NOT EXISTS event_log (
	table_id        TEXT NOT NULL,
	sequence_number BIGINT NOT NULL,
	hand_number     BIGINT NOT NULL,
	kind            TEXT NOT NULL,
	occurred_at     TIMESTAMP NOT NULL,
	payload         TEXT NOT NULL,
	PRIMARY KEY (table_id, sequence_number)
)`
	snapshotDDL := `
CREATE TABLE IF NOT EXISTS table_snapshots (
	table_id        TEXT PRIMARY KEY,
	sequence_number BIGINT NOT NULL,
	state           TEXT NOT NULL,
	saved_at        TIMESTAMP NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, eventLogDDL); err != nil {
		return fmt.Errorf("store: creating event_log: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, snapshotDDL); err != nil {
		return fmt.Errorf("store: creating table_snapshots: %w", err)
	}
	return nil
}

// Append durably stores evs in order. It is called synchronously before a
// mutating command is acknowledged, per the write-ahead persistence rule.
func (s *Store) Append(ctx context.Context, tableID string, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := s.placeholder(`INSERT INTO event_log (table_id, sequence_number, hand_number, kind, occurred_at, payload) VALUES (%s, %s, %s, %s, %s, %s)`, 6)
	for _, ev := range evs {
		if _, err := tx.ExecContext(ctx, stmt, tableID, ev.SequenceNumber, ev.HandNumber, string(ev.Kind), ev.Timestamp, string(ev.Payload)); err != nil {
			return fmt.Errorf("store: appending event seq=%d: %w", ev.SequenceNumber, err)
		}
	}
	return tx.Commit()
}

// Snapshot overwrites the durable snapshot row for tableID, tagged with the
// sequence number it was taken at so EventsSince can resume event replay from the
// right point if the log is later truncated.
func (s *Store) Snapshot(ctx context.Context, tableID string, seq uint64, snap holdem.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	stmt := s.upsertSnapshotStatement()
	_, err = s.db.ExecContext(ctx, stmt, tableID, seq, string(raw), time.Now().UTC())
	return err
}

func (s *Store) upsertSnapshotStatement() string {
	if s.backend == BackendPostgres {
		return `
INSERT INTO table_snapshots (table_id, sequence_number, state, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (table_id) DO UPDATE SET sequence_number = $2, state = $3, saved_at = $4`
	}
	return `
INSERT INTO table_snapshots (table_id, sequence_number, state, saved_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (table_id) DO UPDATE SET sequence_number = excluded.sequence_number, state = excluded.state, saved_at = excluded.saved_at`
}

// LoadSnapshot returns the most recently saved snapshot for tableID and the
// sequence number it was taken at, or ok=false if none exists yet.
func (s *Store) LoadSnapshot(ctx context.Context, tableID string) (snap holdem.Snapshot, seq uint64, ok bool, err error) {
	stmt := s.placeholder(`SELECT sequence_number, state FROM table_snapshots WHERE table_id = %s`, 1)
	var raw string
	row := s.db.QueryRowContext(ctx, stmt, tableID)
	if err := row.Scan(&seq, &raw); err != nil {
		if err == sql.ErrNoRows {
			return holdem.Snapshot{}, 0, false, nil
		}
		return holdem.Snapshot{}, 0, false, err
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return holdem.Snapshot{}, 0, false, err
	}
	return snap, seq, true, nil
}

// EventsSince returns every event for tableID with SequenceNumber > since,
// in ascending order, for subscriber replay after reconnect.
func (s *Store) EventsSince(ctx context.Context, tableID string, since uint64) ([]events.Event, error) {
	stmt := s.placeholder(`
SELECT sequence_number, hand_number, kind, occurred_at, payload
FROM event_log WHERE table_id = %s AND sequence_number > %s
ORDER BY sequence_number ASC`, 2)
	rows, err := s.db.QueryContext(ctx, stmt, tableID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var ev events.Event
		var payload string
		if err := rows.Scan(&ev.SequenceNumber, &ev.HandNumber, &ev.Kind, &ev.Timestamp, &payload); err != nil {
			return nil, err
		}
		ev.TableID = tableID
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TableIDs returns every table that has ever had an event appended for it,
// for the startup bootstrap that rehydrates each one into a live Actor.
func (s *Store) TableIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT table_id FROM event_log`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// placeholder rewrites a query with %s placeholders for the active
// backend's parameter syntax ($1.. for postgres, ? for sqlite).
func (s *Store) placeholder(query string, n int) string {
	if s.backend != BackendPostgres {
		return fmt.Sprintf(query, repeatQuestionMarks(n)...)
	}
	args := make([]any, n)
	for i := range args {
		args[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(query, args...)
}

func repeatQuestionMarks(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = "?"
	}
	return out
}

func (s *Store) Close() error { return s.db.Close() }
