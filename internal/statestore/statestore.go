// Package statestore persists the durable per-check state that survives
// between prober invocations: pending deferred-check records and incident
// tracking records. Each table is keyed by check id, so at most one record
// of either kind can exist per check.
package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending (
    check_id     TEXT PRIMARY KEY,
    initiated_at TEXT NOT NULL,
    payload      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS incidents (
    check_id             TEXT    PRIMARY KEY,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    reported             INTEGER NOT NULL DEFAULT 0,
    last_timestamp       TEXT    NOT NULL DEFAULT ''
);
`

// PendingState correlates a deferred check's initiate phase with a later
// invocation's verify phase. Payload is opaque to everything except the
// check kind that wrote it.
type PendingState struct {
	CheckID     string
	InitiatedAt time.Time
	Payload     []byte
}

// IncidentState tracks one check's position in the incident state machine.
type IncidentState struct {
	CheckID             string
	ConsecutiveFailures int
	Reported            bool
	LastTimestamp       time.Time
}

// DB wraps the SQLite state database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the state database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// LoadPending returns the pending state for a check, or nil if none exists.
func (d *DB) LoadPending(ctx context.Context, checkID string) (*PendingState, error) {
	var (
		st          PendingState
		initiatedAt string
		payload     string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT check_id, initiated_at, payload FROM pending WHERE check_id = ?`,
		checkID,
	).Scan(&st.CheckID, &initiatedAt, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending state for %q: %w", checkID, err)
	}
	t, err := parseTime(initiatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing initiated_at for %q: %w", checkID, err)
	}
	st.InitiatedAt = t
	st.Payload = []byte(payload)
	return &st, nil
}

// SavePending inserts or replaces the pending state for st.CheckID.
func (d *DB) SavePending(ctx context.Context, st PendingState) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pending (check_id, initiated_at, payload) VALUES (?, ?, ?)`,
		st.CheckID,
		st.InitiatedAt.UTC().Format(time.RFC3339Nano),
		string(st.Payload),
	)
	if err != nil {
		return fmt.Errorf("saving pending state for %q: %w", st.CheckID, err)
	}
	return nil
}

// DeletePending removes the pending state for a check. Deleting a check with
// no pending state is not an error.
func (d *DB) DeletePending(ctx context.Context, checkID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM pending WHERE check_id = ?`, checkID)
	if err != nil {
		return fmt.Errorf("deleting pending state for %q: %w", checkID, err)
	}
	return nil
}

// LoadIncidents returns the incident state for every check that has one,
// keyed by check id.
func (d *DB) LoadIncidents(ctx context.Context) (map[string]IncidentState, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT check_id, consecutive_failures, reported, last_timestamp FROM incidents`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying incident states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]IncidentState)
	for rows.Next() {
		var (
			st       IncidentState
			reported int
			lastTS   string
		)
		if err := rows.Scan(&st.CheckID, &st.ConsecutiveFailures, &reported, &lastTS); err != nil {
			return nil, fmt.Errorf("scanning incident state: %w", err)
		}
		st.Reported = reported != 0
		if lastTS != "" {
			t, err := parseTime(lastTS)
			if err != nil {
				return nil, fmt.Errorf("parsing last_timestamp for %q: %w", st.CheckID, err)
			}
			st.LastTimestamp = t
		}
		states[st.CheckID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incident states: %w", err)
	}
	return states, nil
}

// SaveIncident inserts or replaces the incident state for st.CheckID.
func (d *DB) SaveIncident(ctx context.Context, st IncidentState) error {
	reported := 0
	if st.Reported {
		reported = 1
	}
	lastTS := ""
	if !st.LastTimestamp.IsZero() {
		lastTS = st.LastTimestamp.UTC().Format(time.RFC3339Nano)
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO incidents (check_id, consecutive_failures, reported, last_timestamp) VALUES (?, ?, ?, ?)`,
		st.CheckID, st.ConsecutiveFailures, reported, lastTS,
	)
	if err != nil {
		return fmt.Errorf("saving incident state for %q: %w", st.CheckID, err)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t, nil
}
