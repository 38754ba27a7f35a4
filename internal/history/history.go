// Package history implements the optional append-only observation log
// (spec.md §3, supplemented from original_source's history.py), pruned by
// age and row count. A persistence failure degrades to a disabled-for-this-run
// no-op rather than failing the caller, since history is explicitly
// non-critical (spec.md §7).
package history

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/synapse-a2a/synapse/types"
)

// Store is a handle to the observation log database.
type Store struct {
	db      *sql.DB
	enabled bool
	maxAge  time.Duration
	maxRows int
}

// Open opens the observation log at path. If opening or migrating fails,
// Open returns a disabled Store instead of an error so callers can keep
// running without history.
func Open(path string, maxAge time.Duration, maxRows int) *Store {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return &Store{enabled: false}
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return &Store{enabled: false}
	}
	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	task_id TEXT,
	kind TEXT NOT NULL,
	payload TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_created_at ON observations(created_at);
`)
	if err != nil {
		return &Store{enabled: false}
	}
	return &Store{db: db, enabled: true, maxAge: maxAge, maxRows: maxRows}
}

// Enabled reports whether this Store is actually persisting observations.
func (s *Store) Enabled() bool { return s.enabled }

// Close closes the underlying database, if open.
func (s *Store) Close() error {
	if !s.enabled {
		return nil
	}
	return s.db.Close()
}

// Record appends one observation. Failures are swallowed: history is a
// best-effort diagnostic log, never a dependency of task processing.
func (s *Store) Record(obs types.Observation) {
	if !s.enabled {
		return
	}

	payload, err := json.Marshal(obs.Payload)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(
		`INSERT INTO observations (agent_id, task_id, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		obs.AgentID, obs.TaskID, obs.Kind, string(payload), time.Now().UTC(),
	)
	s.prune()
}

// prune deletes rows older than maxAge, then trims to maxRows by deleting
// the oldest surplus rows (original_source history.py's pruning policy).
func (s *Store) prune() {
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge).UTC()
		_, _ = s.db.Exec(`DELETE FROM observations WHERE created_at < ?`, cutoff)
	}
	if s.maxRows > 0 {
		_, _ = s.db.Exec(
			`DELETE FROM observations WHERE id IN (
				SELECT id FROM observations ORDER BY id DESC LIMIT -1 OFFSET ?
			)`, s.maxRows,
		)
	}
}

// Recent returns the most recent limit observations for an agent, newest
// first.
func (s *Store) Recent(agentID string, limit int) ([]types.Observation, error) {
	if !s.enabled {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT id, agent_id, task_id, kind, payload, created_at FROM observations
		 WHERE agent_id = ? ORDER BY id DESC LIMIT ?`, agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []types.Observation
	for rows.Next() {
		var obs types.Observation
		var taskID sql.NullString
		var payloadRaw string
		if err := rows.Scan(&obs.ID, &obs.AgentID, &taskID, &obs.Kind, &payloadRaw, &obs.CreatedAt); err != nil {
			return nil, err
		}
		obs.TaskID = taskID.String
		_ = json.Unmarshal([]byte(payloadRaw), &obs.Payload)
		out = append(out, obs)
	}
	return out, rows.Err()
}
