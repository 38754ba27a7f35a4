// Package board implements the shared SQLite Task Board (spec.md §4.5),
// ported from original_source's task_board.py: WAL-mode SQLite with an
// atomic conditional-UPDATE claim and a post-complete dependency unblock
// scan. Uses modernc.org/sqlite, a pure-Go cgo-free driver, so this wrapper
// never assumes a system C toolchain is available (see DESIGN.md).
package board

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/synapse-a2a/synapse/types"
)

// Board is a handle to the shared task board database.
type Board struct {
	db      *sql.DB
	enabled bool
}

// Open opens (creating if necessary) the board database at path in WAL
// mode. When enabled is false, Open still succeeds but every method other
// than Close is a no-op returning ErrDisabled, per spec.md §4.5's opt-out.
func Open(path string, enabled bool) (*Board, error) {
	if !enabled {
		return &Board{enabled: false}, nil
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open task board db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	b := &Board{db: db, enabled: true}
	if err := b.initSchema(); err != nil {
		return nil, err
	}
	return b, nil
}

// ErrDisabled is returned by every Board method when the board was opened
// with enabled=false.
var ErrDisabled = fmt.Errorf("task board is disabled")

func (b *Board) initSchema() error {
	_, err := b.db.Exec(`
CREATE TABLE IF NOT EXISTS board_tasks (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_by TEXT NOT NULL,
	assignee TEXT,
	blocked_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	claimed_at TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_board_tasks_status ON board_tasks(status);
CREATE INDEX IF NOT EXISTS idx_board_tasks_assignee ON board_tasks(assignee);
`)
	return err
}

// Close closes the underlying database handle.
func (b *Board) Close() error {
	if !b.enabled {
		return nil
	}
	return b.db.Close()
}

func joinIDs(ids []string) string  { return strings.Join(ids, ",") }
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// CreateTask inserts a new pending board task and returns its id.
func (b *Board) CreateTask(subject, description, createdBy string, blockedBy []string) (string, error) {
	if !b.enabled {
		return "", ErrDisabled
	}

	id := uuid.New().String()
	_, err := b.db.Exec(
		`INSERT INTO board_tasks (id, subject, description, status, created_by, blocked_by, created_at)
		 VALUES (?, ?, ?, 'pending', ?, ?, ?)`,
		id, subject, description, createdBy, joinIDs(blockedBy), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert board task: %w", err)
	}
	return id, nil
}

// hasIncompleteBlockers reports whether any id in blockedBy is not yet
// completed, ported from task_board.py's _has_incomplete_blockers.
func hasIncompleteBlockers(tx *sql.Tx, blockedBy []string) (bool, error) {
	if len(blockedBy) == 0 {
		return false, nil
	}

	placeholders := make([]string, len(blockedBy))
	args := make([]any, len(blockedBy))
	for i, id := range blockedBy {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM board_tasks WHERE id IN (%s) AND status != 'completed'`,
		strings.Join(placeholders, ","),
	)
	var count int
	if err := tx.QueryRow(query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimTask atomically assigns an unblocked, unassigned pending task to
// agentID. Returns false (no error) if the task could not be claimed,
// either because it does not exist, is already assigned, or is still
// blocked.
func (b *Board) ClaimTask(taskID, agentID string) (bool, error) {
	if !b.enabled {
		return false, ErrDisabled
	}

	tx, err := b.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var blockedByRaw string
	err = tx.QueryRow(`SELECT blocked_by FROM board_tasks WHERE id = ?`, taskID).Scan(&blockedByRaw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	blocked, err := hasIncompleteBlockers(tx, splitIDs(blockedByRaw))
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	res, err := tx.Exec(
		`UPDATE board_tasks SET status='claimed', assignee=?, claimed_at=? WHERE id=? AND status='pending' AND assignee IS NULL`,
		agentID, time.Now().UTC(), taskID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, tx.Commit()
	}
	return true, tx.Commit()
}

// CompleteTask marks a task completed and returns the ids of any other
// tasks this completion unblocks (original_source's complete_task unblock
// scan).
func (b *Board) CompleteTask(taskID, agentID string) ([]string, error) {
	if !b.enabled {
		return nil, ErrDisabled
	}

	tx, err := b.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`UPDATE board_tasks SET status='completed', completed_at=? WHERE id=? AND assignee=?`,
		time.Now().UTC(), taskID, agentID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	rows, err := tx.Query(`SELECT id, blocked_by FROM board_tasks WHERE status='pending'`)
	if err != nil {
		return nil, err
	}

	var unblocked []string
	type pending struct {
		id        string
		blockedBy []string
	}
	var candidates []pending
	for rows.Next() {
		var id, blockedByRaw string
		if err := rows.Scan(&id, &blockedByRaw); err != nil {
			_ = rows.Close()
			return nil, err
		}
		candidates = append(candidates, pending{id: id, blockedBy: splitIDs(blockedByRaw)})
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		remaining := make([]string, 0, len(c.blockedBy))
		for _, b := range c.blockedBy {
			if b != taskID {
				remaining = append(remaining, b)
			}
		}
		stillBlocked, err := hasIncompleteBlockers(tx, remaining)
		if err != nil {
			return nil, err
		}
		if !stillBlocked && len(remaining) < len(c.blockedBy) {
			unblocked = append(unblocked, c.id)
		}
	}

	return unblocked, tx.Commit()
}

// ListTasks returns board tasks matching the given optional status and
// assignee filters.
func (b *Board) ListTasks(status, assignee string) ([]types.BoardTask, error) {
	if !b.enabled {
		return nil, ErrDisabled
	}

	query := `SELECT id, subject, description, status, created_by, assignee, blocked_by, created_at, claimed_at, completed_at FROM board_tasks WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if assignee != "" {
		query += " AND assignee = ?"
		args = append(args, assignee)
	}

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanBoardTasks(rows)
}

// AvailableTasks returns pending, unassigned, unblocked tasks.
func (b *Board) AvailableTasks() ([]types.BoardTask, error) {
	if !b.enabled {
		return nil, ErrDisabled
	}

	rows, err := b.db.Query(`SELECT id, subject, description, status, created_by, assignee, blocked_by, created_at, claimed_at, completed_at
		FROM board_tasks WHERE status='pending' AND assignee IS NULL`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	all, err := scanBoardTasks(rows)
	if err != nil {
		return nil, err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var available []types.BoardTask
	for _, t := range all {
		blocked, err := hasIncompleteBlockers(tx, t.BlockedBy)
		if err != nil {
			return nil, err
		}
		if !blocked {
			available = append(available, t)
		}
	}
	return available, nil
}

func scanBoardTasks(rows *sql.Rows) ([]types.BoardTask, error) {
	var tasks []types.BoardTask
	for rows.Next() {
		var t types.BoardTask
		var assignee sql.NullString
		var blockedByRaw string
		var claimedAt, completedAt sql.NullTime

		if err := rows.Scan(&t.ID, &t.Subject, &t.Description, &t.Status, &t.CreatedBy,
			&assignee, &blockedByRaw, &t.CreatedAt, &claimedAt, &completedAt); err != nil {
			return nil, err
		}
		if assignee.Valid {
			t.Assignee = &assignee.String
		}
		t.BlockedBy = splitIDs(blockedByRaw)
		if claimedAt.Valid {
			t.ClaimedAt = &claimedAt.Time
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
