package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mention_selections (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	scope        TEXT NOT NULL,
	query        TEXT NOT NULL,
	candidate_id TEXT NOT NULL,
	handle       TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	selected_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mention_selections_scope ON mention_selections(scope, selected_at);

CREATE TABLE IF NOT EXISTS mention_comments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL,
	scope           TEXT NOT NULL,
	bound_entity_id TEXT,
	handles         TEXT NOT NULL,
	body            TEXT NOT NULL,
	recorded_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mention_comments_scope ON mention_comments(scope, recorded_at);
`

// SQLiteRepository implements Repository in a local SQLite file, for
// single-user setups without a Postgres database. Times are stored as
// Unix nanoseconds and comment handles as a JSON array.
type SQLiteRepository struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the audit database at path.
// ":memory:" opens an in-memory database shared within the process.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("audit sqlite path not configured")
	}

	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// InsertSelections writes selections in one transaction.
func (r *SQLiteRepository) InsertSelections(ctx context.Context, selections []Selection) error {
	if len(selections) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mention_selections
			(session_id, scope, query, candidate_id, handle, strategy, selected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range selections {
		if _, err := stmt.ExecContext(ctx,
			s.SessionID, s.Scope, s.Query, s.Candidate.ID, s.Candidate.Label(),
			string(s.Strategy), s.At.UnixNano(),
		); err != nil {
			return fmt.Errorf("inserting selection: %w", err)
		}
	}

	return tx.Commit()
}

// InsertComment records a finalized comment and returns its ID.
func (r *SQLiteRepository) InsertComment(ctx context.Context, c *Comment) (int64, error) {
	handles := c.Handles
	if handles == nil {
		handles = []string{}
	}
	encoded, err := json.Marshal(handles)
	if err != nil {
		return 0, fmt.Errorf("encoding handles: %w", err)
	}

	var boundID sql.NullString
	if c.BoundEntityID != nil {
		boundID = sql.NullString{String: *c.BoundEntityID, Valid: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mention_comments
			(session_id, scope, bound_entity_id, handles, body, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Scope, boundID, string(encoded), c.Body, c.RecordedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting comment: %w", err)
	}
	return res.LastInsertId()
}

// ListSelections returns the newest selections matching filter.
func (r *SQLiteRepository) ListSelections(ctx context.Context, filter Filter) ([]Selection, error) {
	where, args := filter.sqliteClauses("selected_at")
	args = append(args, filter.limit())

	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, scope, query, candidate_id, handle, strategy, selected_at
		FROM mention_selections`+where+`
		ORDER BY selected_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var s Selection
		var strategy string
		var at int64
		if err := rows.Scan(&s.SessionID, &s.Scope, &s.Query, &s.Candidate.ID, &s.Candidate.Handle, &strategy, &at); err != nil {
			return nil, fmt.Errorf("scanning selection: %w", err)
		}
		s.Strategy = mentions.Strategy(strategy)
		s.At = time.Unix(0, at).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListComments returns the newest recorded comments matching filter.
func (r *SQLiteRepository) ListComments(ctx context.Context, filter Filter) ([]Comment, error) {
	where, args := filter.sqliteClauses("recorded_at")
	args = append(args, filter.limit())

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, scope, bound_entity_id, handles, body, recorded_at
		FROM mention_comments`+where+`
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		var boundID sql.NullString
		var handles string
		var at int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Scope, &boundID, &handles, &c.Body, &at); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		if err := json.Unmarshal([]byte(handles), &c.Handles); err != nil {
			return nil, fmt.Errorf("decoding handles of comment %d: %w", c.ID, err)
		}
		if boundID.Valid {
			c.BoundEntityID = &boundID.String
		}
		c.RecordedAt = time.Unix(0, at).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// TopHandles returns the most selected handles in scope.
func (r *SQLiteRepository) TopHandles(ctx context.Context, scope string, limit int) ([]HandleCount, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT handle, COUNT(*) AS n
		FROM mention_selections
		WHERE scope = ?
		GROUP BY handle
		ORDER BY n DESC, handle
		LIMIT ?`, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top handles: %w", err)
	}
	defer rows.Close()

	var out []HandleCount
	for rows.Next() {
		var hc HandleCount
		if err := rows.Scan(&hc.Handle, &hc.Count); err != nil {
			return nil, fmt.Errorf("scanning handle count: %w", err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// sqliteClauses is clauses with positional "?" placeholders and times as
// Unix nanoseconds.
func (f Filter) sqliteClauses(timeColumn string) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Scope != "" {
		conds = append(conds, "scope = ?")
		args = append(args, f.Scope)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, timeColumn+" >= ?")
		args = append(args, f.Since.UnixNano())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args
}
