package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

// PostgresRepository implements Repository on the mention_selections and
// mention_comments tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Open connects to the configured database through lib/pq.
func Open(cfg *config.DatabaseConfig) (*PostgresRepository, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("audit database not configured")
	}

	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Close closes the database handle.
func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertSelections writes selections in one transaction.
func (r *PostgresRepository) InsertSelections(ctx context.Context, selections []Selection) error {
	if len(selections) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mention_selections
			(session_id, scope, query, candidate_id, handle, strategy, selected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range selections {
		if _, err := stmt.ExecContext(ctx,
			s.SessionID,
			s.Scope,
			s.Query,
			s.Candidate.ID,
			s.Candidate.Label(),
			string(s.Strategy),
			s.At,
		); err != nil {
			return fmt.Errorf("inserting selection: %w", err)
		}
	}

	return tx.Commit()
}

// InsertComment records a finalized comment and returns its ID.
func (r *PostgresRepository) InsertComment(ctx context.Context, c *Comment) (int64, error) {
	var boundID sql.NullString
	if c.BoundEntityID != nil {
		boundID = sql.NullString{String: *c.BoundEntityID, Valid: true}
	}

	handles := c.Handles
	if handles == nil {
		handles = []string{}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mention_comments
			(session_id, scope, bound_entity_id, handles, body, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.SessionID,
		c.Scope,
		boundID,
		pq.Array(handles),
		c.Body,
		c.RecordedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting comment: %w", err)
	}
	return id, nil
}

// ListSelections returns the newest selections matching filter.
func (r *PostgresRepository) ListSelections(ctx context.Context, filter Filter) ([]Selection, error) {
	where, args := filter.clauses("selected_at")
	query := `
		SELECT session_id, scope, query, candidate_id, handle, strategy, selected_at
		FROM mention_selections` + where + `
		ORDER BY selected_at DESC, id DESC
		LIMIT ` + fmt.Sprintf("$%d", len(args)+1)
	args = append(args, filter.limit())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var s Selection
		var strategy string
		if err := rows.Scan(&s.SessionID, &s.Scope, &s.Query, &s.Candidate.ID, &s.Candidate.Handle, &strategy, &s.At); err != nil {
			return nil, fmt.Errorf("scanning selection: %w", err)
		}
		s.Strategy = mentions.Strategy(strategy)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListComments returns the newest recorded comments matching filter.
func (r *PostgresRepository) ListComments(ctx context.Context, filter Filter) ([]Comment, error) {
	where, args := filter.clauses("recorded_at")
	query := `
		SELECT id, session_id, scope, bound_entity_id, handles, body, recorded_at
		FROM mention_comments` + where + `
		ORDER BY recorded_at DESC, id DESC
		LIMIT ` + fmt.Sprintf("$%d", len(args)+1)
	args = append(args, filter.limit())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		var boundID sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Scope, &boundID, pq.Array(&c.Handles), &c.Body, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		if boundID.Valid {
			c.BoundEntityID = &boundID.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TopHandles returns the most selected handles in scope.
func (r *PostgresRepository) TopHandles(ctx context.Context, scope string, limit int) ([]HandleCount, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT handle, COUNT(*) AS n
		FROM mention_selections
		WHERE scope = $1
		GROUP BY handle
		ORDER BY n DESC, handle
		LIMIT $2`, scope, limit)
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

// clauses builds the WHERE clause for filter against timeColumn.
func (f Filter) clauses(timeColumn string) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Scope != "" {
		add("scope = $%d", f.Scope)
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if !f.Since.IsZero() {
		add(timeColumn+" >= $%d", f.Since)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args
}
