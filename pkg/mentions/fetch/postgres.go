package fetch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// Querier is the subset of *pgxpool.Pool the Postgres fetcher uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// mutualFriendsQuery returns users who list the scope owner as a friend
// and whom the owner lists back. The owner never appears in the result.
const mutualFriendsQuery = `
	SELECT u.id, u.handle, u.display_name, u.avatar_ref
	FROM friendships f
	JOIN friendships back ON back.user_id = f.friend_id AND back.friend_id = f.user_id
	JOIN users u ON u.id = f.friend_id
	WHERE f.user_id = $1 AND f.friend_id <> $1
	ORDER BY u.handle, u.id
	LIMIT $2
`

// DefaultCandidateLimit caps how many candidates one scope can return.
const DefaultCandidateLimit = 1000

// PostgresFetcher lists the mutual friends of the scope owner from the
// social graph tables. The scope is the owner's user ID.
type PostgresFetcher struct {
	db    Querier
	limit int
}

// NewPostgresFetcher creates a fetcher over db.
func NewPostgresFetcher(db Querier) *PostgresFetcher {
	return &PostgresFetcher{db: db, limit: DefaultCandidateLimit}
}

// WithLimit returns a copy of the fetcher capped at n candidates.
func (f *PostgresFetcher) WithLimit(n int) *PostgresFetcher {
	cp := *f
	if n > 0 {
		cp.limit = n
	}
	return &cp
}

// FetchMentionCandidates implements directory.Fetcher.
func (f *PostgresFetcher) FetchMentionCandidates(ctx context.Context, scope string) (*directory.FetchResult, error) {
	if scope == "" {
		return &directory.FetchResult{Success: false, Error: "scope is required"}, nil
	}

	rows, err := f.db.Query(ctx, mutualFriendsQuery, scope, f.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutual friends: %w", err)
	}
	defer rows.Close()

	out := make([]mentions.Candidate, 0)
	for rows.Next() {
		var c mentions.Candidate
		if err := rows.Scan(&c.ID, &c.Handle, &c.DisplayName, &c.AvatarRef); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}

	return &directory.FetchResult{Success: true, Data: out}, nil
}

// AddUser inserts or updates a user row.
func (f *PostgresFetcher) AddUser(ctx context.Context, c mentions.Candidate) error {
	_, err := f.db.Exec(ctx, `
		INSERT INTO users (id, handle, display_name, avatar_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET handle = EXCLUDED.handle,
		    display_name = EXCLUDED.display_name,
		    avatar_ref = EXCLUDED.avatar_ref
	`, c.ID, c.Handle, c.DisplayName, c.AvatarRef)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", c.ID, err)
	}
	return nil
}

// Befriend records a one-directional friendship. Two users become
// mentionable to each other once both directions exist.
func (f *PostgresFetcher) Befriend(ctx context.Context, userID, friendID string) error {
	_, err := f.db.Exec(ctx, `
		INSERT INTO friendships (user_id, friend_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, friendID)
	if err != nil {
		return fmt.Errorf("failed to add friendship %s -> %s: %w", userID, friendID, err)
	}
	return nil
}
