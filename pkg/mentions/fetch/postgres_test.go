package fetch

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mentionkit/pkg/db"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

func TestPostgresFetcher_EmptyScope(t *testing.T) {
	res, err := NewPostgresFetcher(nil).FetchMentionCandidates(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestPostgresFetcher_WithLimit(t *testing.T) {
	f := NewPostgresFetcher(nil)
	assert.Equal(t, DefaultCandidateLimit, f.limit)
	assert.Equal(t, 5, f.WithLimit(5).limit)
	assert.Equal(t, DefaultCandidateLimit, f.WithLimit(0).limit)
	assert.Equal(t, DefaultCandidateLimit, f.limit, "WithLimit must not modify the receiver")
}

// TestPostgresFetcher_Integration seeds a small social graph and checks
// that only mutual friends come back.
func TestPostgresFetcher_Integration(t *testing.T) {
	dsn := os.Getenv("MENTIONKIT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MENTIONKIT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg := db.DefaultConfig()
	cfg.DSN = dsn
	pool, err := db.Connect(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	_, err = db.RunMigrations(ctx, pool, db.Schema())
	require.NoError(t, err)

	ids := []string{"it-owner", "it-zoe", "it-amy", "it-oneway"}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM users WHERE id = ANY($1)", ids)
	})

	f := NewPostgresFetcher(pool)
	for _, c := range []mentions.Candidate{
		{ID: "it-owner", Handle: "it_owner", DisplayName: "Owner"},
		{ID: "it-zoe", Handle: "it_zoe", DisplayName: "Zoe"},
		{ID: "it-amy", Handle: "it_amy", DisplayName: "Amy"},
		{ID: "it-oneway", Handle: "it_oneway", DisplayName: "One Way"},
	} {
		require.NoError(t, f.AddUser(ctx, c))
	}
	for _, pair := range [][2]string{
		{"it-owner", "it-zoe"}, {"it-zoe", "it-owner"},
		{"it-owner", "it-amy"}, {"it-amy", "it-owner"},
		{"it-owner", "it-oneway"},
		{"it-owner", "it-owner"},
	} {
		require.NoError(t, f.Befriend(ctx, pair[0], pair[1]))
	}

	res, err := f.FetchMentionCandidates(ctx, "it-owner")
	require.NoError(t, err)
	require.True(t, res.Success)

	var handles []string
	for _, c := range res.Data {
		handles = append(handles, c.Handle)
	}
	assert.Equal(t, []string{"it_amy", "it_zoe"}, handles)

	res, err = f.FetchMentionCandidates(ctx, "it-nobody")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Data)
}
