package db

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"001_test.sql", "001_test"},
		{"002_test.SQL", "002_test"},
		{"003_test", "003_test"},
		{".sql", ".sql"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeVersion(tt.input), "input %q", tt.input)
	}
}

func TestFindMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":    {Data: []byte("SELECT 1;")},
		"002_second.SQL":   {Data: []byte("SELECT 1;")},
		"001_first.sql":    {Data: []byte("SELECT 1;")},
		"README.md":        {Data: []byte("docs")},
		"nested/003_x.sql": {Data: []byte("SELECT 1;")},
	}

	got, err := findMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"001_first", "002_second", "010_later"},
		[]string{got[0].Version, got[1].Version, got[2].Version})
	assert.Equal(t, "002_second.SQL", got[1].Name)
}

func TestSchema_BundlesMigrations(t *testing.T) {
	got, err := findMigrations(Schema())
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001_social_graph", got[0].Version)

	for _, m := range got {
		body, err := fs.ReadFile(Schema(), m.Name)
		require.NoError(t, err)
		assert.NotEmpty(t, body, m.Name)
	}
}

func TestBuildStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	migrations := []Migration{
		{Version: "001_a", Name: "001_a.sql"},
		{Version: "002_b", Name: "002_b.sql"},
	}
	applied := map[string]time.Time{"001_a": at, "000_gone": at}

	status := buildStatus(migrations, applied)

	require.Len(t, status.Applied, 1)
	assert.Equal(t, "001_a", status.Applied[0].Version)
	assert.Equal(t, at, *status.Applied[0].AppliedAt)

	require.Len(t, status.Pending, 1)
	assert.Equal(t, "002_b", status.Pending[0].Version)
	assert.Nil(t, status.Pending[0].AppliedAt)

	require.Len(t, status.Drift, 1)
	assert.Equal(t, "000_gone.sql", status.Drift[0].Name)
}

func TestRunMigrations_NilPool(t *testing.T) {
	_, err := RunMigrations(context.Background(), nil, Schema())
	assert.ErrorIs(t, err, ErrNilPool)

	_, err = GetMigrationStatus(context.Background(), nil, Schema())
	assert.ErrorIs(t, err, ErrNilPool)
}

// TestRunMigrations_Integration applies the bundled schema to a real database.
func TestRunMigrations_Integration(t *testing.T) {
	dsn := os.Getenv("MENTIONKIT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MENTIONKIT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.DSN = dsn
	pool, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	_, err = RunMigrations(ctx, pool, Schema())
	require.NoError(t, err)

	second, err := RunMigrations(ctx, pool, Schema())
	require.NoError(t, err)
	assert.Empty(t, second.Applied)

	status, err := GetMigrationStatus(ctx, pool, Schema())
	require.NoError(t, err)
	assert.Empty(t, status.Pending)

	health := Check(ctx, pool)
	assert.True(t, health.Healthy)
}
