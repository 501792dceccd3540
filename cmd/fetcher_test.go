package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
)

func TestBuildFetcher_UnknownKind(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fetcher = "carrier-pigeon"

	_, _, err := BuildFetcher(context.Background(), cfg, logging.NewNopLogger())
	assert.ErrorContains(t, err, "unknown fetcher")
}

func TestBuildFetcher_FileWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scopes:\n  owner-1:\n    - id: u1\n      handle: alice\n"), 0o600))

	cfg := config.DefaultConfig()
	cfg.Fetcher = config.FetcherFile
	cfg.CandidatesFile = path
	cfg.CandidatesWatch = true

	f, closeFn, err := BuildFetcher(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)

	res, err := f.FetchMentionCandidates(context.Background(), "owner-2")
	require.NoError(t, err)
	assert.False(t, res.Success)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("scopes:\n  owner-2:\n    - id: u2\n      handle: bob\n"), 0o600))

	assert.Eventually(t, func() bool {
		res, err := f.FetchMentionCandidates(context.Background(), "owner-2")
		return err == nil && res.Success
	}, 5*time.Second, 50*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		closeFn()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("closing the fetcher did not stop the watcher")
	}
}
