package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mentionkit/cmd"
	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/buildinfo"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

func run(t *testing.T, deps *cmd.Deps, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(deps)
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Groups(t *testing.T) {
	root := newRootCommand(cmd.DefaultDeps())

	want := []string{
		"detect", "suggest", "insert", "parse", "compose",
		"candidates", "audit", "db", "serve", "health",
		"token", "cert", "config", "version",
	}
	for _, name := range want {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
		assert.NotEmpty(t, c.GroupID, name)
	}

	for _, flag := range []string{"config-dir", "server", "fetcher", "timeout", "output", "debug", "log-json", "insecure"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	deps := cmd.DefaultDeps()
	deps.LoadConfig = func() (*config.CLIConfig, error) {
		t.Fatal("version must not load configuration")
		return nil, nil
	}

	out, err := run(t, deps, "version", "--output", "json")
	require.NoError(t, err)

	var info buildinfo.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "mentionkit", info.Component)
	assert.Equal(t, buildinfo.Version, info.Version)
}

func TestVersionCommand_Text(t *testing.T) {
	out, err := run(t, cmd.DefaultDeps(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mentionkit version "+buildinfo.Version)
	assert.Contains(t, out, "commit:")
}

func TestRootCommand_FlagOverrides(t *testing.T) {
	t.Cleanup(func() { logging.SetGlobal(nil) })

	file := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(file, []byte("scopes:\n  owner-1:\n    - id: u1\n      handle: alice\n"), 0o600))

	var seen *config.CLIConfig
	deps := cmd.DefaultDeps()
	deps.LoadConfig = func() (*config.CLIConfig, error) {
		cfg := config.DefaultConfig()
		cfg.CandidatesFile = file
		return cfg, nil
	}
	deps.NewFetcher = func(ctx context.Context, cfg *config.CLIConfig, log logging.Logger) (directory.Fetcher, func(), error) {
		seen = cfg
		return cmd.BuildFetcher(ctx, cfg, log)
	}

	out, err := run(t, deps, "--fetcher", "file", "--timeout", "2s", "--output", "json", "candidates", "owner-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"handle": "alice"`)

	require.NotNil(t, seen)
	assert.Equal(t, config.FetcherFile, seen.Fetcher)
	assert.Equal(t, "2s", seen.Timeout.String())
	assert.Equal(t, config.OutputFormatJSON, seen.OutputFormat)
}

func TestRootCommand_InvalidOverride(t *testing.T) {
	deps := cmd.DefaultDeps()
	deps.LoadConfig = func() (*config.CLIConfig, error) { return config.DefaultConfig(), nil }

	_, err := run(t, deps, "--output", "xml", "detect", "@a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_format")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MENTIONKIT_CONFIG_DIR", dir)

	out, err := run(t, cmd.DefaultDeps(), "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created configuration file")
	assert.FileExists(t, filepath.Join(dir, config.DefaultConfigFile))

	out, err = run(t, cmd.DefaultDeps(), "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = run(t, cmd.DefaultDeps(), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "fetcher: grpc")
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()

	newLogger(cfg, &buf).Info("hidden at warn")
	assert.Empty(t, buf.String())

	cfg.Debug = true
	cfg.LogJSON = true
	newLogger(cfg, &buf).Debug("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Contains(t, buf.String(), `"component":"cli"`)
}
