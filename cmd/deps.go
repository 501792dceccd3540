// Package cmd provides the mentionkit CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/credentials"
	"github.com/otherjamesbrown/mentionkit/pkg/db"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/audit"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// Deps holds what the commands need from the outside world. Tests swap
// individual fields.
type Deps struct {
	LoadConfig  func() (*config.CLIConfig, error)
	NewFetcher  func(ctx context.Context, cfg *config.CLIConfig, log logging.Logger) (directory.Fetcher, func(), error)
	ConnectToDB func(ctx context.Context, cfg *config.CLIConfig) (*pgxpool.Pool, error)
	OpenAudit   func(cfg *config.CLIConfig) (audit.Repository, func() error, error)
	Credentials *credentials.Store
	Logger      func() logging.Logger
}

// DefaultDeps returns the dependencies used by the real binary.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:  config.LoadConfig,
		NewFetcher:  BuildFetcher,
		ConnectToDB: connectToDatabase,
		OpenAudit:   openAudit,
		Credentials: credentials.NewStore(),
		Logger:      logging.Global,
	}
}

func (d *Deps) log() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger()
}

// newDirectory builds a Directory over the configured fetcher. The
// returned func releases the fetcher's connections.
func (d *Deps) newDirectory(ctx context.Context, cfg *config.CLIConfig, opts ...directory.Option) (*directory.Directory, func(), error) {
	f, closeFn, err := d.NewFetcher(ctx, cfg, d.log())
	if err != nil {
		return nil, nil, err
	}

	return d.directoryOver(f, cfg, opts...), closeFn, nil
}

// directoryOver builds a Directory over an already constructed fetcher.
func (d *Deps) directoryOver(f directory.Fetcher, cfg *config.CLIConfig, opts ...directory.Option) *directory.Directory {
	opts = append([]directory.Option{
		directory.WithTimeout(cfg.Timeout),
		directory.WithFallbackMessage(cfg.FallbackMessage),
		directory.WithLogger(d.log()),
	}, opts...)
	return directory.New(f, opts...)
}

// connectToDatabase opens the configured pgx pool.
func connectToDatabase(ctx context.Context, cfg *config.CLIConfig) (*pgxpool.Pool, error) {
	if !cfg.Database.IsConfigured() {
		return nil, fmt.Errorf("database not configured: set database.url or MENTIONKIT_DATABASE_URL")
	}
	return db.Connect(ctx, db.ConfigFromEnv(db.ConfigFromCLI(cfg.Database)))
}

func openAudit(cfg *config.CLIConfig) (audit.Repository, func() error, error) {
	if cfg.Audit.UsesSQLite() {
		path, err := config.ExpandPath(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo, err := audit.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}

	repo, err := audit.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// outputFormat returns the --output flag if set, else the configured default.
func outputFormat(cmd *cobra.Command, cfg *config.CLIConfig) config.OutputFormat {
	if f := cmd.Flags().Lookup("output"); f != nil && f.Value.String() != "" {
		return config.OutputFormat(f.Value.String())
	}
	return cfg.OutputFormat
}

// Render writes v as JSON or YAML, or calls text for the text format.
func Render(w io.Writer, format config.OutputFormat, v interface{}, text func(io.Writer) error) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return text(w)
	}
}
