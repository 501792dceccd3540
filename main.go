// Package main provides the mentionkit CLI entry point.
// mentionkit exercises the @-mention engine behind a comment composer:
// trigger detection, suggestion filtering, insertion and parsing.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/cmd"
	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/buildinfo"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configDir  string
	serverAddr string
	fetcher    string
	timeout    time.Duration
	output     string
	debug      bool
	logJSON    bool
	insecure   bool
}

// skipConfig lists commands that run without a loaded configuration.
var skipConfig = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
	"init":       true,
}

func newRootCommand(deps *cmd.Deps) *cobra.Command {
	opts := &rootOptions{}
	loadBase := deps.LoadConfig

	root := &cobra.Command{
		Use:   "mentionkit",
		Short: "@-mention engine for comment composers",
		Long: `mentionkit detects an in-progress @mention at the caret, filters the
scope's candidates, inserts the chosen candidate and parses finalized
comments into text and mention segments.

Candidates come from one of three fetchers: a gRPC mention service, the
PostgreSQL friendship tables, or a local YAML/JSON file. Results are cached
per scope and optionally in Redis.

COMMON WORKFLOWS:
  Try the engine:   mentionkit detect "hi @bo"  →  mentionkit suggest --scope u1 "hi @bo"
  Insert a pick:    mentionkit insert --scope u1 --pick bob "hi @bo"
  Interactive:      mentionkit compose --scope u1
  Finalize:         mentionkit parse --bind u2 "hi @bob and @carol"
  Run a backend:    mentionkit db migrate  →  mentionkit serve --fetcher postgres

DISCOVERY:
  mentionkit <command> --help   Subcommands, flags, and examples
  mentionkit health             Check candidates, database and Redis`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if opts.configDir != "" {
				if err := os.Setenv("MENTIONKIT_CONFIG_DIR", opts.configDir); err != nil {
					return err
				}
			}

			if skipConfig[c.Name()] {
				return nil
			}

			cfg, err := loadBase()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}

			logging.SetGlobal(newLogger(cfg, c.ErrOrStderr()))
			deps.LoadConfig = func() (*config.CLIConfig, error) { return cfg, nil }
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configDir, "config-dir", "", "configuration directory (default ~/.mentionkit)")
	flags.StringVar(&opts.serverAddr, "server", "", "mention service address (host:port)")
	flags.StringVar(&opts.fetcher, "fetcher", "", "candidate backend: grpc, postgres, file")
	flags.DurationVar(&opts.timeout, "timeout", 0, "candidate fetch timeout (e.g., 5s)")
	flags.StringVarP(&opts.output, "output", "o", "", "output format: text, json, yaml")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")
	flags.BoolVar(&opts.insecure, "insecure", false, "disable TLS for the grpc fetcher")

	root.AddGroup(
		&cobra.Group{ID: "engine", Title: "Mention Engine:"},
		&cobra.Group{ID: "data", Title: "Candidates & Data:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	addToGroup(root, "engine",
		cmd.NewDetectCommand(deps),
		cmd.NewSuggestCommand(deps),
		cmd.NewInsertCommand(deps),
		cmd.NewParseCommand(deps),
		cmd.NewComposeCommand(deps),
	)
	addToGroup(root, "data",
		cmd.NewCandidatesCommand(deps),
		cmd.NewAuditCommand(deps),
		cmd.NewDbCommand(deps),
	)
	addToGroup(root, "ops",
		cmd.NewServeCommand(deps),
		cmd.NewHealthCommand(deps),
	)
	addToGroup(root, "setup",
		cmd.NewTokenCommand(deps),
		cmd.NewCertCommand(deps),
		newConfigCommand(deps),
		newVersionCommand(),
	)

	return root
}

func addToGroup(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}

// apply overlays command-line flags on cfg and revalidates it.
func (o *rootOptions) apply(cfg *config.CLIConfig) error {
	if o.serverAddr != "" {
		cfg.ServerAddress = o.serverAddr
	}
	if o.fetcher != "" {
		cfg.Fetcher = config.FetcherKind(o.fetcher)
	}
	if o.timeout != 0 {
		cfg.Timeout = o.timeout
	}
	if o.output != "" {
		cfg.OutputFormat = config.OutputFormat(o.output)
	}
	if o.debug {
		cfg.Debug = true
	}
	if o.logJSON {
		cfg.LogJSON = true
	}
	if o.insecure {
		cfg.Insecure = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func newLogger(cfg *config.CLIConfig, w io.Writer) logging.Logger {
	level := logging.Level(cfg.LogLevel)
	if level == "" {
		level = logging.LevelWarn
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:      level,
		Component:  "cli",
		JSONFormat: cfg.LogJSON,
		Output:     w,
	})
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, and build time of the mentionkit CLI.

Examples:
  mentionkit version
  mentionkit version --output json`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			info := buildinfo.Get("mentionkit")
			format, _ := c.Flags().GetString("output")

			switch config.OutputFormat(format) {
			case config.OutputFormatJSON, config.OutputFormatYAML:
				return cmd.Render(c.OutOrStdout(), config.OutputFormat(format), info, nil)
			}

			out := c.OutOrStdout()
			fmt.Fprintf(out, "mentionkit version %s\n", info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
			return nil
		},
	}
}

func newConfigCommand(deps *cmd.Deps) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long: `View and initialize the mentionkit configuration.

The file lives at ~/.mentionkit/config.yaml (or $MENTIONKIT_CONFIG_DIR).
MENTIONKIT_* environment variables and command-line flags override it.`,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			path, _ := config.ConfigPath()
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", path)
			_, err = out.Write(data)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return fmt.Errorf("getting config path: %w", err)
			}

			out := c.OutOrStdout()
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Configuration file already exists: %s\n", path)
				fmt.Fprintln(out, "Use 'mentionkit config show' to view current settings.")
				return nil
			}

			defaults := config.DefaultConfig()
			if err := config.SaveConfig(defaults); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}

			fmt.Fprintf(out, "Created configuration file: %s\n", path)
			fmt.Fprintf(out, "  Fetcher:        %s\n", defaults.Fetcher)
			fmt.Fprintf(out, "  Server address: %s\n", defaults.ServerAddress)
			fmt.Fprintf(out, "  Timeout:        %s\n", defaults.Timeout)
			return nil
		},
	})

	return configCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(cmd.DefaultDeps()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
