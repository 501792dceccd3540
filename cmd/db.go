package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/pkg/db"
)

// NewDbCommand creates the db command group.
func NewDbCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database schema management",
		Long: `Manage the PostgreSQL schema used by the postgres fetcher and the
audit trail.

The schema ships inside the binary. Migrations are applied in filename
order, each in its own transaction, and tracked in schema_migrations.

Examples:
  mentionkit db status
  mentionkit db migrate --dry-run
  mentionkit db migrate --yes`,
		Aliases: []string{"database", "migrations"},
	}

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))
	return cmd
}

func newDbMigrateCommand(deps *Deps) *cobra.Command {
	var (
		dryRun bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Long: `Apply pending database migrations.

Pending migrations are listed first and applied after confirmation. If a
migration fails its transaction is rolled back and no further migrations
are attempted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			pool, err := deps.ConnectToDB(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			status, err := db.GetMigrationStatus(cmd.Context(), pool, db.Schema())
			if err != nil {
				return fmt.Errorf("getting migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(status.Pending) == 0 {
				fmt.Fprintln(out, "No pending migrations.")
				return nil
			}

			fmt.Fprintf(out, "Pending migrations (%d):\n", len(status.Pending))
			for _, m := range status.Pending {
				fmt.Fprintf(out, "  %s\n", m.Name)
			}

			if dryRun {
				fmt.Fprintln(out, "Dry run: no migrations applied.")
				return nil
			}

			if !yes && !confirm(cmd.InOrStdin(), out, "Apply these migrations? (y/N): ") {
				fmt.Fprintln(out, "Migration cancelled.")
				return nil
			}

			result, err := db.RunMigrations(cmd.Context(), pool, db.Schema())
			if result != nil {
				for _, v := range result.Applied {
					fmt.Fprintf(out, "  applied %s\n", v)
				}
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Applied %d migration(s).\n", len(result.Applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be applied without executing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without asking for confirmation")
	return cmd
}

func newDbStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long: `Show applied, pending and drifted migrations. Drift is a migration
recorded in the database whose file is no longer bundled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			pool, err := deps.ConnectToDB(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			status, err := db.GetMigrationStatus(cmd.Context(), pool, db.Schema())
			if err != nil {
				return fmt.Errorf("getting migration status: %w", err)
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), status, func(w io.Writer) error {
				return writeMigrationStatus(w, status)
			})
		},
	}
}

func writeMigrationStatus(w io.Writer, status *db.MigrationStatus) error {
	for _, m := range status.Applied {
		fmt.Fprintf(w, "  applied  %-30s %s\n", m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "  pending  %s\n", m.Name)
	}
	for _, m := range status.Drift {
		fmt.Fprintf(w, "  drift    %s\n", m.Name)
	}
	_, err := fmt.Fprintf(w, "\n%d applied, %d pending, %d drift\n",
		len(status.Applied), len(status.Pending), len(status.Drift))
	return err
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
