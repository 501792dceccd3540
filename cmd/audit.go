package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/audit"
)

// auditEnabled reports whether the audit trail is switched on.
func auditEnabled(cfg *config.CLIConfig) bool {
	return cfg.Audit != nil && cfg.Audit.Enabled
}

func recordComment(cmd *cobra.Command, deps *Deps, cfg *config.CLIConfig, session, scope, bind, body string) error {
	if !auditEnabled(cfg) {
		return fmt.Errorf("audit is not enabled: set audit.enabled in the config file")
	}

	repo, closeFn, err := deps.OpenAudit(cfg)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer closeFn()

	c, err := audit.NewRecorder(repo, audit.WithRecorderLogger(deps.log())).
		RecordComment(cmd.Context(), session, scope, bind, body)
	if err != nil {
		return fmt.Errorf("recording comment: %w", err)
	}
	deps.log().Info("comment recorded", logging.F("comment_id", c.ID), logging.F("handles", c.Handles))
	return nil
}

// NewAuditCommand creates the audit command group.
func NewAuditCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the mention audit trail",
		Long: `Inspect recorded mention selections and comments.

Selections are written by 'mentionkit compose' when audit is enabled;
comments by 'mentionkit parse --record' and ':submit' in compose.

Examples:
  mentionkit audit selections --scope owner-123
  mentionkit audit comments --since 24h
  mentionkit audit top --scope owner-123 --limit 5`,
	}

	cmd.AddCommand(newAuditSelectionsCommand(deps))
	cmd.AddCommand(newAuditCommentsCommand(deps))
	cmd.AddCommand(newAuditTopCommand(deps))
	return cmd
}

type auditFilterFlags struct {
	scope   string
	session string
	since   time.Duration
	limit   int
}

func (f *auditFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.scope, "scope", "", "only this scope")
	cmd.Flags().StringVar(&f.session, "session", "", "only this session")
	cmd.Flags().DurationVar(&f.since, "since", 0, "only entries newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&f.limit, "limit", audit.DefaultLimit, "maximum entries")
}

func (f *auditFilterFlags) filter(now time.Time) audit.Filter {
	out := audit.Filter{Scope: f.scope, SessionID: f.session, Limit: f.limit}
	if f.since > 0 {
		out.Since = now.Add(-f.since)
	}
	return out
}

// withAudit loads the config, opens the audit repository and runs fn.
func withAudit(cmd *cobra.Command, deps *Deps, fn func(ctx context.Context, cfg *config.CLIConfig, repo audit.Repository) error) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := deps.OpenAudit(cfg)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer closeFn()
	return fn(cmd.Context(), cfg, repo)
}

func newAuditSelectionsCommand(deps *Deps) *cobra.Command {
	var flags auditFilterFlags

	cmd := &cobra.Command{
		Use:   "selections",
		Short: "List recorded selections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAudit(cmd, deps, func(ctx context.Context, cfg *config.CLIConfig, repo audit.Repository) error {
				list, err := repo.ListSelections(ctx, flags.filter(time.Now()))
				if err != nil {
					return err
				}
				if list == nil {
					list = []audit.Selection{}
				}
				return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), list, func(w io.Writer) error {
					if len(list) == 0 {
						fmt.Fprintln(w, "No selections recorded.")
						return nil
					}
					fmt.Fprintf(w, "%-20s  %-16s  %-10s  %-16s  %s\n", "TIME", "SCOPE", "QUERY", "HANDLE", "STRATEGY")
					for _, s := range list {
						fmt.Fprintf(w, "%-20s  %-16s  %-10s  %-16s  %s\n",
							s.At.Format(time.DateTime), s.Scope, "@"+s.Query, s.Candidate.Handle, s.Strategy)
					}
					return nil
				})
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newAuditCommentsCommand(deps *Deps) *cobra.Command {
	var flags auditFilterFlags

	cmd := &cobra.Command{
		Use:   "comments",
		Short: "List recorded comments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAudit(cmd, deps, func(ctx context.Context, cfg *config.CLIConfig, repo audit.Repository) error {
				list, err := repo.ListComments(ctx, flags.filter(time.Now()))
				if err != nil {
					return err
				}
				if list == nil {
					list = []audit.Comment{}
				}
				return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), list, func(w io.Writer) error {
					if len(list) == 0 {
						fmt.Fprintln(w, "No comments recorded.")
						return nil
					}
					for _, c := range list {
						fmt.Fprintf(w, "%s  %s  [%s]\n  %s\n",
							c.RecordedAt.Format(time.DateTime), c.Scope, strings.Join(c.Handles, ", "), c.Body)
					}
					return nil
				})
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newAuditTopCommand(deps *Deps) *cobra.Command {
	var (
		scope string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most selected handles in a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scope == "" {
				return fmt.Errorf("--scope is required")
			}
			return withAudit(cmd, deps, func(ctx context.Context, cfg *config.CLIConfig, repo audit.Repository) error {
				top, err := repo.TopHandles(ctx, scope, limit)
				if err != nil {
					return err
				}
				if top == nil {
					top = []audit.HandleCount{}
				}
				return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), top, func(w io.Writer) error {
					for i, hc := range top {
						fmt.Fprintf(w, "%2d. @%-20s %d\n", i+1, hc.Handle, hc.Count)
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "scope to rank (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of handles")
	return cmd
}
