package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/db"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/fetch"
)

// Check states reported by the health command.
const (
	CheckOK      = "ok"
	CheckFailed  = "failed"
	CheckSkipped = "skipped"
)

// HealthCheck is the outcome of one probe.
type HealthCheck struct {
	Name    string        `json:"name" yaml:"name"`
	Status  string        `json:"status" yaml:"status"`
	Latency time.Duration `json:"latency_ns,omitempty" yaml:"latency,omitempty"`
	Detail  string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// HealthReport is the output of the health command.
type HealthReport struct {
	Healthy bool          `json:"healthy" yaml:"healthy"`
	Checks  []HealthCheck `json:"checks" yaml:"checks"`
}

func (r *HealthReport) add(c HealthCheck) {
	if c.Status == CheckFailed {
		r.Healthy = false
	}
	r.Checks = append(r.Checks, c)
}

// NewHealthCommand creates the health command.
func NewHealthCommand(deps *Deps) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the candidate backend, database and cache",
		Long: `Probe everything mentionkit is configured to talk to.

  candidates  fetches --scope through the configured fetcher
  database    pings PostgreSQL and reports pool statistics
  redis       pings the candidate cache

Checks for unconfigured components are skipped. The command exits non-zero
when any check fails.

Examples:
  mentionkit health
  mentionkit health --scope owner-123 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			report := runHealthChecks(cmd.Context(), deps, cfg, scope)

			err = Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), report, func(w io.Writer) error {
				for _, c := range report.Checks {
					line := fmt.Sprintf("%-11s %-8s", c.Name, c.Status)
					if c.Latency > 0 {
						line += fmt.Sprintf(" %8s", c.Latency.Round(time.Millisecond))
					}
					if c.Detail != "" {
						line += "  " + c.Detail
					}
					fmt.Fprintln(w, line)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if !report.Healthy {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "scope to fetch as a candidate backend probe")
	return cmd
}

func runHealthChecks(ctx context.Context, deps *Deps, cfg *config.CLIConfig, scope string) *HealthReport {
	report := &HealthReport{Healthy: true, Checks: []HealthCheck{}}
	report.add(checkCandidates(ctx, deps, cfg, scope))
	report.add(checkDatabase(ctx, deps, cfg))
	report.add(checkRedis(ctx, cfg))
	return report
}

func checkCandidates(ctx context.Context, deps *Deps, cfg *config.CLIConfig, scope string) HealthCheck {
	c := HealthCheck{Name: "candidates"}
	if scope == "" {
		c.Status, c.Detail = CheckSkipped, "pass --scope to probe the "+string(cfg.Fetcher)+" fetcher"
		return c
	}

	dir, closeFn, err := deps.newDirectory(ctx, cfg)
	if err != nil {
		c.Status, c.Detail = CheckFailed, err.Error()
		return c
	}
	defer closeFn()

	start := time.Now()
	list, err := dir.Load(ctx, scope)
	c.Latency = time.Since(start)
	if err != nil {
		c.Status, c.Detail = CheckFailed, err.Error()
		return c
	}
	c.Status, c.Detail = CheckOK, fmt.Sprintf("%d candidates via %s", len(list), cfg.Fetcher)
	return c
}

func checkDatabase(ctx context.Context, deps *Deps, cfg *config.CLIConfig) HealthCheck {
	c := HealthCheck{Name: "database"}
	if !cfg.Database.IsConfigured() {
		c.Status, c.Detail = CheckSkipped, "not configured"
		return c
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		c.Status, c.Detail = CheckFailed, err.Error()
		return c
	}
	defer pool.Close()

	status := db.Check(ctx, pool)
	c.Latency = status.Latency
	if !status.Healthy {
		c.Status, c.Detail = CheckFailed, status.Error.Error()
		return c
	}
	c.Status = CheckOK
	c.Detail = fmt.Sprintf("%d conns (%d idle, %d acquired)", status.TotalConns, status.IdleConns, status.AcquiredConns)
	return c
}

func checkRedis(ctx context.Context, cfg *config.CLIConfig) HealthCheck {
	c := HealthCheck{Name: "redis"}
	if !cfg.Redis.IsConfigured() {
		c.Status, c.Detail = CheckSkipped, "not configured"
		return c
	}

	start := time.Now()
	client, err := fetch.NewRedisClient(ctx, cfg.Redis)
	c.Latency = time.Since(start)
	if err != nil {
		c.Status, c.Detail = CheckFailed, err.Error()
		return c
	}
	defer client.Close()

	c.Status, c.Detail = CheckOK, cfg.Redis.Addr
	return c
}
