package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/composer"
)

// SuggestResult is the output of the suggest command.
type SuggestResult struct {
	Scope       string               `json:"scope" yaml:"scope"`
	Show        bool                 `json:"show" yaml:"show"`
	Query       string               `json:"query" yaml:"query"`
	Suggestions []mentions.Candidate `json:"suggestions" yaml:"suggestions"`
	Error       string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewCandidatesCommand creates the candidates command.
func NewCandidatesCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates <scope>",
		Short: "List the people that can be mentioned in a scope",
		Long: `Fetch and list the mentionable candidates of a scope from the
configured backend (grpc, postgres or file).

Examples:
  mentionkit candidates owner-123
  mentionkit candidates owner-123 --output yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			dir, closeFn, err := deps.newDirectory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := dir.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), list, func(w io.Writer) error {
				return writeCandidates(w, list)
			})
		},
	}
	return cmd
}

func writeCandidates(w io.Writer, list []mentions.Candidate) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No candidates.")
		return err
	}
	for i, c := range list {
		if _, err := fmt.Fprintf(w, "%2d. @%-20s %-24s %s\n", i+1, c.Label(), c.DisplayName, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(deps *Deps) *cobra.Command {
	var (
		scope string
		caret int
	)

	cmd := &cobra.Command{
		Use:   "suggest <text>",
		Short: "Show suggestions for the mention being typed",
		Long: `Detect the @-mention at the caret and list the scope's candidates
whose handle or display name starts with the query (case-insensitive).

A failed candidate load is reported but still yields an empty list.

Examples:
  mentionkit suggest "hi @al" --scope owner-123
  mentionkit suggest "hi @" --scope owner-123 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scope == "" {
				return fmt.Errorf("--scope is required")
			}
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			dir, closeFn, err := deps.newDirectory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			c := composer.New(dir, composer.WithLogger(deps.log()))
			state := c.LoadCandidates(cmd.Context(), scope)

			text := args[0]
			sugg := c.OnTextChanged(text, caretOrEnd(text, caret))
			res := SuggestResult{Scope: scope, Show: sugg.Show, Query: sugg.Query, Suggestions: sugg.Suggestions}
			if state.Err != nil {
				res.Error = fetchMessage(state.Err)
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), res, func(w io.Writer) error {
				if res.Error != "" {
					fmt.Fprintf(w, "Warning: %s\n", res.Error)
				}
				if !res.Show {
					_, err := fmt.Fprintln(w, "No active mention.")
					return err
				}
				fmt.Fprintf(w, "Suggestions for @%s:\n", res.Query)
				return writeCandidates(w, res.Suggestions)
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "scope whose candidates are suggested (required)")
	cmd.Flags().IntVar(&caret, "caret", -1, "caret position in characters (default: end of text)")
	return cmd
}

// fetchMessage returns the human-readable part of a fetch failure.
func fetchMessage(err error) string {
	var fe *mkerrors.FetchError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(deps *Deps) *cobra.Command {
	var (
		scope string
		pick  string
		query string
		caret int
	)

	cmd := &cobra.Command{
		Use:   "insert <text>",
		Short: "Insert a chosen candidate at the mention being typed",
		Long: `Replace the in-progress @query with "@handle " and print the new text
and caret.

The span is found from the remembered query first (--query, defaulting to
the mention detected at the caret) and falls back to the mention under the
caret. When neither is found the text is printed unchanged.

Examples:
  mentionkit insert "@al" --scope owner-123 --pick alice
  mentionkit insert "say @ch to" --scope owner-123 --pick charlie --query ch --caret 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scope == "" || pick == "" {
				return fmt.Errorf("--scope and --pick are required")
			}
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			dir, closeFn, err := deps.newDirectory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := dir.Load(cmd.Context(), scope)
			if err != nil {
				return err
			}
			candidate, ok := findCandidate(list, pick)
			if !ok {
				return fmt.Errorf("%w: no candidate %q in scope %s", mkerrors.ErrNotFound, pick, scope)
			}

			text := args[0]
			at := caretOrEnd(text, caret)
			if !cmd.Flags().Changed("query") {
				if active, ok := mentions.Detect(text, at); ok {
					query = active.Query
				}
			}

			ins, err := mentions.Insert(candidate, text, query, at)
			if err != nil {
				deps.log().Warn("no mention to replace", logging.Err(err))
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), ins, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\ncaret: %d (%s)\n", ins.Text, ins.Caret, ins.Strategy)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "scope to load candidates from (required)")
	cmd.Flags().StringVar(&pick, "pick", "", "handle or ID of the chosen candidate (required)")
	cmd.Flags().StringVar(&query, "query", "", "remembered query (default: detected at the caret)")
	cmd.Flags().IntVar(&caret, "caret", -1, "caret position in characters (default: end of text)")
	return cmd
}

// findCandidate matches by ID, then by handle ignoring case.
func findCandidate(list []mentions.Candidate, key string) (mentions.Candidate, bool) {
	key = strings.TrimPrefix(key, "@")
	for _, c := range list {
		if c.ID == key {
			return c, true
		}
	}
	for _, c := range list {
		if strings.EqualFold(c.Handle, key) {
			return c, true
		}
	}
	return mentions.Candidate{}, false
}
