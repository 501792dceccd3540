package cmd

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

// DetectResult is the output of the detect command.
type DetectResult struct {
	Text   string `json:"text" yaml:"text"`
	Caret  int    `json:"caret" yaml:"caret"`
	Active bool   `json:"active" yaml:"active"`
	Query  string `json:"query,omitempty" yaml:"query,omitempty"`
	Anchor int    `json:"anchor,omitempty" yaml:"anchor,omitempty"`
}

// ParseResult is the output of the parse command.
type ParseResult struct {
	Segments []mentions.Segment `json:"segments" yaml:"segments"`
	Handles  []string           `json:"handles" yaml:"handles"`
}

// caretOrEnd maps a negative caret to the end of text.
func caretOrEnd(text string, caret int) int {
	if caret < 0 {
		return utf8.RuneCountInString(text)
	}
	return caret
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(deps *Deps) *cobra.Command {
	var caret int

	cmd := &cobra.Command{
		Use:   "detect <text>",
		Short: "Show the @-mention being typed at the caret",
		Long: `Show the in-progress @-mention at the caret position.

The caret is a character (rune) offset into the text and defaults to the
end. A mention is active when the last '@' before the caret starts the
text or follows a space or newline, and no space follows it.

Examples:
  mentionkit detect "hi @al"
  mentionkit detect "hi @al there" --caret 6
  mentionkit detect "mail a@b" --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			text := args[0]
			res := DetectResult{Text: text, Caret: caretOrEnd(text, caret)}
			if active, ok := mentions.Detect(text, res.Caret); ok {
				res.Active, res.Query, res.Anchor = true, active.Query, active.Anchor
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), res, func(w io.Writer) error {
				if !res.Active {
					_, err := fmt.Fprintln(w, "No active mention.")
					return err
				}
				_, err := fmt.Fprintf(w, "Active mention: @%s (anchor %d)\n", res.Query, res.Anchor)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&caret, "caret", -1, "caret position in characters (default: end of text)")
	return cmd
}

// NewParseCommand creates the parse command.
func NewParseCommand(deps *Deps) *cobra.Command {
	var (
		bind    string
		record  bool
		scope   string
		session string
	)

	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Split finalized text into text and mention segments",
		Long: `Split finalized comment text into plain text and @mention segments.

Every '@' followed by letters, digits or underscores is a mention. The
first mention is marked and, with --bind, tied to an entity ID. Joining the
segment contents gives back the input exactly.

With --record the comment and its handles are written to the audit
tables (requires audit to be enabled and a database).

Examples:
  mentionkit parse "hey @bob and @carol"
  mentionkit parse "hey @bob" --bind u2 --output json
  mentionkit parse "hey @bob" --bind u2 --record --scope owner-123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}

			segments := mentions.Parse(args[0], bind)
			res := ParseResult{Segments: segments, Handles: mentions.Handles(segments)}
			if res.Handles == nil {
				res.Handles = []string{}
			}

			if record {
				if err := recordComment(cmd, deps, cfg, session, scope, bind, args[0]); err != nil {
					return err
				}
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), res, func(w io.Writer) error {
				for _, s := range res.Segments {
					switch {
					case s.Kind == mentions.SegmentText:
						fmt.Fprintf(w, "text     %q\n", s.Content)
					case s.BoundEntityID != nil:
						fmt.Fprintf(w, "mention  %-20s first, bound to %s\n", s.Content, *s.BoundEntityID)
					case s.IsFirst:
						fmt.Fprintf(w, "mention  %-20s first\n", s.Content)
					default:
						fmt.Fprintf(w, "mention  %s\n", s.Content)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "entity ID bound to the first mention")
	cmd.Flags().BoolVar(&record, "record", false, "record the comment in the audit trail")
	cmd.Flags().StringVar(&scope, "scope", "", "scope recorded with the comment")
	cmd.Flags().StringVar(&session, "session", "cli", "session ID recorded with the comment")
	return cmd
}
