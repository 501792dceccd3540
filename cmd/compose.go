package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/audit"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/composer"
)

const composeHelp = `Type comment text to see suggestions for the mention at the end of it.
Commands:
  :scope <id>        load the candidates of a scope
  :caret <n>         move the caret (characters) and re-detect
  :pick <n|handle>   insert a suggestion
  :dismiss           hide suggestions
  :show              print the current text and caret
  :submit [bind-id]  finish the comment and show its segments
  :help              this text
  :quit              exit`

// NewComposeCommand creates the interactive compose command.
func NewComposeCommand(deps *Deps) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Interactive comment composer with @-mention suggestions",
		Long: `Start a line-oriented comment composer.

Each line you type replaces the draft and shows suggestions for the mention
at the caret. Pick one with ':pick' to splice it into the draft. When audit
is enabled, picks and submitted comments are recorded.

` + composeHelp + `

Examples:
  mentionkit compose --scope owner-123
  printf ':scope owner-123\nhi @al\n:pick 1\n:submit\n' | mentionkit compose`,
		Args: cobra.NoArgs,
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

			var rec *audit.Recorder
			opts := []composer.Option{composer.WithLogger(deps.log())}
			if auditEnabled(cfg) {
				repo, closeAudit, err := deps.OpenAudit(cfg)
				if err != nil {
					return fmt.Errorf("opening audit store: %w", err)
				}
				defer closeAudit()
				rec = audit.NewRecorder(repo,
					audit.WithBufferSize(cfg.Audit.BufferSize),
					audit.WithRecorderLogger(deps.log()))
				opts = append(opts, composer.WithObserver(rec))
			}

			s := &composeSession{
				ctx:      cmd.Context(),
				out:      cmd.OutOrStdout(),
				composer: composer.New(dir, opts...),
				recorder: rec,
				log:      deps.log(),
			}
			if scope != "" {
				s.loadScope(scope)
			}

			err = s.run(cmd.InOrStdin())

			if rec != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if ferr := rec.Flush(flushCtx); ferr != nil {
					s.log.Warn("could not write audit trail", logging.Err(ferr))
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "scope to load on start")
	return cmd
}

// composeSession is the state of one compose REPL.
type composeSession struct {
	ctx      context.Context
	out      io.Writer
	composer *composer.Composer
	recorder *audit.Recorder
	log      logging.Logger

	text  string
	caret int
	last  composer.Suggestions
}

func (s *composeSession) run(in io.Reader) error {
	fmt.Fprintf(s.out, "session %s (:help for commands)\n", s.composer.SessionID())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		if quit := s.handle(scanner.Text()); quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether to quit.
func (s *composeSession) handle(line string) bool {
	if !strings.HasPrefix(line, ":") {
		s.text = line
		s.caret = utf8.RuneCountInString(line)
		s.refresh()
		return false
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "q", "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(s.out, composeHelp)
	case "scope":
		if arg == "" {
			fmt.Fprintf(s.out, "current scope: %q\n", s.composer.Scope())
			return false
		}
		s.loadScope(arg)
	case "caret":
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(s.out, "bad caret %q\n", arg)
			return false
		}
		s.caret = clampCaret(n, s.text)
		s.refresh()
	case "pick":
		s.pick(arg)
	case "dismiss":
		s.composer.Dismiss()
		s.last = composer.Suggestions{}
		fmt.Fprintln(s.out, "suggestions hidden")
	case "show":
		fmt.Fprintf(s.out, "%s\ncaret: %d\n", s.text, s.caret)
	case "submit":
		s.submit(arg)
	default:
		fmt.Fprintf(s.out, "unknown command :%s (try :help)\n", name)
	}
	return false
}

// clampCaret limits caret to the rune offsets of text, as Detect does.
func clampCaret(caret int, text string) int {
	return max(0, min(caret, utf8.RuneCountInString(text)))
}

func (s *composeSession) loadScope(scope string) {
	state := s.composer.LoadCandidates(s.ctx, scope)
	switch {
	case state.Superseded:
		fmt.Fprintf(s.out, "scope %s superseded\n", scope)
	case state.Err != nil:
		fmt.Fprintf(s.out, "could not load %s: %s\n", scope, fetchMessage(state.Err))
	default:
		fmt.Fprintf(s.out, "scope %s: %d candidates\n", scope, len(state.Candidates))
	}
}

func (s *composeSession) refresh() {
	s.last = s.composer.OnTextChanged(s.text, s.caret)
	if !s.last.Show {
		return
	}
	if len(s.last.Suggestions) == 0 {
		fmt.Fprintf(s.out, "no matches for @%s\n", s.last.Query)
		return
	}
	fmt.Fprintf(s.out, "suggestions for @%s:\n", s.last.Query)
	_ = writeCandidates(s.out, s.last.Suggestions)
}

func (s *composeSession) pick(arg string) {
	if !s.last.Show || len(s.last.Suggestions) == 0 {
		fmt.Fprintln(s.out, "nothing to pick")
		return
	}

	var (
		chosen mentions.Candidate
		ok     bool
	)
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(s.last.Suggestions) {
			chosen, ok = s.last.Suggestions[n-1], true
		}
	} else {
		chosen, ok = findCandidate(s.last.Suggestions, arg)
	}
	if !ok {
		fmt.Fprintf(s.out, "no suggestion %q\n", arg)
		return
	}

	ins := s.composer.OnSuggestionChosen(chosen, s.text, s.caret)
	s.text, s.caret = ins.Text, ins.Caret
	s.last = composer.Suggestions{}
	fmt.Fprintf(s.out, "%s\ncaret: %d\n", s.text, s.caret)
}

func (s *composeSession) submit(bind string) {
	segments := mentions.Parse(s.text, bind)
	for _, seg := range segments {
		if seg.Kind == mentions.SegmentMention {
			fmt.Fprintf(s.out, "[%s]", seg.Content)
		} else {
			fmt.Fprint(s.out, seg.Content)
		}
	}
	fmt.Fprintln(s.out)

	if s.recorder != nil {
		if _, err := s.recorder.RecordComment(s.ctx, s.composer.SessionID(), s.composer.Scope(), bind, s.text); err != nil {
			s.log.Warn("could not record comment", logging.Err(err))
		}
	}

	s.text, s.caret = "", 0
	s.composer.Dismiss()
	s.last = composer.Suggestions{}
}
