// Package composer is the stateful layer a comment box talks to. It keeps
// the active query between keystrokes, the current scope's candidates and
// the in-flight load bookkeeping, and delegates the text work to the pure
// functions in package mentions.
package composer

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

// Loader returns the candidates of a scope. *directory.Directory satisfies it.
type Loader interface {
	Load(ctx context.Context, scope string) ([]mentions.Candidate, error)
}

// Suggestions is the result of a text change.
type Suggestions struct {
	Show        bool                 `json:"show"`
	Query       string               `json:"query"`
	Suggestions []mentions.Candidate `json:"suggestions"`
}

// LoadState is the result of LoadCandidates.
type LoadState struct {
	Scope      string               `json:"scope"`
	Loading    bool                 `json:"loading"`
	Candidates []mentions.Candidate `json:"candidates"`

	// Superseded is set when the scope changed while this load was in
	// flight and its result was discarded.
	Superseded bool `json:"superseded,omitempty"`

	// Err carries the fetch diagnostic. Candidates is empty when set.
	Err error `json:"-"`
}

// Selection describes a chosen candidate.
type Selection struct {
	SessionID string             `json:"session_id"`
	Scope     string             `json:"scope"`
	Query     string             `json:"query"`
	Candidate mentions.Candidate `json:"candidate"`
	Strategy  mentions.Strategy  `json:"strategy"`
	At        time.Time          `json:"at"`
}

// Observer is notified of every successful selection.
type Observer interface {
	MentionSelected(Selection)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Selection)

func (f ObserverFunc) MentionSelected(s Selection) { f(s) }

// Option configures a Composer.
type Option func(*Composer)

// WithObserver registers an observer for selections.
func WithObserver(o Observer) Option {
	return func(c *Composer) { c.observer = o }
}

// WithLogger sets the composer logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Composer) { c.log = l }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(c *Composer) { c.sessionID = id }
}

// WithClock overrides time.Now for selection timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// Composer holds the mention state of one comment box. It is safe for
// concurrent use; LoadCandidates may run while text changes are handled.
type Composer struct {
	loader    Loader
	observer  Observer
	log       logging.Logger
	sessionID string
	now       func() time.Time

	mu         sync.Mutex
	scope      string
	candidates []mentions.Candidate
	pending    map[string]int
	query      string
	active     bool
}

// New creates a Composer loading candidates through loader.
func New(loader Loader, opts ...Option) *Composer {
	c := &Composer{
		loader:    loader,
		log:       logging.NewNopLogger(),
		sessionID: uuid.NewString(),
		now:       time.Now,
		pending:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logging.F("session_id", c.sessionID))
	return c
}

// SessionID identifies this composer in logs and audit records.
func (c *Composer) SessionID() string {
	return c.sessionID
}

// Scope returns the scope of the most recent LoadCandidates call.
func (c *Composer) Scope() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// Candidates returns the installed candidates of the current scope.
func (c *Composer) Candidates() []mentions.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.candidates)
}

// Loading reports whether a load for the current scope is in flight.
func (c *Composer) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[c.scope] > 0
}

// LoadCandidates makes scope current and loads its candidates. Switching
// to a new scope clears the installed candidates at once; a load that
// finishes after its scope stopped being current is discarded.
func (c *Composer) LoadCandidates(ctx context.Context, scope string) LoadState {
	c.mu.Lock()
	if scope != c.scope {
		c.scope = scope
		c.candidates = nil
	}
	c.pending[scope]++
	c.mu.Unlock()

	ctx = context.WithValue(ctx, logging.ScopeKey, scope)
	candidates, err := c.loader.Load(ctx, scope)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[scope]--
	if c.pending[scope] <= 0 {
		delete(c.pending, scope)
	}

	if scope != c.scope {
		c.log.Debug("discarding candidates of superseded scope",
			logging.F("scope", scope), logging.F("current_scope", c.scope))
		return LoadState{
			Scope:      scope,
			Loading:    c.pending[c.scope] > 0,
			Candidates: []mentions.Candidate{},
			Superseded: true,
		}
	}

	if err != nil {
		c.log.WithContext(ctx).Warn("candidate load failed", logging.Err(err))
		c.candidates = []mentions.Candidate{}
		return LoadState{
			Scope:      scope,
			Loading:    c.pending[scope] > 0,
			Candidates: []mentions.Candidate{},
			Err:        err,
		}
	}

	c.candidates = candidates
	return LoadState{
		Scope:      scope,
		Loading:    c.pending[scope] > 0,
		Candidates: slices.Clone(candidates),
	}
}

// OnTextChanged re-detects the active mention and filters the candidates.
func (c *Composer) OnTextChanged(text string, caret int) Suggestions {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, ok := mentions.Detect(text, caret)
	if !ok {
		c.query, c.active = "", false
		return Suggestions{Suggestions: []mentions.Candidate{}}
	}

	c.query, c.active = active.Query, true
	return Suggestions{
		Show:        true,
		Query:       active.Query,
		Suggestions: mentions.Filter(active.Query, c.candidates),
	}
}

// ActiveQuery returns the remembered query and whether a mention is active.
func (c *Composer) ActiveQuery() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query, c.active
}

// OnSuggestionChosen inserts candidate at the remembered query, falling
// back to caret. The active state is cleared either way. When no mention
// can be located the text and caret come back unchanged.
func (c *Composer) OnSuggestionChosen(candidate mentions.Candidate, text string, caret int) mentions.Insertion {
	c.mu.Lock()
	query, scope := c.query, c.scope
	c.query, c.active = "", false
	c.mu.Unlock()

	ins, err := mentions.Insert(candidate, text, query, caret)
	if err != nil {
		if mkerrors.IsNoActiveMention(err) {
			c.log.Warn("suggestion chosen without an active mention",
				logging.F("candidate_id", candidate.ID),
				logging.F("caret", caret),
				logging.Err(err))
		}
		return ins
	}

	c.log.Debug("mention inserted",
		logging.F("candidate_id", candidate.ID),
		logging.F("strategy", string(ins.Strategy)))

	if c.observer != nil {
		c.observer.MentionSelected(Selection{
			SessionID: c.sessionID,
			Scope:     scope,
			Query:     query,
			Candidate: candidate,
			Strategy:  ins.Strategy,
			At:        c.now(),
		})
	}
	return ins
}

// Dismiss clears the active mention without touching the text.
func (c *Composer) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query, c.active = "", false
}
