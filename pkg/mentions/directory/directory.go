// Package directory caches the mentionable candidates of each scope.
//
// A scope (for example the owner of the content being commented on) is
// fetched at most once while cached; concurrent loads of the same scope
// share a single external call. Only successful fetches are cached, so a
// failed scope is retried on the next Load.
package directory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

// DefaultTimeout bounds a single external fetch.
const DefaultTimeout = 10 * time.Second

// Option configures a Directory.
type Option func(*Directory)

// WithTimeout bounds each external fetch. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(dir *Directory) { dir.timeout = d }
}

// WithFallbackMessage sets the message used when a failure carries none.
func WithFallbackMessage(msg string) Option {
	return func(dir *Directory) { dir.fallback = msg }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(dir *Directory) { dir.log = l }
}

// WithMetrics records cache and fetch metrics.
func WithMetrics(m *Metrics) Option {
	return func(dir *Directory) { dir.metrics = m }
}

// WithTracer wraps external fetches in spans.
func WithTracer(t *Tracer) Option {
	return func(dir *Directory) { dir.tracer = t }
}

// Directory is a per-scope candidate cache in front of a Fetcher.
// It is safe for concurrent use.
type Directory struct {
	fetcher  Fetcher
	timeout  time.Duration
	fallback string
	log      logging.Logger
	metrics  *Metrics
	tracer   *Tracer

	group singleflight.Group

	mu         sync.RWMutex
	entries    map[string][]mentions.Candidate
	generation uint64
}

// New creates a Directory backed by f.
func New(f Fetcher, opts ...Option) *Directory {
	d := &Directory{
		fetcher:  f,
		timeout:  DefaultTimeout,
		fallback: mkerrors.DefaultFetchFailureMessage,
		log:      logging.NewNopLogger(),
		tracer:   NewTracer(),
		entries:  make(map[string][]mentions.Candidate),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load returns the candidates of scope, fetching them on a cache miss.
//
// On failure the returned slice is empty (never nil) and the error is a
// *errors.FetchError whose Message is suitable for display. If ctx ends
// first Load stops waiting; the fetch itself carries on and is cached.
func (d *Directory) Load(ctx context.Context, scope string) ([]mentions.Candidate, error) {
	if cached, ok := d.Cached(scope); ok {
		d.metrics.hit()
		return cached, nil
	}
	d.metrics.miss()

	d.mu.RLock()
	gen := d.generation
	d.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	ch := d.group.DoChan(flightKey(gen, scope), func() (interface{}, error) {
		return d.fetch(detached, scope, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return []mentions.Candidate{}, res.Err
		}
		return slices.Clone(res.Val.([]mentions.Candidate)), nil
	case <-ctx.Done():
		return []mentions.Candidate{}, mkerrors.ClassifyFetchError(ctx.Err(), scope, d.fallback)
	}
}

// Cached returns a copy of the cached candidates of scope.
func (d *Directory) Cached(scope string) ([]mentions.Candidate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.entries[scope]
	if !ok {
		return nil, false
	}
	return slices.Clone(c), true
}

// Scopes returns the cached scopes in sorted order.
func (d *Directory) Scopes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	scopes := make([]string, 0, len(d.entries))
	for s := range d.entries {
		scopes = append(scopes, s)
	}
	slices.Sort(scopes)
	return scopes
}

// Forget drops scope from the cache. A fetch already in flight for it
// will not repopulate the cache.
func (d *Directory) Forget(scope string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.entries, scope)
	d.generation++
	d.metrics.cachedScopes(len(d.entries))
}

// Reset empties the cache. Fetches in flight will not repopulate it.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = make(map[string][]mentions.Candidate)
	d.generation++
	d.metrics.cachedScopes(0)
}

func (d *Directory) fetch(ctx context.Context, scope string, gen uint64) ([]mentions.Candidate, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	ctx, span := d.tracer.StartFetchSpan(ctx, scope)
	log := d.log.WithContext(ctx).With(logging.F("scope", scope))

	start := time.Now()
	res, err := d.fetcher.FetchMentionCandidates(ctx, scope)
	elapsed := time.Since(start)

	var fe *mkerrors.FetchError
	switch {
	case err != nil:
		fe = mkerrors.ClassifyFetchError(err, scope, d.fallback)
	case res == nil:
		fe = mkerrors.NewMalformed(scope, d.fallback)
	case !res.Success:
		fe = mkerrors.NewRejected(scope, res.Error, d.fallback)
	}

	if fe != nil {
		d.metrics.fetched(OutcomeFailure, string(fe.Code), elapsed.Seconds())
		EndFetchSpan(span, 0, string(fe.Code), fe)
		log.Warn("candidate fetch failed",
			logging.F("code", string(fe.Code)),
			logging.F("duration", elapsed),
			logging.Err(fe))
		return nil, fe
	}

	data := mentions.Dedupe(res.Data)
	d.metrics.fetched(OutcomeSuccess, "", elapsed.Seconds())
	EndFetchSpan(span, len(data), "", nil)

	if d.store(scope, gen, data) {
		log.Debug("candidates cached",
			logging.F("candidates", len(data)),
			logging.F("duration", elapsed))
	} else {
		log.Debug("discarding candidates fetched before reset", logging.F("candidates", len(data)))
	}
	return data, nil
}

// store caches data unless the cache was reset after the fetch began.
func (d *Directory) store(scope string, gen uint64, data []mentions.Candidate) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.generation != gen {
		return false
	}
	if _, ok := d.entries[scope]; !ok {
		d.entries[scope] = data
	}
	d.metrics.cachedScopes(len(d.entries))
	return true
}

func flightKey(gen uint64, scope string) string {
	return fmt.Sprintf("%d/%s", gen, scope)
}
