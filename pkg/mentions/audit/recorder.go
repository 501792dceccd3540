package audit

import (
	"context"
	"sync"
	"time"

	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

// DefaultBufferSize is used when the configured buffer size is not positive.
const DefaultBufferSize = 32

// autoFlushTimeout bounds the flush triggered by a full buffer.
const autoFlushTimeout = 5 * time.Second

// Recorder buffers composer selections and writes them to a Repository.
// It satisfies composer.Observer.
type Recorder struct {
	repo Repository
	size int
	log  logging.Logger
	now  func() time.Time

	mu      sync.Mutex
	pending []Selection
	dropped int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBufferSize sets how many selections are held before a flush is forced.
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.size = n
		}
	}
}

// WithRecorderLogger sets the recorder logger.
func WithRecorderLogger(l logging.Logger) RecorderOption {
	return func(r *Recorder) { r.log = l }
}

// WithRecorderClock overrides the clock used for comment timestamps.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo: repo,
		size: DefaultBufferSize,
		log:  logging.NewNopLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MentionSelected buffers s. A full buffer is flushed before returning.
func (r *Recorder) MentionSelected(s Selection) {
	r.mu.Lock()
	r.pending = append(r.pending, s)
	full := len(r.pending) >= r.size
	r.mu.Unlock()

	if !full {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoFlushTimeout)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		r.log.Warn("audit flush failed", logging.Err(err))
	}
}

// Pending returns the number of buffered selections.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dropped returns how many selections were discarded because the buffer
// overflowed while the repository was failing.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Flush writes every buffered selection. On failure the selections are
// kept for the next flush, up to the buffer size; the oldest are dropped.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := r.repo.InsertSelections(ctx, batch); err != nil {
		r.mu.Lock()
		merged := append(batch, r.pending...)
		if over := len(merged) - r.size; over > 0 {
			r.dropped += over
			merged = merged[over:]
		}
		r.pending = merged
		r.mu.Unlock()
		return err
	}

	r.log.Debug("audit selections flushed", logging.F("count", len(batch)))
	return nil
}

// RecordComment parses body and stores it with the handles it mentions.
// The first mention is bound to boundEntityID when that is non-empty.
func (r *Recorder) RecordComment(ctx context.Context, sessionID, scope, boundEntityID, body string) (*Comment, error) {
	segments := mentions.Parse(body, boundEntityID)

	c := &Comment{
		SessionID:  sessionID,
		Scope:      scope,
		Handles:    mentions.Handles(segments),
		Body:       body,
		RecordedAt: r.now().UTC(),
	}
	for _, seg := range segments {
		if seg.IsFirst {
			c.BoundEntityID = seg.BoundEntityID
			break
		}
	}

	id, err := r.repo.InsertComment(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}
