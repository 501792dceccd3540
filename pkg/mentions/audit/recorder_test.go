package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/composer"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// memoryRepository is an in-memory Repository.
type memoryRepository struct {
	mu         sync.Mutex
	selections []Selection
	comments   []Comment
	failWith   error
}

func (m *memoryRepository) InsertSelections(_ context.Context, s []Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.selections = append(m.selections, s...)
	return nil
}

func (m *memoryRepository) InsertComment(_ context.Context, c *Comment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	m.comments = append(m.comments, *c)
	return int64(len(m.comments)), nil
}

func (m *memoryRepository) ListSelections(context.Context, Filter) ([]Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Selection(nil), m.selections...), nil
}

func (m *memoryRepository) ListComments(context.Context, Filter) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Comment(nil), m.comments...), nil
}

func (m *memoryRepository) TopHandles(context.Context, string, int) ([]HandleCount, error) {
	return nil, nil
}

func (m *memoryRepository) fail(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func selection(handle string) Selection {
	return Selection{
		SessionID: "s-1",
		Scope:     "owner-123",
		Query:     handle[:1],
		Candidate: mentions.Candidate{ID: "id-" + handle, Handle: handle},
		Strategy:  mentions.StrategyRememberedQuery,
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecorder_BuffersUntilFlush(t *testing.T) {
	repo := &memoryRepository{}
	r := NewRecorder(repo, WithBufferSize(10))

	r.MentionSelected(selection("alice"))
	r.MentionSelected(selection("bob"))
	assert.Equal(t, 2, r.Pending())
	assert.Empty(t, repo.selections)

	require.NoError(t, r.Flush(context.Background()))
	assert.Zero(t, r.Pending())
	require.Len(t, repo.selections, 2)
	assert.Equal(t, "alice", repo.selections[0].Candidate.Handle)

	require.NoError(t, r.Flush(context.Background()), "empty flush is a no-op")
}

func TestRecorder_FullBufferFlushes(t *testing.T) {
	repo := &memoryRepository{}
	r := NewRecorder(repo, WithBufferSize(2))

	r.MentionSelected(selection("alice"))
	assert.Empty(t, repo.selections)
	r.MentionSelected(selection("bob"))

	assert.Len(t, repo.selections, 2)
	assert.Zero(t, r.Pending())
}

func TestRecorder_FailureKeepsNewestAndCountsDrops(t *testing.T) {
	repo := &memoryRepository{}
	repo.fail(errors.New("db down"))
	r := NewRecorder(repo, WithBufferSize(2))

	for _, h := range []string{"alice", "bob", "charlie"} {
		r.MentionSelected(selection(h))
	}
	assert.Equal(t, 2, r.Pending())
	assert.Equal(t, 1, r.Dropped())

	repo.fail(nil)
	require.NoError(t, r.Flush(context.Background()))
	require.Len(t, repo.selections, 2)
	assert.Equal(t, "bob", repo.selections[0].Candidate.Handle)
	assert.Equal(t, "charlie", repo.selections[1].Candidate.Handle)
}

func TestRecorder_DefaultBufferSize(t *testing.T) {
	r := NewRecorder(&memoryRepository{}, WithBufferSize(0))
	assert.Equal(t, DefaultBufferSize, r.size)
}

func TestRecorder_RecordComment(t *testing.T) {
	repo := &memoryRepository{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(repo, WithRecorderClock(func() time.Time { return now }))

	c, err := r.RecordComment(context.Background(), "s-1", "owner-123", "u2", "hey @bob and @carol, @bob again")
	require.NoError(t, err)

	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, []string{"bob", "carol"}, c.Handles)
	require.NotNil(t, c.BoundEntityID)
	assert.Equal(t, "u2", *c.BoundEntityID)
	assert.Equal(t, now, c.RecordedAt)
	require.Len(t, repo.comments, 1)
}

func TestRecorder_RecordCommentWithoutMentions(t *testing.T) {
	repo := &memoryRepository{}
	r := NewRecorder(repo)

	c, err := r.RecordComment(context.Background(), "s-1", "owner-123", "u2", "no mentions here")
	require.NoError(t, err)
	assert.Empty(t, c.Handles)
	assert.Nil(t, c.BoundEntityID)
}

func TestRecorder_RecordCommentError(t *testing.T) {
	repo := &memoryRepository{}
	repo.fail(errors.New("db down"))

	_, err := NewRecorder(repo).RecordComment(context.Background(), "s-1", "owner-123", "", "@bob")
	assert.EqualError(t, err, "db down")
}

// TestRecorder_AsComposerObserver drives a composer end to end and checks
// the selection reaches the repository.
func TestRecorder_AsComposerObserver(t *testing.T) {
	repo := &memoryRepository{}
	rec := NewRecorder(repo)

	dir := directory.New(directory.FetcherFunc(func(context.Context, string) (*directory.FetchResult, error) {
		return &directory.FetchResult{Success: true, Data: []mentions.Candidate{
			{ID: "u1", Handle: "alice", DisplayName: "Alice A"},
		}}, nil
	}))
	c := composer.New(dir, composer.WithObserver(rec), composer.WithSessionID("sess-1"))
	c.LoadCandidates(context.Background(), "owner-123")

	sugg := c.OnTextChanged("@al", 3)
	require.True(t, sugg.Show)
	ins := c.OnSuggestionChosen(sugg.Suggestions[0], "@al", 3)
	assert.Equal(t, "@alice ", ins.Text)

	require.NoError(t, rec.Flush(context.Background()))
	require.Len(t, repo.selections, 1)
	got := repo.selections[0]
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "owner-123", got.Scope)
	assert.Equal(t, "al", got.Query)
	assert.Equal(t, mentions.StrategyRememberedQuery, got.Strategy)
}

func TestFilterClauses(t *testing.T) {
	where, args := Filter{}.clauses("selected_at")
	assert.Empty(t, where)
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = Filter{Scope: "s", SessionID: "x", Since: since}.clauses("recorded_at")
	assert.Contains(t, where, "scope = $1 AND session_id = $2 AND recorded_at >= $3")
	assert.Equal(t, []interface{}{"s", "x", since}, args)

	assert.Equal(t, DefaultLimit, Filter{}.limit())
	assert.Equal(t, 5, Filter{Limit: 5}.limit())
}
