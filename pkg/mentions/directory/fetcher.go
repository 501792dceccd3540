package directory

import (
	"context"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
)

// FetchResult is the shape every candidate backend answers with.
// Success false, a nil result and a returned error all count as failure.
type FetchResult struct {
	Success bool                 `json:"success" yaml:"success"`
	Data    []mentions.Candidate `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Fetcher loads the mentionable candidates of a scope from an external
// backend. Implementations live in pkg/mentions/fetch.
type Fetcher interface {
	FetchMentionCandidates(ctx context.Context, scope string) (*FetchResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, scope string) (*FetchResult, error)

func (f FetcherFunc) FetchMentionCandidates(ctx context.Context, scope string) (*FetchResult, error) {
	return f(ctx, scope)
}
