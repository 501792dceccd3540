// Package audit keeps a trail of mention activity: which candidate was
// picked for which query, and which handles a finalized comment mentions.
package audit

import (
	"time"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions/composer"
)

// Comment is a finalized comment together with the handles it mentions.
type Comment struct {
	ID            int64     `json:"id,omitempty" yaml:"id,omitempty"`
	SessionID     string    `json:"session_id" yaml:"session_id"`
	Scope         string    `json:"scope" yaml:"scope"`
	BoundEntityID *string   `json:"bound_entity_id,omitempty" yaml:"bound_entity_id,omitempty"`
	Handles       []string  `json:"handles" yaml:"handles"`
	Body          string    `json:"body" yaml:"body"`
	RecordedAt    time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Filter narrows audit queries. Zero values match everything.
type Filter struct {
	Scope     string
	SessionID string
	Since     time.Time
	Limit     int
}

// DefaultLimit applies when Filter.Limit is not set.
const DefaultLimit = 50

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// HandleCount is how often a handle was selected within a scope.
type HandleCount struct {
	Handle string `json:"handle" yaml:"handle"`
	Count  int64  `json:"count" yaml:"count"`
}

// Selection is re-exported so callers of this package need not import composer.
type Selection = composer.Selection
