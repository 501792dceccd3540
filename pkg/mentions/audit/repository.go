package audit

import "context"

// Repository persists the audit trail.
type Repository interface {
	InsertSelections(ctx context.Context, selections []Selection) error
	InsertComment(ctx context.Context, c *Comment) (int64, error)
	ListSelections(ctx context.Context, filter Filter) ([]Selection, error)
	ListComments(ctx context.Context, filter Filter) ([]Comment, error)
	TopHandles(ctx context.Context, scope string, limit int) ([]HandleCount, error)
}
