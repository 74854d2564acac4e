package audit

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, e *Event) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Event, int, error)
}
