package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/platform/auth"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Log appends one audit event, taking the actor from the request context.
// Auditing is best-effort: a write failure is logged but never fails the
// operation being audited.
func (s *Service) Log(ctx context.Context, action, entityType, entityID string, meta map[string]interface{}) {
	e := &Event{
		Action:     action,
		ActorID:    auth.UserIDFromContext(ctx),
		BranchID:   auth.BranchIDFromContext(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Meta:       meta,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("audit write failed")
	}
}

func (s *Service) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Event, int, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID, limit, offset)
}
