package payerconfig

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, cfg *IntegrationConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*IntegrationConfig, error)
	Update(ctx context.Context, cfg *IntegrationConfig) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByBranch(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*IntegrationConfig, int, error)

	// FindActive returns the active config for one branch+payer pair, or nil.
	FindActive(ctx context.Context, branchID, payerID uuid.UUID) (*IntegrationConfig, error)

	// FindActiveByPayer resolves inbound webhooks, which carry only a payer id.
	FindActiveByPayer(ctx context.Context, payerID uuid.UUID) (*IntegrationConfig, error)
}
