package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PreauthRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*PreauthRequest, error)
	Update(ctx context.Context, p *PreauthRequest) error

	// ListPollable returns submitted preauths with a gateway ref, oldest
	// update first, for the reconciliation poller.
	ListPollable(ctx context.Context, limit int) ([]*PreauthRequest, error)

	// FindByGatewayRef resolves inbound webhook references.
	FindByGatewayRef(ctx context.Context, ref string) (*PreauthRequest, error)
}

type ClaimRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	ListLineItems(ctx context.Context, claimID uuid.UUID) ([]*ClaimLineItem, error)
	ListPollable(ctx context.Context, limit int) ([]*Claim, error)
	FindByGatewayRef(ctx context.Context, ref string) (*Claim, error)
}

type CaseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*InsuranceCase, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, claimedAmount, settledAmount *float64) error
	ListDocuments(ctx context.Context, caseID uuid.UUID) ([]*CaseDocument, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *GatewayTransaction) error
	Update(ctx context.Context, tx *GatewayTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*GatewayTransaction, error)
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*GatewayTransaction, int, error)
	List(ctx context.Context, branchID uuid.UUID, txType string, since *time.Time, limit, offset int) ([]*GatewayTransaction, int, error)

	// FindDuplicateWebhook looks for an already-processed inbound webhook
	// with the same idempotency key.
	FindDuplicateWebhook(ctx context.Context, payerID uuid.UUID, idempotencyKey string) (*GatewayTransaction, error)
}

type DeductionRepository interface {
	Create(ctx context.Context, d *ClaimDeduction) error
	DeleteByClaim(ctx context.Context, claimID uuid.UUID) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ClaimDeduction, error)
}
