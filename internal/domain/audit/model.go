package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one append-only audit record. Gateway submissions, config changes
// and webhook processing all land here with enough context to reconstruct
// who did what against which payer.
type Event struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	Action     string                 `db:"action" json:"action"`
	ActorID    string                 `db:"actor_id" json:"actor_id"`
	BranchID   string                 `db:"branch_id" json:"branch_id"`
	EntityType string                 `db:"entity_type" json:"entity_type"`
	EntityID   string                 `db:"entity_id" json:"entity_id"`
	Meta       map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt  time.Time              `db:"created_at" json:"created_at"`
}

// Actions recorded by the gateway.
const (
	ActionPreauthSubmit = "BILLING_GATEWAY_PREAUTH_SUBMIT"
	ActionClaimSubmit   = "BILLING_GATEWAY_CLAIM_SUBMIT"
	ActionConfigCreate  = "BILLING_PAYER_CONFIG_CREATE"
	ActionConfigUpdate  = "BILLING_PAYER_CONFIG_UPDATE"
	ActionConfigDelete  = "BILLING_PAYER_CONFIG_DELETE"
)
