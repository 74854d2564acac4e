package gateway

import (
	"time"

	"github.com/google/uuid"
)

// Preauth lifecycle statuses.
const (
	PreauthStatusDraft       = "DRAFT"
	PreauthStatusSubmitted   = "SUBMITTED"
	PreauthStatusApproved    = "PREAUTH_APPROVED"
	PreauthStatusRejected    = "PREAUTH_REJECTED"
	PreauthStatusQueryRaised = "PREAUTH_QUERY_RAISED"
	PreauthStatusExpired     = "PREAUTH_EXPIRED"
)

// Claim lifecycle statuses.
const (
	ClaimStatusDraft             = "DRAFT"
	ClaimStatusSubmitted         = "SUBMITTED"
	ClaimStatusAcknowledged      = "CLAIM_ACKNOWLEDGED"
	ClaimStatusUnderReview       = "CLAIM_UNDER_REVIEW"
	ClaimStatusApproved          = "CLAIM_APPROVED"
	ClaimStatusPartiallyApproved = "CLAIM_PARTIALLY_APPROVED"
	ClaimStatusRejected          = "CLAIM_REJECTED"
	ClaimStatusQueryRaised       = "CLAIM_QUERY_RAISED"
	ClaimStatusDeducted          = "CLAIM_DEDUCTED"
	ClaimStatusPaid              = "CLAIM_PAID"
)

// Insurance case statuses touched by gateway outcomes.
const (
	CaseStatusPreauthApproved = "PREAUTH_APPROVED"
	CaseStatusClaimApproved   = "CLAIM_APPROVED"
	CaseStatusSettled         = "SETTLED"
)

// Gateway transaction types.
const (
	TxTypePreauthSubmit  = "PREAUTH_SUBMIT"
	TxTypeClaimSubmit    = "CLAIM_SUBMIT"
	TxTypeStatusCheck    = "STATUS_CHECK"
	TxTypeWebhookInbound = "WEBHOOK_INBOUND"
	TxTypeCoverageCheck  = "COVERAGE_CHECK"
)

// Gateway transaction statuses.
const (
	TxStatusQueued           = "QUEUED"
	TxStatusSent             = "SENT"
	TxStatusFailed           = "FAILED"
	TxStatusResponseReceived = "GATEWAY_RESPONSE_RECEIVED"
)

// Entity types referenced by transactions and webhooks.
const (
	EntityPreauth = "PREAUTH"
	EntityClaim   = "CLAIM"
	EntityWebhook = "WEBHOOK"
)

// PreauthRequest is a pre-authorization request tied to an insurance case.
type PreauthRequest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CaseID          uuid.UUID  `db:"case_id" json:"case_id"`
	BranchID        uuid.UUID  `db:"branch_id" json:"branch_id"`
	PayerID         uuid.UUID  `db:"payer_id" json:"payer_id"`
	Status          string     `db:"status" json:"status"`
	RequestedAmount float64    `db:"requested_amount" json:"requested_amount"`
	ApprovedAmount  *float64   `db:"approved_amount" json:"approved_amount,omitempty"`
	PackageCode     string     `db:"package_code" json:"package_code"`
	DiagnosisCodes  []string   `db:"diagnosis_codes" json:"diagnosis_codes"`
	ProcedureCodes  []string   `db:"procedure_codes" json:"procedure_codes"`
	TreatingDoctor  string     `db:"treating_doctor" json:"treating_doctor"`
	AdmissionDate   *time.Time `db:"admission_date" json:"admission_date,omitempty"`
	GatewayRefID    *string    `db:"gateway_ref_id" json:"gateway_ref_id,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Claim is a reimbursement claim tied to an insurance case.
type Claim struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CaseID          uuid.UUID  `db:"case_id" json:"case_id"`
	BranchID        uuid.UUID  `db:"branch_id" json:"branch_id"`
	PayerID         uuid.UUID  `db:"payer_id" json:"payer_id"`
	ClaimNumber     string     `db:"claim_number" json:"claim_number"`
	Status          string     `db:"status" json:"status"`
	BillNumber      string     `db:"bill_number" json:"bill_number"`
	TotalAmount     float64    `db:"total_amount" json:"total_amount"`
	ClaimedAmount   float64    `db:"claimed_amount" json:"claimed_amount"`
	ApprovedAmount  *float64   `db:"approved_amount" json:"approved_amount,omitempty"`
	PaidAmount      *float64   `db:"paid_amount" json:"paid_amount,omitempty"`
	DeductedAmount  *float64   `db:"deducted_amount" json:"deducted_amount,omitempty"`
	DiagnosisCodes  []string   `db:"diagnosis_codes" json:"diagnosis_codes"`
	ProcedureCodes  []string   `db:"procedure_codes" json:"procedure_codes"`
	GatewayRefID    *string    `db:"gateway_ref_id" json:"gateway_ref_id,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AdmissionDate   *time.Time `db:"admission_date" json:"admission_date,omitempty"`
	DischargeDate   *time.Time `db:"discharge_date" json:"discharge_date,omitempty"`
	SubmittedAt     *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	AcknowledgedAt  *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type ClaimLineItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClaimID     uuid.UUID `db:"claim_id" json:"claim_id"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	Quantity    float64   `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	Amount      float64   `db:"amount" json:"amount"`
}

// InsuranceCase is the umbrella record tying a patient admission to its
// policy, preauths and claims.
type InsuranceCase struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	BranchID      uuid.UUID  `db:"branch_id" json:"branch_id"`
	PayerID       uuid.UUID  `db:"payer_id" json:"payer_id"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	PatientDOB    *time.Time `db:"patient_dob" json:"patient_dob,omitempty"`
	PatientGender string     `db:"patient_gender" json:"patient_gender"`
	PolicyNumber  string     `db:"policy_number" json:"policy_number"`
	MemberID      *string    `db:"member_id" json:"member_id,omitempty"`
	ProviderCode  string     `db:"provider_code" json:"provider_code"`
	Status        string     `db:"status" json:"status"`
	ClaimedAmount *float64   `db:"claimed_amount" json:"claimed_amount,omitempty"`
	SettledAmount *float64   `db:"settled_amount" json:"settled_amount,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveMemberID falls back to the policy number when the payer never
// issued a separate member id.
func (c *InsuranceCase) EffectiveMemberID() string {
	if c.MemberID != nil && *c.MemberID != "" {
		return *c.MemberID
	}
	return c.PolicyNumber
}

type CaseDocument struct {
	ID      uuid.UUID `db:"id" json:"id"`
	CaseID  uuid.UUID `db:"case_id" json:"case_id"`
	DocType string    `db:"doc_type" json:"doc_type"`
	Name    string    `db:"name" json:"name"`
	URL     string    `db:"url" json:"url"`
}

// GatewayTransaction is one row in the audit ledger of payer exchanges.
// Every submission, status check and inbound webhook leaves exactly one.
type GatewayTransaction struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	BranchID        uuid.UUID              `db:"branch_id" json:"branch_id"`
	PayerID         uuid.UUID              `db:"payer_id" json:"payer_id"`
	TxType          string                 `db:"tx_type" json:"tx_type"`
	TxStatus        string                 `db:"tx_status" json:"tx_status"`
	EntityType      string                 `db:"entity_type" json:"entity_type"`
	EntityID        string                 `db:"entity_id" json:"entity_id"`
	ExternalRefID   *string                `db:"external_ref_id" json:"external_ref_id,omitempty"`
	IdempotencyKey  *string                `db:"idempotency_key" json:"idempotency_key,omitempty"`
	RequestPayload  map[string]interface{} `db:"request_payload" json:"request_payload,omitempty"`
	ResponsePayload map[string]interface{} `db:"response_payload" json:"response_payload,omitempty"`
	Attempts        int                    `db:"attempts" json:"attempts"`
	LastError       *string                `db:"last_error" json:"last_error,omitempty"`
	SentAt          *time.Time             `db:"sent_at" json:"sent_at,omitempty"`
	RespondedAt     *time.Time             `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time              `db:"updated_at" json:"updated_at"`
}

// ClaimDeduction is one payer-side deduction applied to a claim.
type ClaimDeduction struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClaimID   uuid.UUID `db:"claim_id" json:"claim_id"`
	Category  string    `db:"category" json:"category"`
	Amount    float64   `db:"amount" json:"amount"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
