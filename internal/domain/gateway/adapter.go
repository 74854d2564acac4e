package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/transport"
)

// PreauthSubmission is everything an adapter needs to ask a payer for
// pre-authorization, flattened from the preauth request and its case.
type PreauthSubmission struct {
	PreauthID       string
	CaseID          string
	PatientName     string
	PatientDOB      string
	PatientGender   string
	PolicyNumber    string
	MemberID        string
	PayerCode       string
	ProviderCode    string
	DiagnosisCodes  []string
	ProcedureCodes  []string
	PackageCode     string
	RequestedAmount float64
	AdmissionDate   string
	TreatingDoctor  string
	Documents       []Document
}

// ClaimSubmission carries a finalized claim to an adapter.
type ClaimSubmission struct {
	ClaimID        string
	CaseID         string
	ClaimNumber    string
	PreauthRefID   string
	PatientName    string
	PatientDOB     string
	PatientGender  string
	PolicyNumber   string
	MemberID       string
	PayerCode      string
	ProviderCode   string
	DiagnosisCodes []string
	ProcedureCodes []string
	BillNumber     string
	TotalAmount    float64
	ClaimedAmount  float64
	AdmissionDate  string
	DischargeDate  string
	LineItems      []LineItem
	Documents      []Document
}

type LineItem struct {
	Code        string
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
}

type Document struct {
	Type string
	Name string
	URL  string
}

// GatewayResult is the immediate outcome of a submission. ExternalRefID is
// the payer-side reference used for all later status lookups.
type GatewayResult struct {
	Success       bool
	ExternalRefID string
	Message       string
	Raw           map[string]interface{}
}

// StatusResult is a point-in-time view of the payer's decision, already
// normalized to the shared status vocabulary.
type StatusResult struct {
	Status          string
	Message         string
	ApprovedAmount  *float64
	RejectionReason string
	Deductions      []Deduction
	Raw             map[string]interface{}
}

type Deduction struct {
	Code   string
	Amount float64
	Reason string
}

// CoverageCheck asks whether a policy covers a treatment before admission.
type CoverageCheck struct {
	PolicyNumber  string
	MemberID      string
	PayerCode     string
	ProviderCode  string
	PatientName   string
	PatientDOB    string
	ServiceDate   string
	ProcedureCode string
}

type CoverageResult struct {
	Eligible bool
	Message  string
	Raw      map[string]interface{}
}

// Adapter is the contract every payer integration implements. Each call is
// one exchange with the payer; the orchestrator owns persistence and the
// transaction ledger.
type Adapter interface {
	Mode() string
	SubmitPreauth(ctx context.Context, sub *PreauthSubmission) (*GatewayResult, error)
	SubmitClaim(ctx context.Context, sub *ClaimSubmission) (*GatewayResult, error)
	PreauthStatus(ctx context.Context, externalRefID string) (*StatusResult, error)
	ClaimStatus(ctx context.Context, externalRefID string) (*StatusResult, error)
	CheckCoverage(ctx context.Context, check *CoverageCheck) (*CoverageResult, error)
}

// AdapterDeps bundles the process-level capabilities adapters share.
type AdapterDeps struct {
	HTTPClient *http.Client
	Uploader   transport.Uploader
	StagingDir string
	Logger     zerolog.Logger
}

// NewAdapter selects the adapter for a config. Pure selection: adapters hold
// no mutable payer state beyond the OAuth2 token cache.
func NewAdapter(cfg *payerconfig.IntegrationConfig, deps AdapterDeps) (Adapter, error) {
	switch cfg.IntegrationMode {
	case payerconfig.ModeHCX, payerconfig.ModeNHCX:
		return NewHCXAdapter(cfg, deps), nil
	case payerconfig.ModeDirectAPI:
		return NewDirectAPIAdapter(cfg, deps), nil
	case payerconfig.ModeSFTPBatch:
		return NewBatchAdapter(cfg, deps), nil
	case payerconfig.ModePortalAssisted, payerconfig.ModeManual:
		return NewPortalAdapter(cfg, deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, cfg.IntegrationMode)
	}
}

var ErrUnsupportedMode = fmt.Errorf("unsupported integration mode")
