package gateway

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
)

// Required document roles handed to the operator per submission type.
var (
	preauthChecklist = []string{
		"PREAUTH_FORM", "ID_PROOF", "INSURANCE_CARD", "INVESTIGATION_REPORT", "PRESCRIPTION",
	}
	claimChecklist = []string{
		"CLAIM_FORM", "DISCHARGE_SUMMARY", "BILL_SUMMARY", "INVESTIGATION_REPORT",
		"PRESCRIPTION", "ID_PROOF", "INSURANCE_CARD",
	}
)

// documentChecklist marks each required role with whether a matching document
// is already attached, so the operator sees what still needs collecting.
func documentChecklist(required []string, docs []Document) []interface{} {
	attached := make(map[string]bool, len(docs))
	for _, d := range docs {
		attached[strings.ToUpper(d.Type)] = true
	}
	out := make([]interface{}, 0, len(required))
	for _, role := range required {
		out = append(out, map[string]interface{}{
			"role":     role,
			"uploaded": attached[role],
		})
	}
	return out
}

// PortalAdapter covers payers with no machine interface. Submissions produce
// an operator packet: everything a billing clerk needs to key the request
// into the payer's web portal by hand.
type PortalAdapter struct {
	cfg *payerconfig.IntegrationConfig
	log zerolog.Logger
	now func() time.Time
}

func NewPortalAdapter(cfg *payerconfig.IntegrationConfig, deps AdapterDeps) *PortalAdapter {
	return &PortalAdapter{cfg: cfg, log: deps.Logger, now: time.Now}
}

func (a *PortalAdapter) Mode() string { return a.cfg.IntegrationMode }

func (a *PortalAdapter) SubmitPreauth(_ context.Context, sub *PreauthSubmission) (*GatewayResult, error) {
	ref := "PA-PORTAL-" + strings.ToUpper(strconv.FormatInt(a.now().UnixMilli(), 36))
	packet := map[string]interface{}{
		"portalUrl":   deref(a.cfg.PortalURL),
		"portalNotes": deref(a.cfg.PortalNotes),
		"patientInfo": map[string]interface{}{
			"name":         sub.PatientName,
			"dob":          sub.PatientDOB,
			"gender":       sub.PatientGender,
			"policyNumber": sub.PolicyNumber,
			"memberId":     sub.MemberID,
		},
		"preauthDetails": map[string]interface{}{
			"referenceId":     sub.PreauthID,
			"diagnosisCodes":  sub.DiagnosisCodes,
			"procedureCodes":  sub.ProcedureCodes,
			"packageCode":     sub.PackageCode,
			"requestedAmount": sub.RequestedAmount,
			"admissionDate":   sub.AdmissionDate,
			"treatingDoctor":  sub.TreatingDoctor,
		},
		"documentChecklist": documentChecklist(preauthChecklist, sub.Documents),
		"operatorActions":   operatorActions("pre-authorization"),
	}
	return &GatewayResult{
		Success:       true,
		ExternalRefID: ref,
		Message:       "operator packet generated, awaiting portal submission",
		Raw:           packet,
	}, nil
}

func (a *PortalAdapter) SubmitClaim(_ context.Context, sub *ClaimSubmission) (*GatewayResult, error) {
	ref := "CL-PORTAL-" + strings.ToUpper(strconv.FormatInt(a.now().UnixMilli(), 36))
	var lines []interface{}
	for _, li := range sub.LineItems {
		lines = append(lines, map[string]interface{}{
			"code":        li.Code,
			"description": li.Description,
			"quantity":    li.Quantity,
			"unitPrice":   li.UnitPrice,
			"amount":      li.Amount,
		})
	}
	packet := map[string]interface{}{
		"portalUrl":   deref(a.cfg.PortalURL),
		"portalNotes": deref(a.cfg.PortalNotes),
		"patientInfo": map[string]interface{}{
			"name":         sub.PatientName,
			"dob":          sub.PatientDOB,
			"gender":       sub.PatientGender,
			"policyNumber": sub.PolicyNumber,
			"memberId":     sub.MemberID,
		},
		"claimDetails": map[string]interface{}{
			"referenceId":    sub.ClaimID,
			"claimNumber":    sub.ClaimNumber,
			"preauthRef":     sub.PreauthRefID,
			"diagnosisCodes": sub.DiagnosisCodes,
			"billNumber":     sub.BillNumber,
			"totalAmount":    sub.TotalAmount,
			"claimedAmount":  sub.ClaimedAmount,
			"admissionDate":  sub.AdmissionDate,
			"dischargeDate":  sub.DischargeDate,
		},
		"lineItems":         lines,
		"documentChecklist": documentChecklist(claimChecklist, sub.Documents),
		"operatorActions":   operatorActions("claim"),
	}
	return &GatewayResult{
		Success:       true,
		ExternalRefID: ref,
		Message:       "operator packet generated, awaiting portal submission",
		Raw:           packet,
	}, nil
}

func (a *PortalAdapter) PreauthStatus(_ context.Context, _ string) (*StatusResult, error) {
	return &StatusResult{
		Status:  StatusManualPending,
		Message: "status must be updated manually from the payer portal",
	}, nil
}

func (a *PortalAdapter) ClaimStatus(_ context.Context, _ string) (*StatusResult, error) {
	return &StatusResult{
		Status:  StatusManualPending,
		Message: "status must be updated manually from the payer portal",
	}, nil
}

// CheckCoverage assumes eligibility and flags the answer for manual
// verification. Blocking an admission on a portal lookup nobody automated
// would be worse than the occasional false positive.
func (a *PortalAdapter) CheckCoverage(_ context.Context, check *CoverageCheck) (*CoverageResult, error) {
	return &CoverageResult{
		Eligible: true,
		Message:  "coverage assumed eligible, verify on the payer portal",
		Raw: map[string]interface{}{
			"requiresManualVerification": true,
			"policyNumber":               check.PolicyNumber,
			"portalUrl":                  deref(a.cfg.PortalURL),
		},
	}, nil
}

func operatorActions(kind string) []string {
	return []string{
		"Log in to the payer portal",
		"Navigate to the " + kind + " submission form",
		"Enter the patient and policy details from this packet",
		"Enter the " + kind + " details and amounts",
		"Upload every document on the checklist",
		"Submit and note the payer's acknowledgement number",
		"Record the acknowledgement number against this reference",
	}
}
