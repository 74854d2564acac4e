package gateway

import "strings"

// Normalized statuses reported by adapters and webhooks.
const (
	StatusApproved          = "APPROVED"
	StatusRejected          = "REJECTED"
	StatusPartiallyApproved = "PARTIALLY_APPROVED"
	StatusPending           = "PENDING"
	StatusPaid              = "PAID"
	StatusQueryRaised       = "QUERY_RAISED"
	StatusAcknowledged      = "ACKNOWLEDGED"
	StatusUnderReview       = "UNDER_REVIEW"
	StatusExpired           = "EXPIRED"
	StatusDeducted          = "DEDUCTED"
	StatusManualPending     = "MANUAL_PENDING"

	// Exchange-level error on a status poll, not an adjudication outcome.
	StatusError = "ERROR"

	// Batch file-drop statuses: a matching response file exists but its
	// payload is not parsed, or the transport cannot be asked at all.
	StatusResponseAvailable = "RESPONSE_AVAILABLE"
	StatusUnknown           = "UNKNOWN"
)

// normalizeTable folds the payer-side vocabulary into ours. Raw values are
// uppercased with spaces and hyphens collapsed to underscores before lookup;
// unknown values pass through in that canonical form.
var normalizeTable = map[string]string{
	"COMPLETE":           StatusApproved,
	"COMPLETED":          StatusApproved,
	"APPROVED":           StatusApproved,
	"ACCEPTED":           StatusApproved,
	"AUTHORIZED":         StatusApproved,
	"DENIED":             StatusRejected,
	"REJECTED":           StatusRejected,
	"ERROR":              StatusRejected,
	"FAILED":             StatusRejected,
	"PARTIAL":            StatusPartiallyApproved,
	"PARTIALLY_APPROVED": StatusPartiallyApproved,
	"QUEUED":             StatusPending,
	"IN_PROGRESS":        StatusPending,
	"PROCESSING":         StatusPending,
	"PENDING":            StatusPending,
	"SUBMITTED":          StatusPending,
	"UNDER_REVIEW":       StatusUnderReview,
	"REVIEW":             StatusUnderReview,
	"SETTLED":            StatusPaid,
	"PAID":               StatusPaid,
	"DISBURSED":          StatusPaid,
	"QUERY":              StatusQueryRaised,
	"QUERY_RAISED":       StatusQueryRaised,
	"INFO_REQUESTED":     StatusQueryRaised,
	"ACKNOWLEDGED":       StatusAcknowledged,
	"RECEIVED":           StatusAcknowledged,
	"EXPIRED":            StatusExpired,
	"LAPSED":             StatusExpired,
	"DEDUCTED":           StatusDeducted,
}

// normalizeStatus maps a raw payer status onto the shared vocabulary. Both
// the polling path and the webhook path go through this one table, so the
// same raw value can never map to two different statuses.
func normalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	if mapped, ok := normalizeTable[s]; ok {
		return mapped
	}
	return s
}

// mapPreauthStatus translates a normalized status into a preauth lifecycle
// status. Statuses with no preauth meaning return "".
func mapPreauthStatus(normalized string) string {
	switch normalized {
	case StatusApproved, StatusPartiallyApproved:
		return PreauthStatusApproved
	case StatusRejected:
		return PreauthStatusRejected
	case StatusQueryRaised:
		return PreauthStatusQueryRaised
	case StatusExpired:
		return PreauthStatusExpired
	default:
		return ""
	}
}

// mapClaimStatus translates a normalized status into a claim lifecycle
// status. Statuses with no claim meaning return "".
func mapClaimStatus(normalized string) string {
	switch normalized {
	case StatusApproved:
		return ClaimStatusApproved
	case StatusPartiallyApproved:
		return ClaimStatusPartiallyApproved
	case StatusRejected:
		return ClaimStatusRejected
	case StatusPaid:
		return ClaimStatusPaid
	case StatusAcknowledged:
		return ClaimStatusAcknowledged
	case StatusQueryRaised:
		return ClaimStatusQueryRaised
	case StatusUnderReview:
		return ClaimStatusUnderReview
	case StatusDeducted:
		return ClaimStatusDeducted
	default:
		return ""
	}
}

// Deduction categories persisted per deduction row.
const (
	DeductionCopay      = "COPAY"
	DeductionDeductible = "DEDUCTIBLE"
	DeductionNonPayable = "NON_PAYABLE"
	DeductionExcess     = "EXCESS"
	DeductionNonMedical = "NON_MEDICAL"
	DeductionTariffDiff = "TARIFF_DIFF"
	DeductionOther      = "OTHER"
)

// inferDeductionCategory classifies a payer's free-text deduction label by
// substring match. Order matters: more specific labels first.
func inferDeductionCategory(raw string) string {
	s := strings.ToUpper(raw)
	switch {
	case strings.Contains(s, "COPAY") || strings.Contains(s, "CO-PAY") || strings.Contains(s, "CO_PAY"):
		return DeductionCopay
	case strings.Contains(s, "DEDUCTIBLE"):
		return DeductionDeductible
	case strings.Contains(s, "NON_PAYABLE") || strings.Contains(s, "NON-PAYABLE") || strings.Contains(s, "NONPAYABLE"):
		return DeductionNonPayable
	case strings.Contains(s, "EXCESS"):
		return DeductionExcess
	case strings.Contains(s, "NON_MEDICAL") || strings.Contains(s, "NON-MEDICAL"):
		return DeductionNonMedical
	case strings.Contains(s, "TARIFF"):
		return DeductionTariffDiff
	default:
		return DeductionOther
	}
}
