package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/fhir"
)

// DirectAPIAdapter talks to payers exposing their own REST API. Payloads are
// plain snake_case JSON; auth is whatever the payer wired up.
type DirectAPIAdapter struct {
	cfg    *payerconfig.IntegrationConfig
	client *http.Client
	log    zerolog.Logger

	mu    sync.Mutex
	token *tokenCache
}

func NewDirectAPIAdapter(cfg *payerconfig.IntegrationConfig, deps AdapterDeps) *DirectAPIAdapter {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DirectAPIAdapter{
		cfg:    cfg,
		client: client,
		log:    deps.Logger,
		token:  newTokenCache(),
	}
}

func (a *DirectAPIAdapter) Mode() string { return payerconfig.ModeDirectAPI }

func (a *DirectAPIAdapter) SubmitPreauth(ctx context.Context, sub *PreauthSubmission) (*GatewayResult, error) {
	payload := map[string]interface{}{
		"reference_id":     sub.PreauthID,
		"patient_name":     sub.PatientName,
		"patient_dob":      sub.PatientDOB,
		"patient_gender":   sub.PatientGender,
		"policy_number":    sub.PolicyNumber,
		"member_id":        sub.MemberID,
		"provider_code":    sub.ProviderCode,
		"diagnosis_codes":  sub.DiagnosisCodes,
		"procedure_codes":  sub.ProcedureCodes,
		"package_code":     sub.PackageCode,
		"requested_amount": sub.RequestedAmount,
		"admission_date":   sub.AdmissionDate,
		"treating_doctor":  sub.TreatingDoctor,
		"documents":        documentPayload(sub.Documents),
	}
	body, err := a.do(ctx, http.MethodPost, "/preauth/submit", payload)
	if err != nil {
		return &GatewayResult{Success: false, Message: err.Error()}, err
	}
	return &GatewayResult{
		Success:       true,
		ExternalRefID: extractRefID(body),
		Message:       fhir.Str(body, "message"),
		Raw:           body,
	}, nil
}

func (a *DirectAPIAdapter) SubmitClaim(ctx context.Context, sub *ClaimSubmission) (*GatewayResult, error) {
	var lines []interface{}
	for _, li := range sub.LineItems {
		lines = append(lines, map[string]interface{}{
			"code":        li.Code,
			"description": li.Description,
			"quantity":    li.Quantity,
			"unit_price":  li.UnitPrice,
			"amount":      li.Amount,
		})
	}
	payload := map[string]interface{}{
		"reference_id":    sub.ClaimID,
		"claim_number":    sub.ClaimNumber,
		"preauth_ref":     sub.PreauthRefID,
		"patient_name":    sub.PatientName,
		"patient_dob":     sub.PatientDOB,
		"patient_gender":  sub.PatientGender,
		"policy_number":   sub.PolicyNumber,
		"member_id":       sub.MemberID,
		"provider_code":   sub.ProviderCode,
		"diagnosis_codes": sub.DiagnosisCodes,
		"procedure_codes": sub.ProcedureCodes,
		"bill_number":     sub.BillNumber,
		"total_amount":    sub.TotalAmount,
		"claimed_amount":  sub.ClaimedAmount,
		"admission_date":  sub.AdmissionDate,
		"discharge_date":  sub.DischargeDate,
		"line_items":      lines,
		"documents":       documentPayload(sub.Documents),
	}
	body, err := a.do(ctx, http.MethodPost, "/claims/submit", payload)
	if err != nil {
		return &GatewayResult{Success: false, Message: err.Error()}, err
	}
	return &GatewayResult{
		Success:       true,
		ExternalRefID: extractRefID(body),
		Message:       fhir.Str(body, "message"),
		Raw:           body,
	}, nil
}

func (a *DirectAPIAdapter) PreauthStatus(ctx context.Context, externalRefID string) (*StatusResult, error) {
	body, err := a.do(ctx, http.MethodGet, "/preauth/status/"+url.PathEscape(externalRefID), nil)
	if err != nil {
		return nil, err
	}
	return parseDirectStatus(body), nil
}

func (a *DirectAPIAdapter) ClaimStatus(ctx context.Context, externalRefID string) (*StatusResult, error) {
	body, err := a.do(ctx, http.MethodGet, "/claims/status/"+url.PathEscape(externalRefID), nil)
	if err != nil {
		return nil, err
	}
	return parseDirectStatus(body), nil
}

func (a *DirectAPIAdapter) CheckCoverage(ctx context.Context, check *CoverageCheck) (*CoverageResult, error) {
	payload := map[string]interface{}{
		"policy_number":  check.PolicyNumber,
		"member_id":      check.MemberID,
		"provider_code":  check.ProviderCode,
		"patient_name":   check.PatientName,
		"patient_dob":    check.PatientDOB,
		"service_date":   check.ServiceDate,
		"procedure_code": check.ProcedureCode,
	}
	body, err := a.do(ctx, http.MethodPost, "/coverage/check", payload)
	if err != nil {
		return nil, err
	}
	eligible, _ := body["eligible"].(bool)
	return &CoverageResult{
		Eligible: eligible,
		Message:  fhir.Str(body, "message"),
		Raw:      body,
	}, nil
}

func (a *DirectAPIAdapter) do(ctx context.Context, method, path string, payload interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	reqURL := strings.TrimRight(deref(a.cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := a.applyAuth(ctx, req); err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payer api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payer response: %w", err)
	}

	var body map[string]interface{}
	if len(raw) > 0 {
		// Non-JSON error pages fall through with the raw text as message.
		if err := json.Unmarshal(raw, &body); err != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode payer response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := directErrorMessage(body)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("payer api returned %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

func (a *DirectAPIAdapter) applyAuth(ctx context.Context, req *http.Request) error {
	method := deref(a.cfg.APIAuthMethod)
	ac := a.cfg.APIAuthConfig
	if ac == nil {
		ac = &payerconfig.AuthConfig{}
	}

	switch method {
	case payerconfig.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+ac.Token)
	case payerconfig.AuthBasic:
		req.SetBasicAuth(ac.Username, ac.Password)
	case payerconfig.AuthAPIKey:
		header := ac.HeaderName
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, ac.APIKey)
	case payerconfig.AuthOAuth2:
		token, err := a.oauth2Token(ctx, ac)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case "":
		// Unauthenticated test endpoints exist.
	default:
		return fmt.Errorf("unknown api auth method %q", method)
	}
	return nil
}

// oauth2Token returns a cached client-credentials token, fetching a new one
// only when the cache is empty or stale.
func (a *DirectAPIAdapter) oauth2Token(ctx context.Context, ac *payerconfig.AuthConfig) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if token := a.token.get(); token != "" {
		return token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ac.ClientID)
	form.Set("client_secret", ac.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ac.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}

	a.token.put(tokenResp.AccessToken, time.Duration(tokenResp.ExpiresIn)*time.Second)
	return tokenResp.AccessToken, nil
}

// extractRefID digs the payer's reference out of whichever field this payer
// chose to put it in.
func extractRefID(body map[string]interface{}) string {
	if body == nil {
		return ""
	}
	for _, key := range []string{
		"reference_id", "referenceId", "tracking_id", "trackingId",
		"preauth_ref", "claim_ref", "id",
	} {
		if v := fhir.Str(body, key); v != "" {
			return v
		}
	}
	if data := fhir.Map(body["data"]); data != nil {
		return extractRefID(data)
	}
	return ""
}

func parseDirectStatus(body map[string]interface{}) *StatusResult {
	res := &StatusResult{Status: StatusPending, Raw: body}
	if body == nil {
		return res
	}

	raw := fhir.Str(body, "status")
	if raw == "" {
		if data := fhir.Map(body["data"]); data != nil {
			raw = fhir.Str(data, "status")
			body = data
		}
	}
	if raw != "" {
		res.Status = normalizeStatus(raw)
	}
	res.Message = fhir.Str(body, "message")

	if v, ok := fhir.Num(body, "approved_amount"); ok {
		res.ApprovedAmount = &v
	} else if v, ok := fhir.Num(body, "approvedAmount"); ok {
		res.ApprovedAmount = &v
	}

	if reason := fhir.Str(body, "rejection_reason"); reason != "" {
		res.RejectionReason = reason
	} else if res.Status == StatusRejected {
		res.RejectionReason = res.Message
	}

	for _, d := range fhir.Slice(body, "deductions") {
		dm := fhir.Map(d)
		if dm == nil {
			continue
		}
		amount, _ := fhir.Num(dm, "amount")
		label := fhir.Str(dm, "category")
		if label == "" {
			label = fhir.Str(dm, "type")
		}
		res.Deductions = append(res.Deductions, Deduction{
			Code:   inferDeductionCategory(label),
			Amount: amount,
			Reason: fhir.Str(dm, "reason"),
		})
	}
	return res
}

func directErrorMessage(body map[string]interface{}) string {
	if body == nil {
		return ""
	}
	if e := fhir.Map(body["error"]); e != nil {
		if msg := fhir.Str(e, "message"); msg != "" {
			return msg
		}
	}
	if msg := fhir.Str(body, "message"); msg != "" {
		return msg
	}
	if msg := fhir.Str(body, "error"); msg != "" {
		return msg
	}
	return ""
}

func documentPayload(docs []Document) []interface{} {
	var out []interface{}
	for _, d := range docs {
		out = append(out, map[string]interface{}{
			"type": d.Type,
			"name": d.Name,
			"url":  d.URL,
		})
	}
	return out
}
