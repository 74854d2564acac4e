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

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/fhir"
)

const hcxProtocolVersion = "v0.7"

// HCXAdapter speaks the HCX open claims exchange protocol: FHIR R4 bundles
// wrapped in a protocol envelope, routed through an exchange switch.
type HCXAdapter struct {
	cfg    *payerconfig.IntegrationConfig
	client *http.Client
	log    zerolog.Logger

	mu    sync.Mutex
	token *tokenCache
}

func NewHCXAdapter(cfg *payerconfig.IntegrationConfig, deps AdapterDeps) *HCXAdapter {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HCXAdapter{cfg: cfg, client: client, log: deps.Logger, token: newTokenCache()}
}

func (a *HCXAdapter) Mode() string { return a.cfg.IntegrationMode }

func (a *HCXAdapter) SubmitPreauth(ctx context.Context, sub *PreauthSubmission) (*GatewayResult, error) {
	bundle := a.buildClaimBundle(claimBundleInput{
		use:            "preauthorization",
		entityID:       sub.PreauthID,
		patientName:    sub.PatientName,
		patientDOB:     sub.PatientDOB,
		patientGender:  sub.PatientGender,
		policyNumber:   sub.PolicyNumber,
		memberID:       sub.MemberID,
		providerCode:   sub.ProviderCode,
		diagnosisCodes: sub.DiagnosisCodes,
		procedureCodes: sub.ProcedureCodes,
		packageCode:    sub.PackageCode,
		totalAmount:    sub.RequestedAmount,
		documents:      sub.Documents,
	})
	return a.submit(ctx, "preauth/submit", bundle)
}

func (a *HCXAdapter) SubmitClaim(ctx context.Context, sub *ClaimSubmission) (*GatewayResult, error) {
	bundle := a.buildClaimBundle(claimBundleInput{
		use:            "claim",
		entityID:       sub.ClaimID,
		patientName:    sub.PatientName,
		patientDOB:     sub.PatientDOB,
		patientGender:  sub.PatientGender,
		policyNumber:   sub.PolicyNumber,
		memberID:       sub.MemberID,
		providerCode:   sub.ProviderCode,
		diagnosisCodes: sub.DiagnosisCodes,
		procedureCodes: sub.ProcedureCodes,
		totalAmount:    sub.ClaimedAmount,
		lineItems:      sub.LineItems,
		documents:      sub.Documents,
	})
	return a.submit(ctx, "claim/submit", bundle)
}

func (a *HCXAdapter) PreauthStatus(ctx context.Context, externalRefID string) (*StatusResult, error) {
	return a.status(ctx, externalRefID, false)
}

func (a *HCXAdapter) ClaimStatus(ctx context.Context, externalRefID string) (*StatusResult, error) {
	return a.status(ctx, externalRefID, true)
}

func (a *HCXAdapter) CheckCoverage(ctx context.Context, check *CoverageCheck) (*CoverageResult, error) {
	req := map[string]interface{}{
		"resourceType": "CoverageEligibilityRequest",
		"id":           uuid.NewString(),
		"status":       "active",
		"purpose":      []string{"benefits", "validation"},
		"patient":      map[string]interface{}{"reference": "Patient/1", "display": check.PatientName},
		"created":      time.Now().UTC().Format(time.RFC3339),
		"insurance": []interface{}{
			map[string]interface{}{
				"coverage": map[string]interface{}{"reference": "Coverage/1", "display": check.PolicyNumber},
			},
		},
		"provider": map[string]interface{}{"identifier": map[string]interface{}{"value": check.ProviderCode}},
	}
	if check.ServiceDate != "" {
		req["servicedDate"] = check.ServiceDate
	}

	body, err := a.exchange(ctx, "coverageeligibility/check", req, "", "request.initiate")
	if err != nil {
		return nil, err
	}

	resp := fhir.ResourceOf(body, "CoverageEligibilityResponse")
	if resp == nil {
		return &CoverageResult{Eligible: false, Message: "no eligibility response from exchange", Raw: body}, nil
	}
	outcome := fhir.Str(resp, "outcome")
	eligible := outcome == "complete"
	msg := fhir.Str(resp, "disposition")
	if msg == "" {
		msg = fmt.Sprintf("eligibility outcome: %s", outcome)
	}
	return &CoverageResult{Eligible: eligible, Message: msg, Raw: body}, nil
}

func (a *HCXAdapter) submit(ctx context.Context, op string, bundle map[string]interface{}) (*GatewayResult, error) {
	correlationID := "hcx-corr-" + uuid.NewString()

	body, err := a.exchange(ctx, op, bundle, correlationID, "request.initiate")
	if err != nil {
		return &GatewayResult{Success: false, Message: err.Error()}, err
	}

	// The switch acks synchronously; the adjudication arrives later on the
	// same correlation id.
	result := &GatewayResult{
		Success:       true,
		ExternalRefID: correlationID,
		Message:       "accepted by exchange",
		Raw:           body,
	}
	if outcome := fhir.ResourceOf(body, "OperationOutcome"); outcome != nil {
		issues := fhir.Slice(outcome, "issue")
		if len(issues) > 0 {
			issue := fhir.Map(issues[0])
			if sev := fhir.Str(issue, "severity"); sev == "error" || sev == "fatal" {
				result.Success = false
				result.ExternalRefID = ""
				result.Message = fhir.Str(issue, "diagnostics")
				if result.Message == "" {
					result.Message = "exchange rejected the submission"
				}
			}
		}
	}
	return result, nil
}

func (a *HCXAdapter) status(ctx context.Context, externalRefID string, forClaim bool) (*StatusResult, error) {
	payload := map[string]interface{}{
		"x-hcx-correlation_id": externalRefID,
	}
	body, err := a.exchange(ctx, "status", payload, externalRefID, "request.status")
	if err != nil {
		return nil, err
	}
	return a.parseClaimResponse(body, forClaim), nil
}

// exchange wraps a payload in the HCX protocol envelope and posts it.
func (a *HCXAdapter) exchange(ctx context.Context, op string, payload interface{}, correlationID, status string) (map[string]interface{}, error) {
	if correlationID == "" {
		correlationID = "hcx-corr-" + uuid.NewString()
	}
	envelope := map[string]interface{}{
		"x-hcx-sender_code":    deref(a.cfg.HCXParticipantCode),
		"x-hcx-recipient_code": deref(a.cfg.HCXRecipientCode),
		"x-hcx-api_call_id":    "hcx-api-" + uuid.NewString(),
		"x-hcx-correlation_id": correlationID,
		"x-hcx-timestamp":      time.Now().UTC().Format(time.RFC3339),
		"x-hcx-status":         status,
		"payload":              payload,
	}

	buf, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode exchange envelope: %w", err)
	}

	url := strings.TrimRight(deref(a.cfg.HCXEndpointURL), "/") + "/" + hcxProtocolVersion + "/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := a.bearerToken(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange call %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read exchange response: %w", err)
	}

	var body map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("decode exchange response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := exchangeErrorMessage(body)
		return nil, fmt.Errorf("exchange returned %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

// bearerToken returns the token to attach to an exchange call. A static
// token wins; otherwise a client-credentials or password grant against the
// exchange's token endpoint fills the cache.
func (a *HCXAdapter) bearerToken(ctx context.Context) (string, error) {
	ac := a.cfg.HCXAuthConfig
	if ac == nil {
		return "", nil
	}
	if ac.Token != "" {
		return ac.Token, nil
	}
	if ac.ClientID == "" && ac.Username == "" {
		return "", nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token := a.token.get(); token != "" {
		return token, nil
	}

	form := url.Values{}
	if ac.ClientID != "" {
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", ac.ClientID)
		form.Set("client_secret", ac.ClientSecret)
	} else {
		form.Set("grant_type", "password")
		form.Set("username", ac.Username)
		form.Set("password", ac.Password)
	}

	tokenURL := strings.TrimRight(deref(a.cfg.HCXEndpointURL), "/") + "/" + hcxProtocolVersion + "/auth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("exchange token endpoint returned %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("exchange token endpoint returned no access_token")
	}

	a.token.put(tokenResp.AccessToken, time.Duration(tokenResp.ExpiresIn)*time.Second)
	return tokenResp.AccessToken, nil
}

func exchangeErrorMessage(body map[string]interface{}) string {
	if body == nil {
		return "no response body"
	}
	if e := fhir.Map(body["error"]); e != nil {
		if msg := fhir.Str(e, "message"); msg != "" {
			return msg
		}
	}
	if msg := fhir.Str(body, "message"); msg != "" {
		return msg
	}
	return "unexpected exchange error"
}

// parseClaimResponse reads an adjudication out of a ClaimResponse resource,
// wherever the exchange nested it. Without one, the envelope status decides
// between a pending adjudication and an exchange-level error.
func (a *HCXAdapter) parseClaimResponse(body map[string]interface{}, forClaim bool) *StatusResult {
	cr := fhir.ResourceOf(body, "ClaimResponse")
	if cr == nil {
		res := &StatusResult{Status: StatusPending, Raw: body}
		env := fhir.Str(body, "x-hcx-status")
		if env == "" {
			env = fhir.Str(body, "status")
		}
		if strings.Contains(env, "error") || strings.Contains(env, "redirect") {
			res.Status = StatusError
			res.Message = exchangeErrorMessage(body)
			if res.Message == "unexpected exchange error" {
				res.Message = "exchange reported " + env
			}
		} else {
			res.Message = "no adjudication available yet"
		}
		return res
	}

	res := parseClaimResponseResource(cr, forClaim)
	res.Raw = body
	return res
}

// parseClaimResponseResource maps one ClaimResponse onto the shared status
// shape. The webhook path reuses it when payers push the bundle instead of
// waiting to be polled.
func parseClaimResponseResource(cr map[string]interface{}, forClaim bool) *StatusResult {
	res := &StatusResult{Status: StatusPending, Raw: cr}

	outcome := fhir.Str(cr, "outcome")
	res.Status = normalizeStatus(outcome)
	res.Message = fhir.Str(cr, "disposition")
	if res.Message == "" {
		// Some payers only fill processNote.
		if notes := fhir.Slice(cr, "processNote"); len(notes) > 0 {
			res.Message = fhir.Str(fhir.Map(notes[0]), "text")
		}
	}
	if res.Status == StatusRejected {
		res.RejectionReason = res.Message
	}

	for _, t := range fhir.Slice(cr, "total") {
		tm := fhir.Map(t)
		cat := codingCode(fhir.Map(tm["category"]))
		amount := fhir.Map(tm["amount"])
		val, ok := fhir.Num(amount, "value")
		if !ok {
			continue
		}
		if cat == "benefit" || cat == "approved" {
			v := val
			res.ApprovedAmount = &v
		}
	}

	var itemBenefit float64
	for _, it := range fhir.Slice(cr, "item") {
		for _, adj := range fhir.Slice(fhir.Map(it), "adjudication") {
			am := fhir.Map(adj)
			cat := codingCode(fhir.Map(am["category"]))
			switch cat {
			case "benefit":
				if val, ok := fhir.Num(fhir.Map(am["amount"]), "value"); ok {
					itemBenefit += val
				}
			case "deductible", "copay", "non-payable", "nonpayable":
				amount := fhir.Map(am["amount"])
				val, ok := fhir.Num(amount, "value")
				if !ok || val == 0 {
					continue
				}
				res.Deductions = append(res.Deductions, Deduction{
					Code:   inferDeductionCategory(cat),
					Amount: val,
					Reason: fhir.Str(fhir.Map(am["reason"]), "text"),
				})
			}
		}
	}
	if res.ApprovedAmount == nil && itemBenefit > 0 {
		res.ApprovedAmount = &itemBenefit
	}

	// A fully-approved claim carrying deductions was only partially paid.
	if forClaim && res.Status == StatusApproved && len(res.Deductions) > 0 {
		res.Status = StatusPartiallyApproved
	}

	return res
}

type claimBundleInput struct {
	use            string
	entityID       string
	patientName    string
	patientDOB     string
	patientGender  string
	policyNumber   string
	memberID       string
	providerCode   string
	diagnosisCodes []string
	procedureCodes []string
	packageCode    string
	totalAmount    float64
	lineItems      []LineItem
	documents      []Document
}

// buildClaimBundle assembles the FHIR collection bundle the exchange
// expects: one Patient, one Coverage, one Claim, plus a DocumentReference
// per attachment.
func (a *HCXAdapter) buildClaimBundle(in claimBundleInput) map[string]interface{} {
	patientID := uuid.NewString()
	coverageID := uuid.NewString()
	claimID := in.entityID
	if claimID == "" {
		claimID = uuid.NewString()
	}

	patient := map[string]interface{}{
		"resourceType": "Patient",
		"id":           patientID,
		"name":         []interface{}{map[string]interface{}{"text": in.patientName}},
	}
	if in.patientDOB != "" {
		patient["birthDate"] = in.patientDOB
	}
	if in.patientGender != "" {
		patient["gender"] = strings.ToLower(in.patientGender)
	}

	coverage := map[string]interface{}{
		"resourceType": "Coverage",
		"id":           coverageID,
		"status":       "active",
		"subscriberId": in.memberID,
		"beneficiary":  map[string]interface{}{"reference": "Patient/" + patientID},
		"identifier": []interface{}{
			map[string]interface{}{"value": in.policyNumber},
		},
	}

	var diagnosis []interface{}
	for i, code := range in.diagnosisCodes {
		diagnosis = append(diagnosis, map[string]interface{}{
			"sequence": i + 1,
			"diagnosisCodeableConcept": map[string]interface{}{
				"coding": []interface{}{map[string]interface{}{
					"system": "http://hl7.org/fhir/sid/icd-10",
					"code":   code,
				}},
			},
		})
	}

	var items []interface{}
	if len(in.lineItems) > 0 {
		for i, li := range in.lineItems {
			items = append(items, map[string]interface{}{
				"sequence": i + 1,
				"productOrService": map[string]interface{}{
					"coding": []interface{}{map[string]interface{}{"code": li.Code, "display": li.Description}},
				},
				"quantity":  map[string]interface{}{"value": li.Quantity},
				"unitPrice": map[string]interface{}{"value": li.UnitPrice, "currency": "INR"},
				"net":       map[string]interface{}{"value": li.Amount, "currency": "INR"},
			})
		}
	} else {
		for i, code := range in.procedureCodes {
			items = append(items, map[string]interface{}{
				"sequence": i + 1,
				"productOrService": map[string]interface{}{
					"coding": []interface{}{map[string]interface{}{"code": code}},
				},
			})
		}
	}
	if in.packageCode != "" {
		items = append(items, map[string]interface{}{
			"sequence": len(items) + 1,
			"productOrService": map[string]interface{}{
				"coding": []interface{}{map[string]interface{}{
					"system": "https://irdai.gov.in/package-code",
					"code":   in.packageCode,
				}},
			},
		})
	}

	claim := map[string]interface{}{
		"resourceType": "Claim",
		"id":           claimID,
		"status":       "active",
		"use":          in.use,
		"created":      time.Now().UTC().Format(time.RFC3339),
		"patient":      map[string]interface{}{"reference": "Patient/" + patientID},
		"provider":     map[string]interface{}{"identifier": map[string]interface{}{"value": in.providerCode}},
		"priority": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"code": "normal"}},
		},
		"insurance": []interface{}{
			map[string]interface{}{
				"sequence": 1,
				"focal":    true,
				"coverage": map[string]interface{}{"reference": "Coverage/" + coverageID},
			},
		},
		"total": map[string]interface{}{"value": in.totalAmount, "currency": "INR"},
	}
	if len(diagnosis) > 0 {
		claim["diagnosis"] = diagnosis
	}
	if len(items) > 0 {
		claim["item"] = items
	}

	entries := []interface{}{
		map[string]interface{}{"fullUrl": "Patient/" + patientID, "resource": patient},
		map[string]interface{}{"fullUrl": "Coverage/" + coverageID, "resource": coverage},
		map[string]interface{}{"fullUrl": "Claim/" + claimID, "resource": claim},
	}
	for _, doc := range in.documents {
		docID := uuid.NewString()
		entries = append(entries, map[string]interface{}{
			"fullUrl": "DocumentReference/" + docID,
			"resource": map[string]interface{}{
				"resourceType": "DocumentReference",
				"id":           docID,
				"status":       "current",
				"type":         map[string]interface{}{"text": doc.Type},
				"content": []interface{}{
					map[string]interface{}{
						"attachment": map[string]interface{}{"title": doc.Name, "url": doc.URL},
					},
				},
			},
		})
	}

	return map[string]interface{}{
		"resourceType": "Bundle",
		"id":           uuid.NewString(),
		"type":         "collection",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"entry":        entries,
	}
}

func codingCode(cc map[string]interface{}) string {
	if cc == nil {
		return ""
	}
	for _, c := range fhir.Slice(cc, "coding") {
		if code := fhir.Str(fhir.Map(c), "code"); code != "" {
			return code
		}
	}
	return fhir.Str(cc, "text")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
