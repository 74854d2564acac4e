package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/payerlink/payerlink/internal/platform/fhir"
)

// WebhookResult tells the handler what happened. The HTTP response is 200
// regardless: payers retry on non-2xx, and a retry storm of unprocessable
// payloads helps nobody.
type WebhookResult struct {
	Processed  bool   `json:"processed"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Reason     string `json:"reason,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
}

// ProcessWebhook verifies, deduplicates and applies one inbound payer
// notification. Every delivery leaves a WEBHOOK_INBOUND transaction, even
// the rejected ones.
func (s *Service) ProcessWebhook(ctx context.Context, payerID uuid.UUID, headers http.Header, rawBody []byte) *WebhookResult {
	cfg, err := s.configs.FindActiveByPayer(ctx, payerID)
	if err != nil {
		s.metrics.Webhooks.WithLabelValues("error").Inc()
		return s.recordWebhookFailure(ctx, payerID, nil, "", "resolving payer config failed: "+err.Error())
	}
	if cfg == nil {
		s.metrics.Webhooks.WithLabelValues("unknown_payer").Inc()
		return s.recordWebhookFailure(ctx, payerID, nil, "", "no active integration config for payer")
	}

	// Verification only runs when both a secret and a signature are present.
	// Payers that never adopted signing still get their deliveries applied.
	signature := headers.Get("x-webhook-signature")
	if signature == "" {
		signature = headers.Get("x-hcx-signature")
	}
	if cfg.WebhookSecret != nil && *cfg.WebhookSecret != "" && signature != "" {
		if !verifySignature(rawBody, signature, *cfg.WebhookSecret) {
			s.metrics.Webhooks.WithLabelValues("invalid_signature").Inc()
			return s.recordWebhookFailure(ctx, payerID, nil, "", "invalid signature")
		}
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rawBody, &body); err != nil {
		s.metrics.Webhooks.WithLabelValues("bad_payload").Inc()
		return s.recordWebhookFailure(ctx, payerID, nil, "", "invalid JSON payload")
	}

	idempotencyKey := webhookIdempotencyKey(headers, body)
	if idempotencyKey != "" {
		existing, err := s.txs.FindDuplicateWebhook(ctx, payerID, idempotencyKey)
		if err == nil && existing != nil {
			s.metrics.Webhooks.WithLabelValues("duplicate").Inc()
			return &WebhookResult{
				Processed:  true,
				Duplicate:  true,
				EntityType: existing.EntityType,
				EntityID:   existing.EntityID,
			}
		}
	}

	externalRef := webhookExternalRef(headers, body)
	if externalRef == "" {
		s.metrics.Webhooks.WithLabelValues("no_reference").Inc()
		return s.recordWebhookFailure(ctx, payerID, body, idempotencyKey, "no entity reference in payload")
	}

	entityType, entityID, applyErr := s.applyWebhook(ctx, body, externalRef)
	if applyErr != nil {
		s.metrics.Webhooks.WithLabelValues("unmatched").Inc()
		res := s.recordWebhookFailure(ctx, payerID, body, idempotencyKey, applyErr.Error())
		res.EntityType = entityType
		return res
	}

	tx := &GatewayTransaction{
		PayerID:         payerID,
		TxType:          TxTypeWebhookInbound,
		TxStatus:        TxStatusResponseReceived,
		EntityType:      entityType,
		EntityID:        entityID,
		ExternalRefID:   &externalRef,
		ResponsePayload: body,
		Attempts:        1,
	}
	if idempotencyKey != "" {
		tx.IdempotencyKey = &idempotencyKey
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		s.log.Error().Err(err).Msg("recording inbound webhook failed")
	}

	s.metrics.Webhooks.WithLabelValues("processed").Inc()
	return &WebhookResult{Processed: true, EntityType: entityType, EntityID: entityID}
}

// applyWebhook resolves the entity behind an external ref and applies the
// payload's status. A declared or inferred entity type wins; otherwise
// preauths are tried before claims.
func (s *Service) applyWebhook(ctx context.Context, body map[string]interface{}, externalRef string) (string, string, error) {
	res := statusResultFromWebhook(body)

	declared := webhookEntityType(body)

	if declared == "" || declared == EntityPreauth {
		p, err := s.preauths.FindByGatewayRef(ctx, externalRef)
		if err == nil && p != nil {
			if err := s.applyPreauthStatus(ctx, p, res); err != nil {
				return EntityPreauth, p.ID.String(), err
			}
			return EntityPreauth, p.ID.String(), nil
		}
		if declared == EntityPreauth {
			return EntityPreauth, "", errNoMatch(EntityPreauth, externalRef)
		}
	}

	if declared == "" || declared == EntityClaim {
		c, err := s.claims.FindByGatewayRef(ctx, externalRef)
		if err == nil && c != nil {
			if err := s.applyClaimStatus(ctx, c, res); err != nil {
				return EntityClaim, c.ID.String(), err
			}
			return EntityClaim, c.ID.String(), nil
		}
		if declared == EntityClaim {
			return EntityClaim, "", errNoMatch(EntityClaim, externalRef)
		}
	}

	return "", "", errNoMatch("entity", externalRef)
}

// recordWebhookFailure stores the failed delivery so operators can inspect
// what the payer actually sent.
func (s *Service) recordWebhookFailure(ctx context.Context, payerID uuid.UUID, body map[string]interface{}, idempotencyKey, reason string) *WebhookResult {
	tx := &GatewayTransaction{
		PayerID:         payerID,
		TxType:          TxTypeWebhookInbound,
		TxStatus:        TxStatusFailed,
		EntityType:      EntityWebhook,
		EntityID:        payerID.String(),
		ResponsePayload: body,
		Attempts:        1,
		LastError:       &reason,
	}
	if idempotencyKey != "" {
		tx.IdempotencyKey = &idempotencyKey
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		s.log.Error().Err(err).Str("reason", reason).Msg("recording failed webhook failed")
	}
	return &WebhookResult{Processed: false, Reason: reason}
}

// verifySignature checks the hex HMAC-SHA256 of the raw body in constant
// time.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) != len(expected) {
		return false
	}
	return hmac.Equal(provided, expected)
}

func webhookIdempotencyKey(headers http.Header, body map[string]interface{}) string {
	for _, h := range []string{"x-idempotency-key", "x-hcx-correlation-id", "x-hcx-correlation_id"} {
		if v := headers.Get(h); v != "" {
			return v
		}
	}
	for _, k := range []string{"idempotency_key", "idempotencyKey", "correlation_id", "correlationId"} {
		if v := fhir.Str(body, k); v != "" {
			return v
		}
	}
	return ""
}

func webhookExternalRef(headers http.Header, body map[string]interface{}) string {
	if v := headers.Get("x-hcx-correlation_id"); v != "" {
		return v
	}
	for _, k := range []string{
		"x-hcx-correlation_id", "correlation_id", "externalRefId",
		"external_ref_id", "gateway_ref_id", "gatewayRefId",
		"entityId", "entity_id",
	} {
		if v := fhir.Str(body, k); v != "" {
			return v
		}
	}
	return ""
}

// webhookEntityType resolves which entity kind a delivery is about: explicit
// entity_type field, then the use of a FHIR Claim/ClaimResponse riding in the
// payload, then the HCX api call id, then a generic type field.
func webhookEntityType(body map[string]interface{}) string {
	declared := fhir.Str(body, "entity_type")
	if declared == "" {
		declared = fhir.Str(body, "entityType")
	}
	if declared == EntityPreauth || declared == EntityClaim {
		return declared
	}

	use := ""
	if claim := fhir.ResourceOf(body, "Claim"); claim != nil {
		use = fhir.Str(claim, "use")
	}
	if use == "" {
		if cr := fhir.ResourceOf(body, "ClaimResponse"); cr != nil {
			use = fhir.Str(cr, "use")
		}
	}
	switch use {
	case "preauthorization":
		return EntityPreauth
	case "claim":
		return EntityClaim
	}

	for _, hint := range []string{fhir.Str(body, "x-hcx-api_call_id"), fhir.Str(body, "type")} {
		h := strings.ToLower(hint)
		switch {
		case strings.Contains(h, "preauth"):
			return EntityPreauth
		case strings.Contains(h, "claim"):
			return EntityClaim
		}
	}
	return ""
}

// statusResultFromWebhook reads the payload into the same shape the polling
// path produces, so one code path applies both. Direct fields win; a FHIR
// ClaimResponse riding in the payload fills whatever they left blank.
func statusResultFromWebhook(body map[string]interface{}) *StatusResult {
	res := parseDirectStatus(body)

	cr := fhir.ResourceOf(body, "ClaimResponse")
	if cr == nil {
		return res
	}
	fromFHIR := parseClaimResponseResource(cr, true)

	direct := fhir.Str(body, "status")
	if direct == "" {
		direct = fhir.Str(fhir.Map(body["data"]), "status")
	}
	if direct == "" {
		res.Status = fromFHIR.Status
	}
	if res.Message == "" {
		res.Message = fromFHIR.Message
	}
	if res.ApprovedAmount == nil {
		res.ApprovedAmount = fromFHIR.ApprovedAmount
	}
	if res.RejectionReason == "" {
		res.RejectionReason = fromFHIR.RejectionReason
	}
	if len(res.Deductions) == 0 {
		res.Deductions = fromFHIR.Deductions
	}
	res.Raw = body
	return res
}

func errNoMatch(kind, ref string) error {
	return &noMatchError{kind: kind, ref: ref}
}

type noMatchError struct {
	kind string
	ref  string
}

func (e *noMatchError) Error() string {
	return "no " + e.kind + " found for reference " + e.ref
}
