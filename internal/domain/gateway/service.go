package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/audit"
	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/metrics"
)

// ConfigResolver finds the integration config governing a submission.
type ConfigResolver interface {
	FindActive(ctx context.Context, branchID, payerID uuid.UUID) (*payerconfig.IntegrationConfig, error)
	FindActiveByPayer(ctx context.Context, payerID uuid.UUID) (*payerconfig.IntegrationConfig, error)
}

// Service orchestrates payer exchanges: it resolves the config, drives the
// adapter, and owns the transaction ledger plus all entity state changes.
// Adapters never touch the database.
type Service struct {
	preauths   PreauthRepository
	claims     ClaimRepository
	cases      CaseRepository
	txs        TransactionRepository
	deductions DeductionRepository
	configs    ConfigResolver
	audit      *audit.Service
	metrics    *metrics.Metrics
	deps       AdapterDeps
	log        zerolog.Logger

	newAdapter func(cfg *payerconfig.IntegrationConfig, deps AdapterDeps) (Adapter, error)
	now        func() time.Time
}

type ServiceParams struct {
	Preauths   PreauthRepository
	Claims     ClaimRepository
	Cases      CaseRepository
	Txs        TransactionRepository
	Deductions DeductionRepository
	Configs    ConfigResolver
	Audit      *audit.Service
	Metrics    *metrics.Metrics
	Deps       AdapterDeps
	Log        zerolog.Logger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		preauths:   p.Preauths,
		claims:     p.Claims,
		cases:      p.Cases,
		txs:        p.Txs,
		deductions: p.Deductions,
		configs:    p.Configs,
		audit:      p.Audit,
		metrics:    p.Metrics,
		deps:       p.Deps,
		log:        p.Log,
		newAdapter: NewAdapter,
		now:        time.Now,
	}
}

// SubmitPreauth sends one pre-authorization to its payer. Exactly one
// gateway transaction records the attempt, SENT or FAILED.
func (s *Service) SubmitPreauth(ctx context.Context, preauthID uuid.UUID) (*GatewayResult, error) {
	p, err := s.preauths.GetByID(ctx, preauthID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("preauth request %s not found", preauthID)
	}

	ic, err := s.cases.GetByID(ctx, p.CaseID)
	if err != nil {
		return nil, err
	}
	if ic == nil {
		return nil, fmt.Errorf("insurance case %s not found", p.CaseID)
	}

	cfg, adapter, err := s.resolveAdapter(ctx, p.BranchID, p.PayerID)
	if err != nil {
		return nil, err
	}

	sub := s.buildPreauthSubmission(ctx, p, ic)
	tx := &GatewayTransaction{
		BranchID:       p.BranchID,
		PayerID:        p.PayerID,
		TxType:         TxTypePreauthSubmit,
		TxStatus:       TxStatusQueued,
		EntityType:     EntityPreauth,
		EntityID:       p.ID.String(),
		RequestPayload: submissionSnapshot(sub),
		Attempts:       1,
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record gateway transaction: %w", err)
	}

	start := s.now()
	result, submitErr := adapter.SubmitPreauth(ctx, sub)
	s.metrics.ObserveAdapter(cfg.IntegrationMode, "submit_preauth", start)

	if submitErr != nil || result == nil || !result.Success {
		s.failTransaction(ctx, tx, result, submitErr)
		s.metrics.Submissions.WithLabelValues(EntityPreauth, cfg.IntegrationMode, "failed").Inc()
		if submitErr != nil {
			return result, submitErr
		}
		return result, fmt.Errorf("preauth submission rejected: %s", result.Message)
	}

	s.completeTransaction(ctx, tx, result)
	s.metrics.Submissions.WithLabelValues(EntityPreauth, cfg.IntegrationMode, "sent").Inc()

	now := s.now()
	p.Status = PreauthStatusSubmitted
	p.GatewayRefID = &result.ExternalRefID
	p.SubmittedAt = &now
	if err := s.preauths.Update(ctx, p); err != nil {
		return result, fmt.Errorf("update preauth after submission: %w", err)
	}

	s.audit.Log(ctx, audit.ActionPreauthSubmit, EntityPreauth, p.ID.String(), map[string]interface{}{
		"mode":            cfg.IntegrationMode,
		"external_ref_id": result.ExternalRefID,
	})
	return result, nil
}

// SubmitClaim sends one claim to its payer.
func (s *Service) SubmitClaim(ctx context.Context, claimID uuid.UUID) (*GatewayResult, error) {
	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("claim %s not found", claimID)
	}

	ic, err := s.cases.GetByID(ctx, c.CaseID)
	if err != nil {
		return nil, err
	}
	if ic == nil {
		return nil, fmt.Errorf("insurance case %s not found", c.CaseID)
	}

	cfg, adapter, err := s.resolveAdapter(ctx, c.BranchID, c.PayerID)
	if err != nil {
		return nil, err
	}

	sub, err := s.buildClaimSubmission(ctx, c, ic)
	if err != nil {
		return nil, err
	}
	tx := &GatewayTransaction{
		BranchID:       c.BranchID,
		PayerID:        c.PayerID,
		TxType:         TxTypeClaimSubmit,
		TxStatus:       TxStatusQueued,
		EntityType:     EntityClaim,
		EntityID:       c.ID.String(),
		RequestPayload: submissionSnapshot(sub),
		Attempts:       1,
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record gateway transaction: %w", err)
	}

	start := s.now()
	result, submitErr := adapter.SubmitClaim(ctx, sub)
	s.metrics.ObserveAdapter(cfg.IntegrationMode, "submit_claim", start)

	if submitErr != nil || result == nil || !result.Success {
		s.failTransaction(ctx, tx, result, submitErr)
		s.metrics.Submissions.WithLabelValues(EntityClaim, cfg.IntegrationMode, "failed").Inc()
		if submitErr != nil {
			return result, submitErr
		}
		return result, fmt.Errorf("claim submission rejected: %s", result.Message)
	}

	s.completeTransaction(ctx, tx, result)
	s.metrics.Submissions.WithLabelValues(EntityClaim, cfg.IntegrationMode, "sent").Inc()

	now := s.now()
	c.Status = ClaimStatusSubmitted
	c.GatewayRefID = &result.ExternalRefID
	c.SubmittedAt = &now
	if err := s.claims.Update(ctx, c); err != nil {
		return result, fmt.Errorf("update claim after submission: %w", err)
	}

	s.audit.Log(ctx, audit.ActionClaimSubmit, EntityClaim, c.ID.String(), map[string]interface{}{
		"mode":            cfg.IntegrationMode,
		"external_ref_id": result.ExternalRefID,
	})
	return result, nil
}

// GetPreauthStatus asks the payer for the current decision without touching
// the local entity. The check itself is still ledgered as a transaction.
func (s *Service) GetPreauthStatus(ctx context.Context, preauthID uuid.UUID) (*StatusResult, error) {
	_, res, err := s.checkPreauthStatus(ctx, preauthID)
	return res, err
}

// GetClaimStatus asks the payer for the current decision without touching
// the local entity.
func (s *Service) GetClaimStatus(ctx context.Context, claimID uuid.UUID) (*StatusResult, error) {
	_, res, err := s.checkClaimStatus(ctx, claimID)
	return res, err
}

// RefreshPreauthStatus polls the payer and applies any decision.
func (s *Service) RefreshPreauthStatus(ctx context.Context, preauthID uuid.UUID) (*StatusResult, error) {
	p, res, err := s.checkPreauthStatus(ctx, preauthID)
	if err != nil {
		return nil, err
	}

	if err := s.applyPreauthStatus(ctx, p, res); err != nil {
		return res, err
	}
	return res, nil
}

// RefreshClaimStatus polls the payer and applies any decision.
func (s *Service) RefreshClaimStatus(ctx context.Context, claimID uuid.UUID) (*StatusResult, error) {
	c, res, err := s.checkClaimStatus(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if err := s.applyClaimStatus(ctx, c, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) checkPreauthStatus(ctx context.Context, preauthID uuid.UUID) (*PreauthRequest, *StatusResult, error) {
	p, err := s.preauths.GetByID(ctx, preauthID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, fmt.Errorf("preauth request %s not found", preauthID)
	}
	if p.GatewayRefID == nil || *p.GatewayRefID == "" {
		return nil, nil, fmt.Errorf("preauth request %s has not been submitted", preauthID)
	}

	cfg, adapter, err := s.resolveAdapter(ctx, p.BranchID, p.PayerID)
	if err != nil {
		return nil, nil, err
	}

	tx := s.newStatusCheckTx(p.BranchID, p.PayerID, EntityPreauth, p.ID.String(), *p.GatewayRefID)
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("record gateway transaction: %w", err)
	}

	start := s.now()
	res, err := adapter.PreauthStatus(ctx, *p.GatewayRefID)
	s.metrics.ObserveAdapter(cfg.IntegrationMode, "preauth_status", start)
	s.metrics.StatusChecks.WithLabelValues(EntityPreauth, cfg.IntegrationMode).Inc()
	if err != nil {
		s.failTransaction(ctx, tx, nil, err)
		return nil, nil, err
	}

	s.completeStatusCheckTx(ctx, tx, res)
	return p, res, nil
}

func (s *Service) checkClaimStatus(ctx context.Context, claimID uuid.UUID) (*Claim, *StatusResult, error) {
	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, fmt.Errorf("claim %s not found", claimID)
	}
	if c.GatewayRefID == nil || *c.GatewayRefID == "" {
		return nil, nil, fmt.Errorf("claim %s has not been submitted", claimID)
	}

	cfg, adapter, err := s.resolveAdapter(ctx, c.BranchID, c.PayerID)
	if err != nil {
		return nil, nil, err
	}

	tx := s.newStatusCheckTx(c.BranchID, c.PayerID, EntityClaim, c.ID.String(), *c.GatewayRefID)
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("record gateway transaction: %w", err)
	}

	start := s.now()
	res, err := adapter.ClaimStatus(ctx, *c.GatewayRefID)
	s.metrics.ObserveAdapter(cfg.IntegrationMode, "claim_status", start)
	s.metrics.StatusChecks.WithLabelValues(EntityClaim, cfg.IntegrationMode).Inc()
	if err != nil {
		s.failTransaction(ctx, tx, nil, err)
		return nil, nil, err
	}

	s.completeStatusCheckTx(ctx, tx, res)
	return c, res, nil
}

func (s *Service) newStatusCheckTx(branchID, payerID uuid.UUID, entityType, entityID, externalRef string) *GatewayTransaction {
	ref := externalRef
	return &GatewayTransaction{
		BranchID:      branchID,
		PayerID:       payerID,
		TxType:        TxTypeStatusCheck,
		TxStatus:      TxStatusQueued,
		EntityType:    entityType,
		EntityID:      entityID,
		ExternalRefID: &ref,
		Attempts:      1,
	}
}

func (s *Service) completeStatusCheckTx(ctx context.Context, tx *GatewayTransaction, res *StatusResult) {
	now := s.now()
	tx.TxStatus = TxStatusResponseReceived
	tx.SentAt = &now
	tx.RespondedAt = &now
	tx.ResponsePayload = res.Raw
	if err := s.txs.Update(ctx, tx); err != nil {
		s.log.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("updating gateway transaction failed")
	}
}

// CheckCoverage asks the payer whether a policy covers a treatment.
func (s *Service) CheckCoverage(ctx context.Context, branchID, payerID uuid.UUID, check *CoverageCheck) (*CoverageResult, error) {
	cfg, adapter, err := s.resolveAdapter(ctx, branchID, payerID)
	if err != nil {
		return nil, err
	}
	start := s.now()
	res, err := adapter.CheckCoverage(ctx, check)
	s.metrics.ObserveAdapter(cfg.IntegrationMode, "check_coverage", start)
	return res, err
}

// applyPreauthStatus maps a normalized status onto the preauth lifecycle and
// persists financial outcomes. Shared by polling and webhook ingestion so a
// status can never mean two different things depending on how it arrived.
func (s *Service) applyPreauthStatus(ctx context.Context, p *PreauthRequest, res *StatusResult) error {
	mapped := mapPreauthStatus(res.Status)
	if mapped == "" {
		return nil
	}

	now := s.now()
	p.Status = mapped
	switch mapped {
	case PreauthStatusApproved:
		if res.ApprovedAmount != nil {
			p.ApprovedAmount = res.ApprovedAmount
		}
		p.ApprovedAt = &now
	case PreauthStatusRejected:
		if res.RejectionReason != "" {
			p.RejectionReason = &res.RejectionReason
		}
		p.RejectedAt = &now
	}
	if err := s.preauths.Update(ctx, p); err != nil {
		return fmt.Errorf("update preauth status: %w", err)
	}

	if mapped == PreauthStatusApproved {
		if err := s.cases.UpdateStatus(ctx, p.CaseID, CaseStatusPreauthApproved, nil, nil); err != nil {
			return fmt.Errorf("propagate case status: %w", err)
		}
	}
	return nil
}

// applyClaimStatus maps a normalized status onto the claim lifecycle,
// persists financial outcomes and deductions, and propagates to the case.
func (s *Service) applyClaimStatus(ctx context.Context, c *Claim, res *StatusResult) error {
	mapped := mapClaimStatus(res.Status)
	if mapped == "" {
		return nil
	}

	now := s.now()
	c.Status = mapped
	switch mapped {
	case ClaimStatusApproved, ClaimStatusPartiallyApproved:
		if res.ApprovedAmount != nil {
			c.ApprovedAmount = res.ApprovedAmount
		}
		c.ApprovedAt = &now
	case ClaimStatusRejected:
		if res.RejectionReason != "" {
			c.RejectionReason = &res.RejectionReason
		}
		c.RejectedAt = &now
	case ClaimStatusPaid:
		if res.ApprovedAmount != nil {
			c.PaidAmount = res.ApprovedAmount
		} else if c.ApprovedAmount != nil {
			c.PaidAmount = c.ApprovedAmount
		}
		c.PaidAt = &now
	case ClaimStatusAcknowledged:
		c.AcknowledgedAt = &now
	}

	if len(res.Deductions) > 0 {
		if err := s.deductions.DeleteByClaim(ctx, c.ID); err != nil {
			return fmt.Errorf("clear claim deductions: %w", err)
		}
		var total float64
		for _, d := range res.Deductions {
			total += d.Amount
			row := &ClaimDeduction{
				ClaimID:  c.ID,
				Category: d.Code,
				Amount:   d.Amount,
				Reason:   d.Reason,
			}
			if err := s.deductions.Create(ctx, row); err != nil {
				return fmt.Errorf("record claim deduction: %w", err)
			}
		}
		c.DeductedAmount = &total
	}

	if err := s.claims.Update(ctx, c); err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}

	switch mapped {
	case ClaimStatusApproved, ClaimStatusPartiallyApproved:
		claimed := c.ClaimedAmount
		if err := s.cases.UpdateStatus(ctx, c.CaseID, CaseStatusClaimApproved, &claimed, nil); err != nil {
			return fmt.Errorf("propagate case status: %w", err)
		}
	case ClaimStatusPaid:
		if err := s.cases.UpdateStatus(ctx, c.CaseID, CaseStatusSettled, nil, c.PaidAmount); err != nil {
			return fmt.Errorf("propagate case status: %w", err)
		}
	}
	return nil
}

func (s *Service) resolveAdapter(ctx context.Context, branchID, payerID uuid.UUID) (*payerconfig.IntegrationConfig, Adapter, error) {
	cfg, err := s.configs.FindActive(ctx, branchID, payerID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve payer config: %w", err)
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("no active payer integration config for payer %s", payerID)
	}
	adapter, err := s.newAdapter(cfg, s.deps)
	if err != nil {
		return nil, nil, err
	}
	return cfg, adapter, nil
}

func (s *Service) buildPreauthSubmission(ctx context.Context, p *PreauthRequest, ic *InsuranceCase) *PreauthSubmission {
	sub := &PreauthSubmission{
		PreauthID:       p.ID.String(),
		CaseID:          p.CaseID.String(),
		PatientName:     ic.PatientName,
		PatientGender:   ic.PatientGender,
		PolicyNumber:    ic.PolicyNumber,
		MemberID:        ic.EffectiveMemberID(),
		ProviderCode:    ic.ProviderCode,
		DiagnosisCodes:  p.DiagnosisCodes,
		ProcedureCodes:  p.ProcedureCodes,
		PackageCode:     p.PackageCode,
		RequestedAmount: p.RequestedAmount,
		TreatingDoctor:  p.TreatingDoctor,
	}
	if ic.PatientDOB != nil {
		sub.PatientDOB = ic.PatientDOB.Format("2006-01-02")
	}
	if p.AdmissionDate != nil {
		sub.AdmissionDate = p.AdmissionDate.Format("2006-01-02")
	}
	sub.Documents = s.caseDocuments(ctx, p.CaseID)
	return sub
}

func (s *Service) buildClaimSubmission(ctx context.Context, c *Claim, ic *InsuranceCase) (*ClaimSubmission, error) {
	sub := &ClaimSubmission{
		ClaimID:        c.ID.String(),
		CaseID:         c.CaseID.String(),
		ClaimNumber:    c.ClaimNumber,
		PatientName:    ic.PatientName,
		PatientGender:  ic.PatientGender,
		PolicyNumber:   ic.PolicyNumber,
		MemberID:       ic.EffectiveMemberID(),
		ProviderCode:   ic.ProviderCode,
		DiagnosisCodes: c.DiagnosisCodes,
		ProcedureCodes: c.ProcedureCodes,
		BillNumber:     c.BillNumber,
		TotalAmount:    c.TotalAmount,
		ClaimedAmount:  c.ClaimedAmount,
	}
	if ic.PatientDOB != nil {
		sub.PatientDOB = ic.PatientDOB.Format("2006-01-02")
	}
	if c.AdmissionDate != nil {
		sub.AdmissionDate = c.AdmissionDate.Format("2006-01-02")
	}
	if c.DischargeDate != nil {
		sub.DischargeDate = c.DischargeDate.Format("2006-01-02")
	}

	items, err := s.claims.ListLineItems(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load claim line items: %w", err)
	}
	for _, li := range items {
		sub.LineItems = append(sub.LineItems, LineItem{
			Code:        li.Code,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Amount:      li.Amount,
		})
	}
	sub.Documents = s.caseDocuments(ctx, c.CaseID)
	return sub, nil
}

// caseDocuments loads attachments best-effort: a missing document listing
// degrades the submission, it does not block it.
func (s *Service) caseDocuments(ctx context.Context, caseID uuid.UUID) []Document {
	docs, err := s.cases.ListDocuments(ctx, caseID)
	if err != nil {
		s.log.Warn().Err(err).Str("case_id", caseID.String()).Msg("loading case documents failed")
		return nil
	}
	var out []Document
	for _, d := range docs {
		out = append(out, Document{Type: d.DocType, Name: d.Name, URL: d.URL})
	}
	return out
}

func (s *Service) completeTransaction(ctx context.Context, tx *GatewayTransaction, result *GatewayResult) {
	now := s.now()
	tx.TxStatus = TxStatusSent
	tx.SentAt = &now
	tx.ResponsePayload = result.Raw
	if result.ExternalRefID != "" {
		tx.ExternalRefID = &result.ExternalRefID
	}
	if err := s.txs.Update(ctx, tx); err != nil {
		s.log.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("updating gateway transaction failed")
	}
}

func (s *Service) failTransaction(ctx context.Context, tx *GatewayTransaction, result *GatewayResult, cause error) {
	tx.TxStatus = TxStatusFailed
	msg := ""
	if cause != nil {
		msg = cause.Error()
	} else if result != nil {
		msg = result.Message
	}
	tx.LastError = &msg
	if result != nil {
		tx.ResponsePayload = result.Raw
	}
	if err := s.txs.Update(ctx, tx); err != nil {
		s.log.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("updating gateway transaction failed")
	}
}

// submissionSnapshot records what was sent without assuming the payload is
// JSON-safe already.
func submissionSnapshot(v interface{}) map[string]interface{} {
	switch sub := v.(type) {
	case *PreauthSubmission:
		return map[string]interface{}{
			"preauth_id":       sub.PreauthID,
			"policy_number":    sub.PolicyNumber,
			"member_id":        sub.MemberID,
			"package_code":     sub.PackageCode,
			"requested_amount": sub.RequestedAmount,
		}
	case *ClaimSubmission:
		return map[string]interface{}{
			"claim_id":       sub.ClaimID,
			"claim_number":   sub.ClaimNumber,
			"policy_number":  sub.PolicyNumber,
			"member_id":      sub.MemberID,
			"claimed_amount": sub.ClaimedAmount,
		}
	default:
		return nil
	}
}
