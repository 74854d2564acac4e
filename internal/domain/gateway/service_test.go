package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/audit"
	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/metrics"
)

// In-memory fixtures shared by the orchestrator, webhook and poller tests.

type memPreauths struct {
	mu    sync.Mutex
	items map[uuid.UUID]*PreauthRequest
}

func newMemPreauths() *memPreauths {
	return &memPreauths{items: make(map[uuid.UUID]*PreauthRequest)}
}

func (m *memPreauths) put(p *PreauthRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.ID] = &cp
}

func (m *memPreauths) GetByID(_ context.Context, id uuid.UUID) (*PreauthRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.items[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memPreauths) Update(_ context.Context, p *PreauthRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *memPreauths) ListPollable(_ context.Context, limit int) ([]*PreauthRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PreauthRequest
	for _, p := range m.items {
		if p.GatewayRefID != nil && p.Status == PreauthStatusSubmitted && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPreauths) FindByGatewayRef(_ context.Context, ref string) (*PreauthRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.GatewayRefID != nil && *p.GatewayRefID == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

type memClaims struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Claim
	lines map[uuid.UUID][]*ClaimLineItem
}

func newMemClaims() *memClaims {
	return &memClaims{
		items: make(map[uuid.UUID]*Claim),
		lines: make(map[uuid.UUID][]*ClaimLineItem),
	}
}

func (m *memClaims) put(c *Claim) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.items[c.ID] = &cp
}

func (m *memClaims) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.items[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memClaims) Update(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *memClaims) ListLineItems(_ context.Context, claimID uuid.UUID) ([]*ClaimLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[claimID], nil
}

func (m *memClaims) ListPollable(_ context.Context, limit int) ([]*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Claim
	for _, c := range m.items {
		if c.GatewayRefID != nil && c.Status == ClaimStatusSubmitted && len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memClaims) FindByGatewayRef(_ context.Context, ref string) (*Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.GatewayRefID != nil && *c.GatewayRefID == ref {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

type memCases struct {
	mu    sync.Mutex
	items map[uuid.UUID]*InsuranceCase
}

func newMemCases() *memCases {
	return &memCases{items: make(map[uuid.UUID]*InsuranceCase)}
}

func (m *memCases) put(c *InsuranceCase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.items[c.ID] = &cp
}

func (m *memCases) GetByID(_ context.Context, id uuid.UUID) (*InsuranceCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.items[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCases) UpdateStatus(_ context.Context, id uuid.UUID, status string, claimedAmount, settledAmount *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil
	}
	c.Status = status
	if claimedAmount != nil {
		c.ClaimedAmount = claimedAmount
	}
	if settledAmount != nil {
		c.SettledAmount = settledAmount
	}
	return nil
}

func (m *memCases) ListDocuments(_ context.Context, _ uuid.UUID) ([]*CaseDocument, error) {
	return nil, nil
}

type memTxs struct {
	mu    sync.Mutex
	items []*GatewayTransaction
}

func (m *memTxs) Create(_ context.Context, t *GatewayTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	m.items = append(m.items, &cp)
	return nil
}

func (m *memTxs) Update(_ context.Context, t *GatewayTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items {
		if existing.ID == t.ID {
			cp := *t
			m.items[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *memTxs) GetByID(_ context.Context, id uuid.UUID) (*GatewayTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTxs) ListByEntity(_ context.Context, entityType, entityID string, _, _ int) ([]*GatewayTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*GatewayTransaction
	for _, t := range m.items {
		if t.EntityType == entityType && t.EntityID == entityID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *memTxs) List(_ context.Context, _ uuid.UUID, _ string, _ *time.Time, _, _ int) ([]*GatewayTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*GatewayTransaction(nil), m.items...), len(m.items), nil
}

func (m *memTxs) FindDuplicateWebhook(_ context.Context, payerID uuid.UUID, key string) (*GatewayTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.PayerID == payerID && t.TxType == TxTypeWebhookInbound &&
			t.TxStatus == TxStatusResponseReceived &&
			t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTxs) byType(txType string) []*GatewayTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*GatewayTransaction
	for _, t := range m.items {
		if t.TxType == txType {
			out = append(out, t)
		}
	}
	return out
}

type memDeductions struct {
	mu    sync.Mutex
	items []*ClaimDeduction
}

func (m *memDeductions) Create(_ context.Context, d *ClaimDeduction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	cp := *d
	m.items = append(m.items, &cp)
	return nil
}

func (m *memDeductions) DeleteByClaim(_ context.Context, claimID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*ClaimDeduction
	for _, d := range m.items {
		if d.ClaimID != claimID {
			kept = append(kept, d)
		}
	}
	m.items = kept
	return nil
}

func (m *memDeductions) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*ClaimDeduction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ClaimDeduction
	for _, d := range m.items {
		if d.ClaimID == claimID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubConfigs struct {
	cfg *payerconfig.IntegrationConfig
}

func (s *stubConfigs) FindActive(_ context.Context, _, _ uuid.UUID) (*payerconfig.IntegrationConfig, error) {
	return s.cfg, nil
}

func (s *stubConfigs) FindActiveByPayer(_ context.Context, _ uuid.UUID) (*payerconfig.IntegrationConfig, error) {
	return s.cfg, nil
}

type stubAdapter struct {
	mu           sync.Mutex
	submitResult *GatewayResult
	submitErr    error
	statusResult *StatusResult
	statusErr    error
	submitCalls  int
	statusCalls  int
}

func (a *stubAdapter) Mode() string { return payerconfig.ModeDirectAPI }

func (a *stubAdapter) SubmitPreauth(_ context.Context, _ *PreauthSubmission) (*GatewayResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls++
	return a.submitResult, a.submitErr
}

func (a *stubAdapter) SubmitClaim(_ context.Context, _ *ClaimSubmission) (*GatewayResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls++
	return a.submitResult, a.submitErr
}

func (a *stubAdapter) PreauthStatus(_ context.Context, _ string) (*StatusResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCalls++
	return a.statusResult, a.statusErr
}

func (a *stubAdapter) ClaimStatus(_ context.Context, _ string) (*StatusResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCalls++
	return a.statusResult, a.statusErr
}

func (a *stubAdapter) CheckCoverage(_ context.Context, _ *CoverageCheck) (*CoverageResult, error) {
	return &CoverageResult{Eligible: true}, nil
}

type gatewayFixture struct {
	svc      *Service
	preauths *memPreauths
	claims   *memClaims
	cases    *memCases
	txs      *memTxs
	deducts  *memDeductions
	adapter  *stubAdapter
	cfg      *payerconfig.IntegrationConfig
}

type nopAuditRepo struct{}

func (nopAuditRepo) Create(context.Context, *audit.Event) error { return nil }
func (nopAuditRepo) ListByEntity(context.Context, string, string, int, int) ([]*audit.Event, int, error) {
	return nil, 0, nil
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{
		preauths: newMemPreauths(),
		claims:   newMemClaims(),
		cases:    newMemCases(),
		txs:      &memTxs{},
		deducts:  &memDeductions{},
		adapter:  &stubAdapter{},
		cfg: &payerconfig.IntegrationConfig{
			ID:              uuid.New(),
			BranchID:        uuid.New(),
			PayerID:         uuid.New(),
			PayerCode:       "ACME",
			IntegrationMode: payerconfig.ModeDirectAPI,
			IsActive:        true,
		},
	}
	f.svc = NewService(ServiceParams{
		Preauths:   f.preauths,
		Claims:     f.claims,
		Cases:      f.cases,
		Txs:        f.txs,
		Deductions: f.deducts,
		Configs:    &stubConfigs{cfg: f.cfg},
		Audit:      audit.NewService(nopAuditRepo{}, zerolog.Nop()),
		Metrics:    metrics.New(),
		Log:        zerolog.Nop(),
	})
	f.svc.newAdapter = func(_ *payerconfig.IntegrationConfig, _ AdapterDeps) (Adapter, error) {
		return f.adapter, nil
	}
	return f
}

func (f *gatewayFixture) seedPreauth() *PreauthRequest {
	ic := &InsuranceCase{
		ID:           uuid.New(),
		BranchID:     f.cfg.BranchID,
		PayerID:      f.cfg.PayerID,
		PatientName:  "Asha Rao",
		PolicyNumber: "POL-1001",
		ProviderCode: "HOSP-01",
		Status:       "ADMITTED",
	}
	f.cases.put(ic)
	p := &PreauthRequest{
		ID:              uuid.New(),
		CaseID:          ic.ID,
		BranchID:        f.cfg.BranchID,
		PayerID:         f.cfg.PayerID,
		Status:          PreauthStatusDraft,
		RequestedAmount: 50000,
		PackageCode:     "HBP001",
	}
	f.preauths.put(p)
	return p
}

func (f *gatewayFixture) seedClaim() *Claim {
	ic := &InsuranceCase{
		ID:           uuid.New(),
		BranchID:     f.cfg.BranchID,
		PayerID:      f.cfg.PayerID,
		PatientName:  "Asha Rao",
		PolicyNumber: "POL-1001",
		ProviderCode: "HOSP-01",
		Status:       "DISCHARGED",
	}
	f.cases.put(ic)
	c := &Claim{
		ID:            uuid.New(),
		CaseID:        ic.ID,
		BranchID:      f.cfg.BranchID,
		PayerID:       f.cfg.PayerID,
		ClaimNumber:   "CLM-2026-0001",
		Status:        ClaimStatusDraft,
		TotalAmount:   80000,
		ClaimedAmount: 75000,
	}
	f.claims.put(c)
	return c
}

func TestSubmitPreauth_RecordsSentTransaction(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()
	f.adapter.submitResult = &GatewayResult{Success: true, ExternalRefID: "REF-100"}

	result, err := f.svc.SubmitPreauth(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.ExternalRefID != "REF-100" {
		t.Fatalf("unexpected result: %+v", result)
	}

	txs := f.txs.byType(TxTypePreauthSubmit)
	if len(txs) != 1 {
		t.Fatalf("expected exactly 1 submission transaction, got %d", len(txs))
	}
	if txs[0].TxStatus != TxStatusSent {
		t.Errorf("expected tx status SENT, got %s", txs[0].TxStatus)
	}
	if txs[0].SentAt == nil {
		t.Error("expected sent_at to be stamped")
	}

	updated, _ := f.preauths.GetByID(context.Background(), p.ID)
	if updated.Status != PreauthStatusSubmitted {
		t.Errorf("expected preauth SUBMITTED, got %s", updated.Status)
	}
	if updated.GatewayRefID == nil || *updated.GatewayRefID != "REF-100" {
		t.Error("expected gateway ref to be stamped on the preauth")
	}
}

func TestSubmitPreauth_RecordsFailedTransaction(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()
	f.adapter.submitResult = &GatewayResult{Success: false, Message: "payer timeout"}
	f.adapter.submitErr = context.DeadlineExceeded

	_, err := f.svc.SubmitPreauth(context.Background(), p.ID)
	if err == nil {
		t.Fatal("expected submission error")
	}

	txs := f.txs.byType(TxTypePreauthSubmit)
	if len(txs) != 1 {
		t.Fatalf("expected exactly 1 transaction, got %d", len(txs))
	}
	if txs[0].TxStatus != TxStatusFailed {
		t.Errorf("expected tx status FAILED, got %s", txs[0].TxStatus)
	}
	if txs[0].LastError == nil {
		t.Error("expected last_error to be recorded")
	}

	updated, _ := f.preauths.GetByID(context.Background(), p.ID)
	if updated.Status != PreauthStatusDraft {
		t.Errorf("failed submission must not advance the preauth, got %s", updated.Status)
	}
}

func TestSubmitClaim_RecordsSentTransaction(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.seedClaim()
	f.adapter.submitResult = &GatewayResult{Success: true, ExternalRefID: "CLM-REF-7"}

	if _, err := f.svc.SubmitClaim(context.Background(), c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txs := f.txs.byType(TxTypeClaimSubmit)
	if len(txs) != 1 || txs[0].TxStatus != TxStatusSent {
		t.Fatalf("expected 1 SENT claim transaction, got %+v", txs)
	}
	updated, _ := f.claims.GetByID(context.Background(), c.ID)
	if updated.Status != ClaimStatusSubmitted || updated.GatewayRefID == nil {
		t.Errorf("claim not updated after submission: %+v", updated)
	}
}

func TestRefreshPreauthStatus_Approval(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()
	ref := "REF-200"
	p.Status = PreauthStatusSubmitted
	p.GatewayRefID = &ref
	f.preauths.put(p)

	amount := 45000.0
	f.adapter.statusResult = &StatusResult{Status: StatusApproved, ApprovedAmount: &amount}

	if _, err := f.svc.RefreshPreauthStatus(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := f.preauths.GetByID(context.Background(), p.ID)
	if updated.Status != PreauthStatusApproved {
		t.Errorf("expected PREAUTH_APPROVED, got %s", updated.Status)
	}
	if updated.ApprovedAmount == nil || *updated.ApprovedAmount != 45000 {
		t.Error("expected approved amount persisted")
	}
	if updated.ApprovedAt == nil {
		t.Error("expected approved_at stamped")
	}

	ic, _ := f.cases.GetByID(context.Background(), p.CaseID)
	if ic.Status != CaseStatusPreauthApproved {
		t.Errorf("expected case PREAUTH_APPROVED, got %s", ic.Status)
	}
}

func TestRefreshClaimStatus_PaidSettlesCase(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.seedClaim()
	ref := "CLM-REF-9"
	c.Status = ClaimStatusSubmitted
	c.GatewayRefID = &ref
	approved := 70000.0
	c.ApprovedAmount = &approved
	f.claims.put(c)

	f.adapter.statusResult = &StatusResult{Status: StatusPaid}

	if _, err := f.svc.RefreshClaimStatus(context.Background(), c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := f.claims.GetByID(context.Background(), c.ID)
	if updated.Status != ClaimStatusPaid {
		t.Errorf("expected CLAIM_PAID, got %s", updated.Status)
	}
	if updated.PaidAmount == nil || *updated.PaidAmount != 70000 {
		t.Error("expected paid amount to fall back to approved amount")
	}
	if updated.PaidAt == nil {
		t.Error("expected paid_at stamped")
	}

	ic, _ := f.cases.GetByID(context.Background(), c.CaseID)
	if ic.Status != CaseStatusSettled {
		t.Errorf("expected case SETTLED, got %s", ic.Status)
	}
	if ic.SettledAmount == nil || *ic.SettledAmount != 70000 {
		t.Error("expected settled amount on the case")
	}
}

func TestRefreshClaimStatus_DeductionsReplaceAndSum(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.seedClaim()
	ref := "CLM-REF-11"
	c.Status = ClaimStatusSubmitted
	c.GatewayRefID = &ref
	f.claims.put(c)

	// Stale row from a previous refresh must not survive.
	_ = f.deducts.Create(context.Background(), &ClaimDeduction{ClaimID: c.ID, Category: DeductionOther, Amount: 1})

	approved := 60000.0
	f.adapter.statusResult = &StatusResult{
		Status:         StatusPartiallyApproved,
		ApprovedAmount: &approved,
		Deductions: []Deduction{
			{Code: DeductionCopay, Amount: 5000, Reason: "10% copay"},
			{Code: DeductionNonPayable, Amount: 1500, Reason: "consumables"},
		},
	}

	if _, err := f.svc.RefreshClaimStatus(context.Background(), c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, _ := f.deducts.ListByClaim(context.Background(), c.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 deduction rows, got %d", len(rows))
	}
	updated, _ := f.claims.GetByID(context.Background(), c.ID)
	if updated.DeductedAmount == nil || *updated.DeductedAmount != 6500 {
		t.Errorf("expected deducted amount 6500, got %v", updated.DeductedAmount)
	}
	if updated.Status != ClaimStatusPartiallyApproved {
		t.Errorf("expected CLAIM_PARTIALLY_APPROVED, got %s", updated.Status)
	}
}

func TestRefreshPreauthStatus_NotSubmitted(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()

	_, err := f.svc.RefreshPreauthStatus(context.Background(), p.ID)
	if err == nil || !strings.Contains(err.Error(), "not been submitted") {
		t.Fatalf("expected not-submitted error, got %v", err)
	}
}

func TestSubmit_NoActiveConfig(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()
	f.svc.configs = &stubConfigs{cfg: nil}

	_, err := f.svc.SubmitPreauth(context.Background(), p.ID)
	if err == nil || !strings.Contains(err.Error(), "no active payer integration config") {
		t.Fatalf("expected missing-config error, got %v", err)
	}
	if len(f.txs.byType(TxTypePreauthSubmit)) != 0 {
		t.Error("no transaction should be recorded when resolution fails")
	}
}

func TestRefreshPreauthStatus_LedgersStatusCheck(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()
	ref := "REF-300"
	p.Status = PreauthStatusSubmitted
	p.GatewayRefID = &ref
	f.preauths.put(p)

	f.adapter.statusResult = &StatusResult{Status: StatusPending}

	if _, err := f.svc.RefreshPreauthStatus(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := f.txs.byType(TxTypeStatusCheck)
	if len(checks) != 1 {
		t.Fatalf("expected 1 status-check transaction, got %d", len(checks))
	}
	tx := checks[0]
	if tx.TxStatus != TxStatusResponseReceived {
		t.Errorf("tx status = %s, want %s", tx.TxStatus, TxStatusResponseReceived)
	}
	if tx.ExternalRefID == nil || *tx.ExternalRefID != ref {
		t.Error("expected external ref recorded on the status check")
	}
}

func TestGetClaimStatus_DoesNotMutateEntity(t *testing.T) {
	f := newGatewayFixture(t)
	c := f.seedClaim()
	ref := "CLM-REF-41"
	c.Status = ClaimStatusSubmitted
	c.GatewayRefID = &ref
	f.claims.put(c)

	amount := 60000.0
	f.adapter.statusResult = &StatusResult{Status: StatusApproved, ApprovedAmount: &amount}

	res, err := f.svc.GetClaimStatus(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusApproved {
		t.Errorf("status = %s, want %s", res.Status, StatusApproved)
	}

	unchanged, _ := f.claims.GetByID(context.Background(), c.ID)
	if unchanged.Status != ClaimStatusSubmitted {
		t.Errorf("passthrough check mutated the claim to %s", unchanged.Status)
	}
	if unchanged.ApprovedAmount != nil {
		t.Error("passthrough check persisted an approved amount")
	}

	if len(f.txs.byType(TxTypeStatusCheck)) != 1 {
		t.Error("expected the passthrough check in the transaction ledger")
	}
}

func TestGetPreauthStatus_AdapterFailureLedgeredAsFailed(t *testing.T) {
	f := newGatewayFixture(t)
	p := f.seedPreauth()
	ref := "REF-ERR"
	p.Status = PreauthStatusSubmitted
	p.GatewayRefID = &ref
	f.preauths.put(p)

	f.adapter.statusErr = errors.New("connection refused")

	if _, err := f.svc.GetPreauthStatus(context.Background(), p.ID); err == nil {
		t.Fatal("expected transport error")
	}

	checks := f.txs.byType(TxTypeStatusCheck)
	if len(checks) != 1 {
		t.Fatalf("expected 1 status-check transaction, got %d", len(checks))
	}
	if checks[0].TxStatus != TxStatusFailed {
		t.Errorf("tx status = %s, want FAILED", checks[0].TxStatus)
	}
}
