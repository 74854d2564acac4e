package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payerlink/payerlink/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// PreauthRepoPG

type PreauthRepoPG struct {
	pool *pgxpool.Pool
}

func NewPreauthRepoPG(pool *pgxpool.Pool) *PreauthRepoPG {
	return &PreauthRepoPG{pool: pool}
}

const preauthCols = `id, case_id, branch_id, payer_id, status, requested_amount, approved_amount,
	package_code, diagnosis_codes, procedure_codes, treating_doctor, admission_date,
	gateway_ref_id, rejection_reason, submitted_at, approved_at, rejected_at,
	created_at, updated_at`

func scanPreauth(row pgx.Row) (*PreauthRequest, error) {
	var p PreauthRequest
	err := row.Scan(
		&p.ID, &p.CaseID, &p.BranchID, &p.PayerID, &p.Status, &p.RequestedAmount, &p.ApprovedAmount,
		&p.PackageCode, &p.DiagnosisCodes, &p.ProcedureCodes, &p.TreatingDoctor, &p.AdmissionDate,
		&p.GatewayRefID, &p.RejectionReason, &p.SubmittedAt, &p.ApprovedAt, &p.RejectedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PreauthRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PreauthRequest, error) {
	q := fmt.Sprintf(`SELECT %s FROM preauth_request WHERE id = $1`, preauthCols)
	p, err := scanPreauth(conn(ctx, r.pool).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PreauthRepoPG) Update(ctx context.Context, p *PreauthRequest) error {
	q := fmt.Sprintf(`UPDATE preauth_request SET
			status = $2, requested_amount = $3, approved_amount = $4, package_code = $5,
			diagnosis_codes = $6, procedure_codes = $7, treating_doctor = $8, admission_date = $9,
			gateway_ref_id = $10, rejection_reason = $11, submitted_at = $12,
			approved_at = $13, rejected_at = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, preauthCols)

	updated, err := scanPreauth(conn(ctx, r.pool).QueryRow(ctx, q,
		p.ID,
		p.Status, p.RequestedAmount, p.ApprovedAmount, p.PackageCode,
		p.DiagnosisCodes, p.ProcedureCodes, p.TreatingDoctor, p.AdmissionDate,
		p.GatewayRefID, p.RejectionReason, p.SubmittedAt,
		p.ApprovedAt, p.RejectedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("preauth request %s not found", p.ID)
	}
	if err != nil {
		return fmt.Errorf("update preauth request: %w", err)
	}
	*p = *updated
	return nil
}

func (r *PreauthRepoPG) ListPollable(ctx context.Context, limit int) ([]*PreauthRequest, error) {
	q := fmt.Sprintf(`SELECT %s FROM preauth_request
		WHERE gateway_ref_id IS NOT NULL
		  AND status IN ('SUBMITTED', 'PREAUTH_QUERY_RAISED')
		ORDER BY updated_at ASC LIMIT $1`, preauthCols)
	return r.list(ctx, q, limit)
}

func (r *PreauthRepoPG) FindByGatewayRef(ctx context.Context, ref string) (*PreauthRequest, error) {
	q := fmt.Sprintf(`SELECT %s FROM preauth_request WHERE gateway_ref_id = $1
		ORDER BY updated_at DESC LIMIT 1`, preauthCols)
	p, err := scanPreauth(conn(ctx, r.pool).QueryRow(ctx, q, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PreauthRepoPG) list(ctx context.Context, q string, args ...interface{}) ([]*PreauthRequest, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PreauthRequest
	for rows.Next() {
		p, err := scanPreauth(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// ClaimRepoPG

type ClaimRepoPG struct {
	pool *pgxpool.Pool
}

func NewClaimRepoPG(pool *pgxpool.Pool) *ClaimRepoPG {
	return &ClaimRepoPG{pool: pool}
}

const claimCols = `id, case_id, branch_id, payer_id, claim_number, status, bill_number,
	total_amount, claimed_amount, approved_amount, paid_amount, deducted_amount,
	diagnosis_codes, procedure_codes, gateway_ref_id, rejection_reason,
	admission_date, discharge_date, submitted_at, acknowledged_at,
	approved_at, rejected_at, paid_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(
		&c.ID, &c.CaseID, &c.BranchID, &c.PayerID, &c.ClaimNumber, &c.Status, &c.BillNumber,
		&c.TotalAmount, &c.ClaimedAmount, &c.ApprovedAmount, &c.PaidAmount, &c.DeductedAmount,
		&c.DiagnosisCodes, &c.ProcedureCodes, &c.GatewayRefID, &c.RejectionReason,
		&c.AdmissionDate, &c.DischargeDate, &c.SubmittedAt, &c.AcknowledgedAt,
		&c.ApprovedAt, &c.RejectedAt, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClaimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	q := fmt.Sprintf(`SELECT %s FROM claim WHERE id = $1`, claimCols)
	c, err := scanClaim(conn(ctx, r.pool).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *ClaimRepoPG) Update(ctx context.Context, c *Claim) error {
	q := fmt.Sprintf(`UPDATE claim SET
			status = $2, bill_number = $3, total_amount = $4, claimed_amount = $5,
			approved_amount = $6, paid_amount = $7, deducted_amount = $8,
			diagnosis_codes = $9, procedure_codes = $10, gateway_ref_id = $11,
			rejection_reason = $12, admission_date = $13, discharge_date = $14,
			submitted_at = $15, acknowledged_at = $16, approved_at = $17,
			rejected_at = $18, paid_at = $19, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, claimCols)

	updated, err := scanClaim(conn(ctx, r.pool).QueryRow(ctx, q,
		c.ID,
		c.Status, c.BillNumber, c.TotalAmount, c.ClaimedAmount,
		c.ApprovedAmount, c.PaidAmount, c.DeductedAmount,
		c.DiagnosisCodes, c.ProcedureCodes, c.GatewayRefID,
		c.RejectionReason, c.AdmissionDate, c.DischargeDate,
		c.SubmittedAt, c.AcknowledgedAt, c.ApprovedAt,
		c.RejectedAt, c.PaidAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("claim %s not found", c.ID)
	}
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	*c = *updated
	return nil
}

func (r *ClaimRepoPG) ListLineItems(ctx context.Context, claimID uuid.UUID) ([]*ClaimLineItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, claim_id, code, description, quantity, unit_price, amount
		 FROM claim_line_item WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ClaimLineItem
	for rows.Next() {
		var li ClaimLineItem
		if err := rows.Scan(&li.ID, &li.ClaimID, &li.Code, &li.Description, &li.Quantity, &li.UnitPrice, &li.Amount); err != nil {
			return nil, err
		}
		items = append(items, &li)
	}
	return items, rows.Err()
}

func (r *ClaimRepoPG) ListPollable(ctx context.Context, limit int) ([]*Claim, error) {
	q := fmt.Sprintf(`SELECT %s FROM claim
		WHERE gateway_ref_id IS NOT NULL
		  AND status IN ('SUBMITTED', 'CLAIM_ACKNOWLEDGED', 'CLAIM_UNDER_REVIEW', 'CLAIM_QUERY_RAISED', 'CLAIM_APPROVED', 'CLAIM_PARTIALLY_APPROVED')
		ORDER BY updated_at ASC LIMIT $1`, claimCols)

	rows, err := conn(ctx, r.pool).Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *ClaimRepoPG) FindByGatewayRef(ctx context.Context, ref string) (*Claim, error) {
	q := fmt.Sprintf(`SELECT %s FROM claim WHERE gateway_ref_id = $1
		ORDER BY updated_at DESC LIMIT 1`, claimCols)
	c, err := scanClaim(conn(ctx, r.pool).QueryRow(ctx, q, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CaseRepoPG

type CaseRepoPG struct {
	pool *pgxpool.Pool
}

func NewCaseRepoPG(pool *pgxpool.Pool) *CaseRepoPG {
	return &CaseRepoPG{pool: pool}
}

const caseCols = `id, branch_id, payer_id, patient_name, patient_dob, patient_gender,
	policy_number, member_id, provider_code, status, claimed_amount, settled_amount,
	created_at, updated_at`

func scanCase(row pgx.Row) (*InsuranceCase, error) {
	var c InsuranceCase
	err := row.Scan(
		&c.ID, &c.BranchID, &c.PayerID, &c.PatientName, &c.PatientDOB, &c.PatientGender,
		&c.PolicyNumber, &c.MemberID, &c.ProviderCode, &c.Status, &c.ClaimedAmount, &c.SettledAmount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InsuranceCase, error) {
	q := fmt.Sprintf(`SELECT %s FROM insurance_case WHERE id = $1`, caseCols)
	c, err := scanCase(conn(ctx, r.pool).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *CaseRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, claimedAmount, settledAmount *float64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE insurance_case SET
			status = $2,
			claimed_amount = COALESCE($3, claimed_amount),
			settled_amount = COALESCE($4, settled_amount),
			updated_at = NOW()
		WHERE id = $1`, id, status, claimedAmount, settledAmount)
	if err != nil {
		return fmt.Errorf("update insurance case status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insurance case %s not found", id)
	}
	return nil
}

func (r *CaseRepoPG) ListDocuments(ctx context.Context, caseID uuid.UUID) ([]*CaseDocument, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, case_id, doc_type, name, url FROM insurance_case_document
		 WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CaseDocument
	for rows.Next() {
		var d CaseDocument
		if err := rows.Scan(&d.ID, &d.CaseID, &d.DocType, &d.Name, &d.URL); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

// TransactionRepoPG

type TransactionRepoPG struct {
	pool *pgxpool.Pool
}

func NewTransactionRepoPG(pool *pgxpool.Pool) *TransactionRepoPG {
	return &TransactionRepoPG{pool: pool}
}

const txCols = `id, branch_id, payer_id, tx_type, tx_status, entity_type, entity_id,
	external_ref_id, idempotency_key, request_payload, response_payload,
	attempts, last_error, sent_at, responded_at, created_at, updated_at`

func scanTx(row pgx.Row) (*GatewayTransaction, error) {
	var t GatewayTransaction
	err := row.Scan(
		&t.ID, &t.BranchID, &t.PayerID, &t.TxType, &t.TxStatus, &t.EntityType, &t.EntityID,
		&t.ExternalRefID, &t.IdempotencyKey, &t.RequestPayload, &t.ResponsePayload,
		&t.Attempts, &t.LastError, &t.SentAt, &t.RespondedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepoPG) Create(ctx context.Context, t *GatewayTransaction) error {
	q := fmt.Sprintf(`INSERT INTO gateway_transaction (
			branch_id, payer_id, tx_type, tx_status, entity_type, entity_id,
			external_ref_id, idempotency_key, request_payload, response_payload,
			attempts, last_error, sent_at, responded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING %s`, txCols)

	created, err := scanTx(conn(ctx, r.pool).QueryRow(ctx, q,
		t.BranchID, t.PayerID, t.TxType, t.TxStatus, t.EntityType, t.EntityID,
		t.ExternalRefID, t.IdempotencyKey, t.RequestPayload, t.ResponsePayload,
		t.Attempts, t.LastError, t.SentAt, t.RespondedAt,
	))
	if err != nil {
		return fmt.Errorf("insert gateway transaction: %w", err)
	}
	*t = *created
	return nil
}

func (r *TransactionRepoPG) Update(ctx context.Context, t *GatewayTransaction) error {
	q := fmt.Sprintf(`UPDATE gateway_transaction SET
			tx_status = $2, external_ref_id = $3, response_payload = $4,
			attempts = $5, last_error = $6, sent_at = $7, responded_at = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, txCols)

	updated, err := scanTx(conn(ctx, r.pool).QueryRow(ctx, q,
		t.ID,
		t.TxStatus, t.ExternalRefID, t.ResponsePayload,
		t.Attempts, t.LastError, t.SentAt, t.RespondedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("gateway transaction %s not found", t.ID)
	}
	if err != nil {
		return fmt.Errorf("update gateway transaction: %w", err)
	}
	*t = *updated
	return nil
}

func (r *TransactionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*GatewayTransaction, error) {
	q := fmt.Sprintf(`SELECT %s FROM gateway_transaction WHERE id = $1`, txCols)
	t, err := scanTx(conn(ctx, r.pool).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TransactionRepoPG) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*GatewayTransaction, int, error) {
	var total int
	countQ := `SELECT COUNT(*) FROM gateway_transaction WHERE entity_type = $1 AND entity_id = $2`
	if err := conn(ctx, r.pool).QueryRow(ctx, countQ, entityType, entityID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM gateway_transaction
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, txCols)
	return r.queryList(ctx, total, q, entityType, entityID, limit, offset)
}

func (r *TransactionRepoPG) List(ctx context.Context, branchID uuid.UUID, txType string, since *time.Time, limit, offset int) ([]*GatewayTransaction, int, error) {
	where := `WHERE branch_id = $1 AND ($2 = '' OR tx_type = $2) AND ($3::timestamptz IS NULL OR created_at >= $3)`

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM gateway_transaction `+where, branchID, txType, since).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM gateway_transaction %s
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`, txCols, where)
	return r.queryList(ctx, total, q, branchID, txType, since, limit, offset)
}

func (r *TransactionRepoPG) FindDuplicateWebhook(ctx context.Context, payerID uuid.UUID, idempotencyKey string) (*GatewayTransaction, error) {
	q := fmt.Sprintf(`SELECT %s FROM gateway_transaction
		WHERE payer_id = $1 AND tx_type = $2 AND tx_status = $3 AND idempotency_key = $4
		ORDER BY created_at DESC LIMIT 1`, txCols)
	t, err := scanTx(conn(ctx, r.pool).QueryRow(ctx, q,
		payerID, TxTypeWebhookInbound, TxStatusResponseReceived, idempotencyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TransactionRepoPG) queryList(ctx context.Context, total int, q string, args ...interface{}) ([]*GatewayTransaction, int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*GatewayTransaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// DeductionRepoPG

type DeductionRepoPG struct {
	pool *pgxpool.Pool
}

func NewDeductionRepoPG(pool *pgxpool.Pool) *DeductionRepoPG {
	return &DeductionRepoPG{pool: pool}
}

func (r *DeductionRepoPG) Create(ctx context.Context, d *ClaimDeduction) error {
	err := conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO claim_deduction (claim_id, category, amount, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		d.ClaimID, d.Category, d.Amount, d.Reason,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert claim deduction: %w", err)
	}
	return nil
}

func (r *DeductionRepoPG) DeleteByClaim(ctx context.Context, claimID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM claim_deduction WHERE claim_id = $1`, claimID)
	if err != nil {
		return fmt.Errorf("delete claim deductions: %w", err)
	}
	return nil
}

func (r *DeductionRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ClaimDeduction, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT id, claim_id, category, amount, reason, created_at
		 FROM claim_deduction WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ClaimDeduction
	for rows.Next() {
		var d ClaimDeduction
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.Category, &d.Amount, &d.Reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}
