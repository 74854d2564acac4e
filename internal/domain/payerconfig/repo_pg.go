package payerconfig

import (
	"context"
	"errors"
	"fmt"

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

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const configCols = `id, branch_id, payer_id, payer_code, payer_name, integration_mode,
	hcx_participant_code, hcx_endpoint_url, hcx_recipient_code, hcx_auth_config,
	api_base_url, api_auth_method, api_auth_config,
	sftp_host, sftp_port, sftp_path, sftp_auth_config,
	portal_url, portal_notes,
	webhook_secret, webhook_url,
	retry_max_attempts, retry_backoff_ms, polling_interval_ms,
	is_active, created_at, updated_at`

func scanConfig(row pgx.Row) (*IntegrationConfig, error) {
	var c IntegrationConfig
	err := row.Scan(
		&c.ID, &c.BranchID, &c.PayerID, &c.PayerCode, &c.PayerName, &c.IntegrationMode,
		&c.HCXParticipantCode, &c.HCXEndpointURL, &c.HCXRecipientCode, &c.HCXAuthConfig,
		&c.APIBaseURL, &c.APIAuthMethod, &c.APIAuthConfig,
		&c.SFTPHost, &c.SFTPPort, &c.SFTPPath, &c.SFTPAuthConfig,
		&c.PortalURL, &c.PortalNotes,
		&c.WebhookSecret, &c.WebhookURL,
		&c.RetryMaxAttempts, &c.RetryBackoffMs, &c.PollingIntervalMs,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RepoPG) Create(ctx context.Context, cfg *IntegrationConfig) error {
	q := fmt.Sprintf(`INSERT INTO payer_integration_config (
			branch_id, payer_id, payer_code, payer_name, integration_mode,
			hcx_participant_code, hcx_endpoint_url, hcx_recipient_code, hcx_auth_config,
			api_base_url, api_auth_method, api_auth_config,
			sftp_host, sftp_port, sftp_path, sftp_auth_config,
			portal_url, portal_notes,
			webhook_secret, webhook_url,
			retry_max_attempts, retry_backoff_ms, polling_interval_ms,
			is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		RETURNING %s`, configCols)

	created, err := scanConfig(r.conn(ctx).QueryRow(ctx, q,
		cfg.BranchID, cfg.PayerID, cfg.PayerCode, cfg.PayerName, cfg.IntegrationMode,
		cfg.HCXParticipantCode, cfg.HCXEndpointURL, cfg.HCXRecipientCode, cfg.HCXAuthConfig,
		cfg.APIBaseURL, cfg.APIAuthMethod, cfg.APIAuthConfig,
		cfg.SFTPHost, cfg.SFTPPort, cfg.SFTPPath, cfg.SFTPAuthConfig,
		cfg.PortalURL, cfg.PortalNotes,
		cfg.WebhookSecret, cfg.WebhookURL,
		cfg.RetryMaxAttempts, cfg.RetryBackoffMs, cfg.PollingIntervalMs,
		cfg.IsActive,
	))
	if err != nil {
		return fmt.Errorf("insert payer integration config: %w", err)
	}
	*cfg = *created
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*IntegrationConfig, error) {
	q := fmt.Sprintf(`SELECT %s FROM payer_integration_config WHERE id = $1`, configCols)
	c, err := scanConfig(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *RepoPG) Update(ctx context.Context, cfg *IntegrationConfig) error {
	q := fmt.Sprintf(`UPDATE payer_integration_config SET
			payer_code = $2, payer_name = $3, integration_mode = $4,
			hcx_participant_code = $5, hcx_endpoint_url = $6, hcx_recipient_code = $7, hcx_auth_config = $8,
			api_base_url = $9, api_auth_method = $10, api_auth_config = $11,
			sftp_host = $12, sftp_port = $13, sftp_path = $14, sftp_auth_config = $15,
			portal_url = $16, portal_notes = $17,
			webhook_secret = $18, webhook_url = $19,
			retry_max_attempts = $20, retry_backoff_ms = $21, polling_interval_ms = $22,
			is_active = $23, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, configCols)

	updated, err := scanConfig(r.conn(ctx).QueryRow(ctx, q,
		cfg.ID,
		cfg.PayerCode, cfg.PayerName, cfg.IntegrationMode,
		cfg.HCXParticipantCode, cfg.HCXEndpointURL, cfg.HCXRecipientCode, cfg.HCXAuthConfig,
		cfg.APIBaseURL, cfg.APIAuthMethod, cfg.APIAuthConfig,
		cfg.SFTPHost, cfg.SFTPPort, cfg.SFTPPath, cfg.SFTPAuthConfig,
		cfg.PortalURL, cfg.PortalNotes,
		cfg.WebhookSecret, cfg.WebhookURL,
		cfg.RetryMaxAttempts, cfg.RetryBackoffMs, cfg.PollingIntervalMs,
		cfg.IsActive,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("payer integration config %s not found", cfg.ID)
	}
	if err != nil {
		return fmt.Errorf("update payer integration config: %w", err)
	}
	*cfg = *updated
	return nil
}

func (r *RepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE payer_integration_config SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate payer integration config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payer integration config %s not found", id)
	}
	return nil
}

func (r *RepoPG) ListByBranch(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*IntegrationConfig, int, error) {
	var total int
	countQ := `SELECT COUNT(*) FROM payer_integration_config WHERE branch_id = $1`
	if err := r.conn(ctx).QueryRow(ctx, countQ, branchID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM payer_integration_config
		WHERE branch_id = $1
		ORDER BY payer_code, created_at DESC LIMIT $2 OFFSET $3`, configCols)

	rows, err := r.conn(ctx).Query(ctx, q, branchID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*IntegrationConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) FindActive(ctx context.Context, branchID, payerID uuid.UUID) (*IntegrationConfig, error) {
	q := fmt.Sprintf(`SELECT %s FROM payer_integration_config
		WHERE branch_id = $1 AND payer_id = $2 AND is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1`, configCols)
	c, err := scanConfig(r.conn(ctx).QueryRow(ctx, q, branchID, payerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *RepoPG) FindActiveByPayer(ctx context.Context, payerID uuid.UUID) (*IntegrationConfig, error) {
	q := fmt.Sprintf(`SELECT %s FROM payer_integration_config
		WHERE payer_id = $1 AND is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1`, configCols)
	c, err := scanConfig(r.conn(ctx).QueryRow(ctx, q, payerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}
