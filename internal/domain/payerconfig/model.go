package payerconfig

import (
	"time"

	"github.com/google/uuid"
)

// Integration modes. HCX and NHCX both speak the FHIR exchange protocol;
// MANUAL is an alias kept for configs migrated from the old billing desk.
const (
	ModeHCX            = "HCX"
	ModeNHCX           = "NHCX"
	ModeDirectAPI      = "DIRECT_API"
	ModeSFTPBatch      = "SFTP_BATCH"
	ModePortalAssisted = "PORTAL_ASSISTED"
	ModeManual         = "MANUAL"
)

// API auth methods for DIRECT_API configs.
const (
	AuthBearer = "BEARER"
	AuthBasic  = "BASIC"
	AuthAPIKey = "API_KEY"
	AuthOAuth2 = "OAUTH2"
)

// AuthConfig is the credential blob stored per config. Which fields are used
// depends on the integration mode and auth method; the whole struct is
// persisted as JSONB so new payer quirks don't need schema changes.
type AuthConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	Token        string `json:"token,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	HeaderName   string `json:"header_name,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
}

// IntegrationConfig selects how one payer is reached for one branch. At most
// one active config may exist per (branch, payer).
type IntegrationConfig struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BranchID  uuid.UUID `db:"branch_id" json:"branch_id" validate:"required"`
	PayerID   uuid.UUID `db:"payer_id" json:"payer_id" validate:"required"`
	PayerCode string    `db:"payer_code" json:"payer_code" validate:"required"`
	PayerName string    `db:"payer_name" json:"payer_name"`

	IntegrationMode string `db:"integration_mode" json:"integration_mode" validate:"required,oneof=HCX NHCX DIRECT_API SFTP_BATCH PORTAL_ASSISTED MANUAL"`

	// FHIR exchange
	HCXParticipantCode *string     `db:"hcx_participant_code" json:"hcx_participant_code,omitempty"`
	HCXEndpointURL     *string     `db:"hcx_endpoint_url" json:"hcx_endpoint_url,omitempty" validate:"omitempty,url"`
	HCXRecipientCode   *string     `db:"hcx_recipient_code" json:"hcx_recipient_code,omitempty"`
	HCXAuthConfig      *AuthConfig `db:"hcx_auth_config" json:"hcx_auth_config,omitempty"`

	// Direct REST
	APIBaseURL    *string     `db:"api_base_url" json:"api_base_url,omitempty" validate:"omitempty,url"`
	APIAuthMethod *string     `db:"api_auth_method" json:"api_auth_method,omitempty" validate:"omitempty,oneof=BEARER BASIC API_KEY OAUTH2"`
	APIAuthConfig *AuthConfig `db:"api_auth_config" json:"api_auth_config,omitempty"`

	// Batch file transfer
	SFTPHost       *string     `db:"sftp_host" json:"sftp_host,omitempty"`
	SFTPPort       int         `db:"sftp_port" json:"sftp_port,omitempty"`
	SFTPPath       *string     `db:"sftp_path" json:"sftp_path,omitempty"`
	SFTPAuthConfig *AuthConfig `db:"sftp_auth_config" json:"sftp_auth_config,omitempty"`

	// Portal assisted
	PortalURL   *string `db:"portal_url" json:"portal_url,omitempty" validate:"omitempty,url"`
	PortalNotes *string `db:"portal_notes" json:"portal_notes,omitempty"`

	// Inbound callbacks
	WebhookSecret *string `db:"webhook_secret" json:"webhook_secret,omitempty"`
	WebhookURL    *string `db:"webhook_url" json:"webhook_url,omitempty" validate:"omitempty,url"`

	RetryMaxAttempts  int  `db:"retry_max_attempts" json:"retry_max_attempts"`
	RetryBackoffMs    int  `db:"retry_backoff_ms" json:"retry_backoff_ms"`
	PollingIntervalMs *int `db:"polling_interval_ms" json:"polling_interval_ms,omitempty"`

	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UsesFHIRExchange reports whether the config speaks the HCX protocol.
func (c *IntegrationConfig) UsesFHIRExchange() bool {
	return c.IntegrationMode == ModeHCX || c.IntegrationMode == ModeNHCX
}

// IsManual reports whether status updates arrive only through humans or
// webhooks, never through adapter polling.
func (c *IntegrationConfig) IsManual() bool {
	return c.IntegrationMode == ModePortalAssisted || c.IntegrationMode == ModeManual
}
