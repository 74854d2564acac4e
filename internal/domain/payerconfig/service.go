package payerconfig

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/audit"
)

const (
	defaultRetryMaxAttempts = 3
	defaultRetryBackoffMs   = 5000
	defaultSFTPPort         = 22
)

type Service struct {
	repo     Repository
	audit    *audit.Service
	validate *validator.Validate
	log      zerolog.Logger
}

func NewService(repo Repository, auditSvc *audit.Service, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		audit:    auditSvc,
		validate: validator.New(),
		log:      log,
	}
}

// Create validates and stores a new integration config. A second active
// config for the same branch+payer is rejected; deactivate the old one first.
func (s *Service) Create(ctx context.Context, cfg *IntegrationConfig) error {
	s.applyDefaults(cfg)
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	if cfg.IsActive {
		existing, err := s.repo.FindActive(ctx, cfg.BranchID, cfg.PayerID)
		if err != nil {
			return fmt.Errorf("check existing config: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("an active integration config already exists for payer %s", cfg.PayerCode)
		}
	}

	if err := s.repo.Create(ctx, cfg); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.ActionConfigCreate, "PAYER_CONFIG", cfg.ID.String(), map[string]interface{}{
		"payer_code":       cfg.PayerCode,
		"integration_mode": cfg.IntegrationMode,
	})
	return nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*IntegrationConfig, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("payer integration config %s not found", id)
	}
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, cfg *IntegrationConfig) error {
	s.applyDefaults(cfg)
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	if cfg.IsActive {
		existing, err := s.repo.FindActive(ctx, cfg.BranchID, cfg.PayerID)
		if err != nil {
			return fmt.Errorf("check existing config: %w", err)
		}
		if existing != nil && existing.ID != cfg.ID {
			return fmt.Errorf("an active integration config already exists for payer %s", cfg.PayerCode)
		}
	}

	if err := s.repo.Update(ctx, cfg); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.ActionConfigUpdate, "PAYER_CONFIG", cfg.ID.String(), map[string]interface{}{
		"payer_code":       cfg.PayerCode,
		"integration_mode": cfg.IntegrationMode,
	})
	return nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.ActionConfigDelete, "PAYER_CONFIG", id.String(), nil)
	return nil
}

func (s *Service) ListByBranch(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*IntegrationConfig, int, error) {
	return s.repo.ListByBranch(ctx, branchID, limit, offset)
}

func (s *Service) FindActive(ctx context.Context, branchID, payerID uuid.UUID) (*IntegrationConfig, error) {
	return s.repo.FindActive(ctx, branchID, payerID)
}

func (s *Service) FindActiveByPayer(ctx context.Context, payerID uuid.UUID) (*IntegrationConfig, error) {
	return s.repo.FindActiveByPayer(ctx, payerID)
}

func (s *Service) applyDefaults(cfg *IntegrationConfig) {
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if cfg.RetryBackoffMs == 0 {
		cfg.RetryBackoffMs = defaultRetryBackoffMs
	}
	if cfg.SFTPPort == 0 && cfg.IntegrationMode == ModeSFTPBatch {
		cfg.SFTPPort = defaultSFTPPort
	}
}

// validateConfig enforces struct tags plus the per-mode fields the adapters
// will need at submission time.
func (s *Service) validateConfig(cfg *IntegrationConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid integration config: %w", err)
	}

	switch cfg.IntegrationMode {
	case ModeHCX, ModeNHCX:
		if cfg.HCXEndpointURL == nil || *cfg.HCXEndpointURL == "" {
			return fmt.Errorf("hcx_endpoint_url is required for %s mode", cfg.IntegrationMode)
		}
		if cfg.HCXParticipantCode == nil || *cfg.HCXParticipantCode == "" {
			return fmt.Errorf("hcx_participant_code is required for %s mode", cfg.IntegrationMode)
		}
	case ModeDirectAPI:
		if cfg.APIBaseURL == nil || *cfg.APIBaseURL == "" {
			return fmt.Errorf("api_base_url is required for DIRECT_API mode")
		}
		if cfg.APIAuthMethod == nil || *cfg.APIAuthMethod == "" {
			return fmt.Errorf("api_auth_method is required for DIRECT_API mode")
		}
		if *cfg.APIAuthMethod == AuthOAuth2 {
			ac := cfg.APIAuthConfig
			if ac == nil || ac.TokenURL == "" || ac.ClientID == "" || ac.ClientSecret == "" {
				return fmt.Errorf("OAUTH2 auth requires token_url, client_id and client_secret")
			}
		}
	case ModeSFTPBatch:
		// SFTP credentials are optional: without a host the adapter stages
		// files locally and reports uploaded=false.
	case ModePortalAssisted, ModeManual:
		// Nothing to reach; submissions produce operator packets.
	}
	return nil
}
