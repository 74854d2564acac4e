package gateway

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/transport"
)

const (
	batchUploadDir   = "/uploads"
	batchResponseDir = "/responses"
)

// BatchAdapter writes pipe-delimited batch files and pushes them over SFTP.
// A submission succeeds as soon as the file is staged locally: payers ingest
// on their own schedule, and a dead SFTP endpoint must not block billing.
type BatchAdapter struct {
	cfg        *payerconfig.IntegrationConfig
	uploader   transport.Uploader
	stagingDir string
	log        zerolog.Logger
	now        func() time.Time
}

func NewBatchAdapter(cfg *payerconfig.IntegrationConfig, deps AdapterDeps) *BatchAdapter {
	uploader := deps.Uploader
	if uploader == nil {
		uploader = uploaderFor(cfg)
	}
	staging := deps.StagingDir
	if staging == "" {
		staging = os.TempDir()
	}
	return &BatchAdapter{
		cfg:        cfg,
		uploader:   uploader,
		stagingDir: staging,
		log:        deps.Logger,
		now:        time.Now,
	}
}

// uploaderFor builds an SFTP uploader from the payer's connection settings.
// A config with no host yields the local-only fallback: files stage to disk
// and an operator moves them by hand.
func uploaderFor(cfg *payerconfig.IntegrationConfig) transport.Uploader {
	if cfg.SFTPHost == nil || *cfg.SFTPHost == "" {
		return transport.LocalOnlyUploader{}
	}
	sc := transport.SFTPConfig{
		Host: *cfg.SFTPHost,
		Port: cfg.SFTPPort,
	}
	if cfg.SFTPAuthConfig != nil {
		sc.Username = cfg.SFTPAuthConfig.Username
		sc.Password = cfg.SFTPAuthConfig.Password
	}
	return transport.NewSFTPUploader(sc)
}

func (a *BatchAdapter) Mode() string { return payerconfig.ModeSFTPBatch }

func (a *BatchAdapter) SubmitPreauth(ctx context.Context, sub *PreauthSubmission) (*GatewayResult, error) {
	lines := []string{
		batchRow("PREAUTH_HEADER",
			sub.PreauthID,
			sub.PolicyNumber,
			sub.MemberID,
			sub.PatientName,
			sub.PatientDOB,
			sub.PatientGender,
			sub.ProviderCode,
			strings.Join(sub.DiagnosisCodes, ","),
			strings.Join(sub.ProcedureCodes, ","),
			sub.PackageCode,
			formatAmount(sub.RequestedAmount),
			sub.AdmissionDate,
			sub.TreatingDoctor,
		),
	}
	return a.submitFile(ctx, "PREAUTH_"+sub.PreauthID, "PA-SFTP-", lines)
}

func (a *BatchAdapter) SubmitClaim(ctx context.Context, sub *ClaimSubmission) (*GatewayResult, error) {
	lines := []string{
		batchRow("CLAIM_HEADER",
			sub.ClaimID,
			sub.ClaimNumber,
			sub.PreauthRefID,
			sub.PolicyNumber,
			sub.MemberID,
			sub.PatientName,
			sub.PatientDOB,
			sub.PatientGender,
			sub.ProviderCode,
			strings.Join(sub.DiagnosisCodes, ","),
			sub.BillNumber,
			formatAmount(sub.TotalAmount),
			formatAmount(sub.ClaimedAmount),
			sub.AdmissionDate,
			sub.DischargeDate,
		),
	}
	for _, li := range sub.LineItems {
		lines = append(lines, batchRow("CLAIM_LINE",
			sub.ClaimID,
			li.Code,
			li.Description,
			formatAmount(li.Quantity),
			formatAmount(li.UnitPrice),
			formatAmount(li.Amount),
		))
	}
	return a.submitFile(ctx, "CLAIM_"+sub.ClaimID, "CL-SFTP-", lines)
}

// submitFile stages the batch file, attempts the remote push, and reports
// success either way. The raw payload records whether the push happened so
// degraded uploads can be replayed.
func (a *BatchAdapter) submitFile(ctx context.Context, prefix, refPrefix string, lines []string) (*GatewayResult, error) {
	trackingRef := refPrefix + strings.ToUpper(strconv.FormatInt(a.now().UnixMilli(), 36))
	fileName := fmt.Sprintf("%s_%d.txt", prefix, a.now().UnixMilli())
	localPath := filepath.Join(a.stagingDir, fileName)

	content := strings.Join(lines, "\n") + "\n"
	if err := os.MkdirAll(a.stagingDir, 0o755); err != nil {
		return &GatewayResult{Success: false, Message: err.Error()}, fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(localPath, []byte(content), 0o644); err != nil {
		return &GatewayResult{Success: false, Message: err.Error()}, fmt.Errorf("write batch file: %w", err)
	}

	remoteDir := batchUploadDir
	if a.cfg.SFTPPath != nil && *a.cfg.SFTPPath != "" {
		remoteDir = *a.cfg.SFTPPath
	}
	remotePath := path.Join(remoteDir, fileName)

	uploaded := false
	var uploadError string
	if a.uploader.Available() {
		if err := a.uploader.Upload(ctx, localPath, remotePath); err != nil {
			uploadError = err.Error()
			a.log.Warn().Err(err).Str("file", fileName).Msg("batch upload failed, file staged locally")
		} else {
			uploaded = true
		}
	} else {
		uploadError = "remote transfer not configured"
	}

	msg := "batch file uploaded"
	if !uploaded {
		msg = "batch file staged locally, upload pending"
	}
	return &GatewayResult{
		Success:       true,
		ExternalRefID: trackingRef,
		Message:       msg,
		Raw: map[string]interface{}{
			"trackingRef": trackingRef,
			"localPath":   localPath,
			"remotePath":  remotePath,
			"uploaded":    uploaded,
			"uploadError": uploadError,
		},
	}, nil
}

func (a *BatchAdapter) PreauthStatus(ctx context.Context, externalRefID string) (*StatusResult, error) {
	return a.status(ctx, externalRefID)
}

func (a *BatchAdapter) ClaimStatus(ctx context.Context, externalRefID string) (*StatusResult, error) {
	return a.status(ctx, externalRefID)
}

// status scans the payer's response directory for files mentioning our
// tracking ref. There is no richer signal in a file drop.
func (a *BatchAdapter) status(ctx context.Context, externalRefID string) (*StatusResult, error) {
	if !a.uploader.Available() {
		return &StatusResult{
			Status:  StatusUnknown,
			Message: "remote transfer not configured, no response channel",
		}, nil
	}

	dir := batchResponseDir
	if a.cfg.SFTPPath != nil && *a.cfg.SFTPPath != "" {
		dir = *a.cfg.SFTPPath
	}
	files, err := a.uploader.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list response dir: %w", err)
	}

	for _, f := range files {
		name := strings.ToUpper(f)
		if strings.Contains(name, strings.ToUpper(externalRefID)) ||
			strings.Contains(name, "RESPONSE") || strings.Contains(name, "ACK") {
			return &StatusResult{
				Status:  StatusResponseAvailable,
				Message: fmt.Sprintf("response file available: %s", f),
				Raw:     map[string]interface{}{"responseFile": f},
			}, nil
		}
	}
	return &StatusResult{Status: StatusPending, Message: "no response file yet"}, nil
}

// CheckCoverage cannot be answered over a file drop.
func (a *BatchAdapter) CheckCoverage(_ context.Context, _ *CoverageCheck) (*CoverageResult, error) {
	return &CoverageResult{
		Eligible: false,
		Message:  "coverage checks are not supported over batch transfer",
	}, nil
}

// batchRow joins sanitized fields with the pipe delimiter.
func batchRow(fields ...string) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = sanitizeField(f)
	}
	return strings.Join(out, "|")
}

// sanitizeField strips the characters that would corrupt the file format.
func sanitizeField(s string) string {
	r := strings.NewReplacer("|", " ", "\n", " ", "\r", " ")
	return r.Replace(s)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
