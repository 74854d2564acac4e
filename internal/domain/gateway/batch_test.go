package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/transport"
)

type fakeUploader struct {
	available bool
	uploadErr error
	uploads   []string
	files     []string
}

func (f *fakeUploader) Available() bool { return f.available }

func (f *fakeUploader) Upload(_ context.Context, localPath, remotePath string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, remotePath)
	return nil
}

func (f *fakeUploader) List(_ context.Context, _ string) ([]string, error) {
	return f.files, nil
}

func batchConfig(sftpPath string) *payerconfig.IntegrationConfig {
	cfg := &payerconfig.IntegrationConfig{IntegrationMode: payerconfig.ModeSFTPBatch}
	if sftpPath != "" {
		cfg.SFTPPath = &sftpPath
	}
	return cfg
}

func newBatchAdapter(t *testing.T, cfg *payerconfig.IntegrationConfig, up transport.Uploader) *BatchAdapter {
	t.Helper()
	return NewBatchAdapter(cfg, AdapterDeps{
		Uploader:   up,
		StagingDir: t.TempDir(),
		Logger:     zerolog.Nop(),
	})
}

func TestBatchSubmitClaim_WritesPipeDelimitedFile(t *testing.T) {
	up := &fakeUploader{available: true}
	adapter := newBatchAdapter(t, batchConfig("/payer/in"), up)

	result, err := adapter.SubmitClaim(context.Background(), &ClaimSubmission{
		ClaimID:       "cl-1",
		ClaimNumber:   "CLM-001",
		PolicyNumber:  "POL-9",
		PatientName:   "Asha Rao",
		TotalAmount:   80000,
		ClaimedAmount: 75000.5,
		LineItems: []LineItem{
			{Code: "RM01", Description: "Room rent", Quantity: 3, UnitPrice: 5000, Amount: 15000},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("batch submission should succeed")
	}
	if !strings.HasPrefix(result.ExternalRefID, "CL-SFTP-") {
		t.Errorf("unexpected tracking ref %q", result.ExternalRefID)
	}

	localPath, _ := result.Raw["localPath"].(string)
	content, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 line row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "CLAIM_HEADER|cl-1|CLM-001|") {
		t.Errorf("unexpected header row: %s", lines[0])
	}
	if !strings.Contains(lines[0], "|75000.50|") {
		t.Errorf("amounts must carry two decimals: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "CLAIM_LINE|cl-1|RM01|") {
		t.Errorf("unexpected line row: %s", lines[1])
	}

	if len(up.uploads) != 1 || !strings.HasPrefix(up.uploads[0], "/payer/in/CLAIM_cl-1_") {
		t.Errorf("unexpected remote path: %v", up.uploads)
	}
	if uploaded, _ := result.Raw["uploaded"].(bool); !uploaded {
		t.Error("expected uploaded=true with a working uploader")
	}
}

func TestBatchSubmit_DegradedModeStillSucceeds(t *testing.T) {
	up := &fakeUploader{available: true, uploadErr: fmt.Errorf("connection refused")}
	adapter := newBatchAdapter(t, batchConfig(""), up)

	result, err := adapter.SubmitPreauth(context.Background(), &PreauthSubmission{
		PreauthID:       "pa-1",
		RequestedAmount: 50000,
	})
	if err != nil {
		t.Fatalf("a dead SFTP endpoint must not fail the submission: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success in degraded mode")
	}
	if !strings.HasPrefix(result.ExternalRefID, "PA-SFTP-") {
		t.Errorf("unexpected tracking ref %q", result.ExternalRefID)
	}

	localPath, _ := result.Raw["localPath"].(string)
	if localPath == "" {
		t.Fatal("expected localPath in raw payload")
	}
	if _, err := os.Stat(localPath); err != nil {
		t.Errorf("staged file should exist: %v", err)
	}
	if uploaded, _ := result.Raw["uploaded"].(bool); uploaded {
		t.Error("expected uploaded=false after upload failure")
	}
	if result.Raw["uploadError"] == "" {
		t.Error("expected uploadError recorded")
	}
}

func TestBatchSubmit_NoUploaderConfigured(t *testing.T) {
	adapter := newBatchAdapter(t, batchConfig(""), transport.LocalOnlyUploader{})

	result, err := adapter.SubmitPreauth(context.Background(), &PreauthSubmission{PreauthID: "pa-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("staging locally is a success")
	}
	if uploaded, _ := result.Raw["uploaded"].(bool); uploaded {
		t.Error("expected uploaded=false without transport")
	}
}

func TestBatchRow_SanitizesDelimiters(t *testing.T) {
	row := batchRow("CLAIM_HEADER", "id|with|pipes", "line\nbreak")
	if strings.Count(row, "|") != 2 {
		t.Errorf("field separators must survive, embedded pipes must not: %s", row)
	}
	if strings.Contains(row, "\n") {
		t.Errorf("newlines must be stripped: %q", row)
	}
}

func TestBatchStatus_FindsResponseFile(t *testing.T) {
	up := &fakeUploader{available: true, files: []string{"other.txt", "CL-SFTP-ABC_RESPONSE.txt"}}
	adapter := newBatchAdapter(t, batchConfig(""), up)

	res, err := adapter.ClaimStatus(context.Background(), "CL-SFTP-ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusResponseAvailable {
		t.Errorf("a matching response file means RESPONSE_AVAILABLE, got %s", res.Status)
	}
	if !strings.Contains(res.Message, "CL-SFTP-ABC_RESPONSE.txt") {
		t.Errorf("expected response file named in message, got %q", res.Message)
	}
}

func TestBatchStatus_NoResponseYet(t *testing.T) {
	up := &fakeUploader{available: true, files: []string{"unrelated.txt"}}
	adapter := newBatchAdapter(t, batchConfig(""), up)

	res, err := adapter.ClaimStatus(context.Background(), "CL-SFTP-ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusPending {
		t.Errorf("no matching file means PENDING, got %s", res.Status)
	}
}

func TestBatchStatus_NoTransport(t *testing.T) {
	adapter := newBatchAdapter(t, batchConfig(""), transport.LocalOnlyUploader{})

	res, err := adapter.PreauthStatus(context.Background(), "PA-SFTP-ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusUnknown {
		t.Errorf("unavailable transport means UNKNOWN, got %s", res.Status)
	}
}

func TestBatchCheckCoverage_Unsupported(t *testing.T) {
	adapter := newBatchAdapter(t, batchConfig(""), transport.LocalOnlyUploader{})
	res, err := adapter.CheckCoverage(context.Background(), &CoverageCheck{PolicyNumber: "P1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Eligible {
		t.Error("coverage over batch transfer must report ineligible")
	}
}
