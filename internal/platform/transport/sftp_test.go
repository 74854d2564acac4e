package transport

import (
	"context"
	"testing"
	"time"
)

func TestLocalOnlyUploader(t *testing.T) {
	u := LocalOnlyUploader{}
	if u.Available() {
		t.Error("expected local-only uploader to report unavailable")
	}
	if err := u.Upload(context.Background(), "/tmp/x", "/uploads/x"); err == nil {
		t.Error("expected upload error from local-only uploader")
	}
	if _, err := u.List(context.Background(), "/responses"); err == nil {
		t.Error("expected list error from local-only uploader")
	}
}

func TestSFTPUploader_Defaults(t *testing.T) {
	u := NewSFTPUploader(SFTPConfig{Host: "sftp.payer.example"})
	if u.cfg.Port != 22 {
		t.Errorf("expected default port 22, got %d", u.cfg.Port)
	}
	if u.cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", u.cfg.Timeout)
	}
	if !u.Available() {
		t.Error("expected uploader with host to be available")
	}
}

func TestSFTPUploader_NoHost(t *testing.T) {
	u := NewSFTPUploader(SFTPConfig{})
	if u.Available() {
		t.Error("expected uploader without host to be unavailable")
	}
}

func TestSFTPUploader_CancelledContext(t *testing.T) {
	u := NewSFTPUploader(SFTPConfig{Host: "sftp.payer.example"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := u.Upload(ctx, "/tmp/x", "/uploads/x"); err == nil {
		t.Error("expected error from cancelled context")
	}
	if _, err := u.List(ctx, "/responses"); err == nil {
		t.Error("expected error from cancelled context")
	}
}
