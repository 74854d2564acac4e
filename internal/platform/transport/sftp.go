// Package transport provides the remote file-transfer capability used by the
// batch submission path. The capability is injected: the real SFTP client is
// selected when the payer config carries connection details, and a local-only
// implementation otherwise, so the degraded path is explicit rather than
// exception-driven.
package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Uploader moves staged batch files to a payer-controlled drop box and lists
// the payer's response directory.
type Uploader interface {
	// Available reports whether remote transfer is possible at all.
	Available() bool
	// Upload copies the local file to remotePath.
	Upload(ctx context.Context, localPath, remotePath string) error
	// List returns the file names in the remote directory.
	List(ctx context.Context, dir string) ([]string, error)
}

// SFTPConfig holds the connection details for one payer's SFTP drop box.
type SFTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SFTPUploader is the remote-capable implementation. Each call dials a fresh
// session; batch submissions are infrequent enough that connection reuse is
// not worth the idle-connection management.
type SFTPUploader struct {
	cfg SFTPConfig
}

func NewSFTPUploader(cfg SFTPConfig) *SFTPUploader {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SFTPUploader{cfg: cfg}
}

func (u *SFTPUploader) Available() bool { return u.cfg.Host != "" }

func (u *SFTPUploader) dial() (*ssh.Client, *sftp.Client, error) {
	addr := fmt.Sprintf("%s:%d", u.cfg.Host, u.cfg.Port)
	sshCfg := &ssh.ClientConfig{
		User: u.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(u.cfg.Password),
		},
		// Payer drop boxes rotate hosts behind load balancers and do not
		// publish stable host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         u.cfg.Timeout,
	}

	sshClient, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("open sftp session: %w", err)
	}

	return sshClient, client, nil
}

func (u *SFTPUploader) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sshClient, client, err := u.dial()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer client.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy to %s: %w", remotePath, err)
	}
	return nil
}

func (u *SFTPUploader) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sshClient, client, err := u.dial()
	if err != nil {
		return nil, err
	}
	defer sshClient.Close()
	defer client.Close()

	entries, err := client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// LocalOnlyUploader is the fallback when no remote transfer is configured.
// Batch files stay in the staging directory for manual upload.
type LocalOnlyUploader struct{}

func (LocalOnlyUploader) Available() bool { return false }

func (LocalOnlyUploader) Upload(ctx context.Context, localPath, remotePath string) error {
	return fmt.Errorf("remote transfer not configured")
}

func (LocalOnlyUploader) List(ctx context.Context, dir string) ([]string, error) {
	return nil, fmt.Errorf("remote transfer not configured")
}
