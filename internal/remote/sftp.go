package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Credentials carries everything needed to authenticate a session
type Credentials struct {
	Username   string
	Password   string
	PrivateKey string // PEM key material, not a path
	KnownHosts string // optional path to an OpenSSH known_hosts file
}

// SFTPClient implements Client over an SSH/SFTP session
type SFTPClient struct {
	addr   string
	creds  Credentials
	logger *slog.Logger

	conn    *ssh.Client
	sftp    *sftp.Client
	keyFile string // session-scoped credential file, removed on Close
}

// NewSFTPClient creates a client for the given host:port address.
// Connect must be called before any other operation.
func NewSFTPClient(addr string, creds Credentials, logger *slog.Logger) *SFTPClient {
	return &SFTPClient{
		addr:   addr,
		creds:  creds,
		logger: logger,
	}
}

// Connect dials the remote host and opens the SFTP subsystem
func (c *SFTPClient) Connect(ctx context.Context) error {
	auth, err := c.authMethods()
	if err != nil {
		c.removeKeyFile()
		return newError("connect", "", err)
	}

	hostKey, err := c.hostKeyCallback()
	if err != nil {
		c.removeKeyFile()
		return newError("connect", "", err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.creds.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.removeKeyFile()
		return newError("connect", "", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		c.removeKeyFile()
		return newError("connect", "", err)
	}
	c.conn = ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(c.conn)
	if err != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.removeKeyFile()
		return newError("connect", "", err)
	}
	c.sftp = sftpClient

	c.logger.Debug("connected to remote store", "addr", c.addr)
	return nil
}

// Close tears down the session and removes the credential file
func (c *SFTPClient) Close() error {
	var firstErr error

	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.sftp = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.conn = nil
	}

	c.removeKeyFile()
	return firstErr
}

// List returns the entries of a remote directory
func (c *SFTPClient) List(dir string) ([]Entry, error) {
	if c.sftp == nil {
		return nil, newError("list", dir, ErrNotConnected)
	}

	infos, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, newError("list", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:  info.Name(),
			Path:  path.Join(dir, info.Name()),
			IsDir: info.IsDir(),
		})
	}
	return entries, nil
}

// IsDir reports whether the remote path is a directory
func (c *SFTPClient) IsDir(remotePath string) (bool, error) {
	if c.sftp == nil {
		return false, newError("stat", remotePath, ErrNotConnected)
	}

	info, err := c.sftp.Stat(remotePath)
	if err != nil {
		return false, newError("stat", remotePath, err)
	}
	return info.IsDir(), nil
}

// Download streams a remote file to a local path with atomic write
func (c *SFTPClient) Download(remotePath, localPath string) error {
	if c.sftp == nil {
		return newError("download", remotePath, ErrNotConnected)
	}

	src, err := c.sftp.Open(remotePath)
	if err != nil {
		return newError("download", remotePath, err)
	}
	defer func() {
		_ = src.Close()
	}()

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return newError("download", remotePath, err)
	}

	// Create temp file in destination directory
	tmpFile, err := os.CreateTemp(filepath.Dir(localPath), ".sftpsync-tmp-*")
	if err != nil {
		return newError("download", remotePath, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	// Copy content
	if _, err := io.Copy(tmpFile, src); err != nil {
		_ = tmpFile.Close()
		return newError("download", remotePath, err)
	}

	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return newError("download", remotePath, err)
	}

	if err := tmpFile.Close(); err != nil {
		return newError("download", remotePath, err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, localPath); err != nil {
		return newError("download", remotePath, err)
	}

	return nil
}

// Remove deletes a single remote file
func (c *SFTPClient) Remove(remotePath string) error {
	if c.sftp == nil {
		return newError("remove", remotePath, ErrNotConnected)
	}

	if err := c.sftp.Remove(remotePath); err != nil {
		return newError("remove", remotePath, err)
	}
	return nil
}

// RemoveDirectory deletes an empty remote directory. The server rejects
// non-empty directories; callers remove the contents first.
func (c *SFTPClient) RemoveDirectory(remotePath string) error {
	if c.sftp == nil {
		return newError("rmdir", remotePath, ErrNotConnected)
	}

	if err := c.sftp.RemoveDirectory(remotePath); err != nil {
		return newError("rmdir", remotePath, err)
	}
	return nil
}

// authMethods builds the SSH auth chain. A configured password wins over
// private key material when both are present.
func (c *SFTPClient) authMethods() ([]ssh.AuthMethod, error) {
	if c.creds.Password != "" {
		return []ssh.AuthMethod{ssh.Password(c.creds.Password)}, nil
	}

	if c.creds.PrivateKey != "" {
		keyFile, err := writeKeyFile(c.creds.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.keyFile = keyFile

		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credential file: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	return nil, fmt.Errorf("no credentials configured")
}

// hostKeyCallback returns the host key policy. Without a known_hosts
// file the remote host key is not verified.
func (c *SFTPClient) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.creds.KnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	callback, err := knownhosts.New(c.creds.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts file: %w", err)
	}
	return callback, nil
}

// removeKeyFile deletes the session credential file if one was written
func (c *SFTPClient) removeKeyFile() {
	if c.keyFile == "" {
		return
	}
	if err := os.Remove(c.keyFile); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove credential file", "path", c.keyFile, "error", err)
	}
	c.keyFile = ""
}

// writeKeyFile stores private key material in a file readable only by
// the current user. The file lives for the session and is removed on
// Close.
func writeKeyFile(material string) (string, error) {
	f, err := os.CreateTemp("", "sftpsync-key-*")
	if err != nil {
		return "", fmt.Errorf("failed to create credential file: %w", err)
	}
	keyPath := f.Name()

	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		_ = os.Remove(keyPath)
		return "", fmt.Errorf("failed to restrict credential file: %w", err)
	}

	if _, err := f.WriteString(material); err != nil {
		_ = f.Close()
		_ = os.Remove(keyPath)
		return "", fmt.Errorf("failed to write credential file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(keyPath)
		return "", fmt.Errorf("failed to write credential file: %w", err)
	}

	return keyPath, nil
}
