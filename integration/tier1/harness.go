//go:build integration

package tier1

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "ingest"
	testPassword = "hunter2"
)

// Server is an in-process SSH server with an SFTP subsystem, serving the
// real filesystem. Tests use paths under Root as the remote tree.
type Server struct {
	Addr string // host:port the server listens on
	Root string // temp directory acting as the remote store root

	t        *testing.T
	listener net.Listener
	sshCfg   *ssh.ServerConfig
}

// StartServer launches an SFTP server on a loopback port. It accepts
// password auth for testUser/testPassword and public-key auth for the
// returned client key. The server shuts down via t.Cleanup.
func StartServer(t *testing.T) (*Server, string) {
	t.Helper()

	clientKeyPEM, clientPub := generateKeyPair(t)
	hostSigner := generateSigner(t)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", meta.User())
		},
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == testUser && string(key.Marshal()) == string(clientPub.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("public key rejected for %q", meta.User())
		},
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &Server{
		Addr:     listener.Addr().String(),
		Root:     t.TempDir(),
		t:        t,
		listener: listener,
		sshCfg:   cfg,
	}
	go s.acceptLoop()
	t.Cleanup(func() {
		_ = listener.Close()
	})

	return s, clientKeyPEM
}

// WriteRemote seeds a file under the remote root, creating parents.
func (s *Server) WriteRemote(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("failed to create remote directory: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to seed remote file: %v", err)
	}
	return p
}

// RemoteFileCount counts regular files left under the remote root.
func (s *Server) RemoteFileCount(t *testing.T) int {
	t.Helper()
	count := 0
	err := filepath.Walk(s.Root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk remote root: %v", err)
	}
	return count
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	serverConn, chans, reqs, err := ssh.NewServerConn(conn, s.sshCfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() {
		_ = serverConn.Close()
	}()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}

		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}

		// Acknowledge the sftp subsystem request, reject everything else.
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(requests)

		go s.serveSFTP(channel)
	}
}

func (s *Server) serveSFTP(channel ssh.Channel) {
	defer func() {
		_ = channel.Close()
	}()

	srv, err := sftp.NewServer(channel)
	if err != nil {
		s.t.Logf("failed to start sftp server: %v", err)
		return
	}
	if err := srv.Serve(); err != nil && !errors.Is(err, io.EOF) {
		s.t.Logf("sftp server stopped: %v", err)
	}
}

// generateSigner creates a throwaway host key.
func generateSigner(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

// generateKeyPair creates a client key, returned as PEM material the way
// it would arrive in the private_key config field.
func generateKeyPair(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return string(pem.EncodeToMemory(block)), signer.PublicKey()
}
