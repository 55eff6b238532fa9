package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHRunner is the background path's direct device transport. Each Run dials
// the device, executes one command and tears the session down; the worker
// model is one task per device, so there is no connection pooling here.
type SSHRunner struct {
	user     string
	password string
	keyPath  string
	timeout  time.Duration
}

// NewSSHRunner builds a runner with the configured credentials. Key auth is
// preferred when a key file is readable; password auth is the fallback.
func NewSSHRunner(user, password, keyPath string, timeout time.Duration) *SSHRunner {
	return &SSHRunner{user: user, password: password, keyPath: keyPath, timeout: timeout}
}

// Run executes a single command on host and returns combined stdout+stderr.
// Cancellation closes the connection, which unblocks the in-flight session.
func (r *SSHRunner) Run(ctx context.Context, host, command string) (string, error) {
	var authMethods []ssh.AuthMethod

	if r.keyPath != "" {
		if pem, err := os.ReadFile(expandHome(r.keyPath)); err == nil {
			if signer, err := ssh.ParsePrivateKey(pem); err == nil {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
			}
		}
	}
	if r.password != "" {
		authMethods = append(authMethods, ssh.Password(r.password))
	}
	if len(authMethods) == 0 {
		return "", fmt.Errorf("no usable SSH auth for %s (set ssh_pass or ssh_key_path)", host)
	}

	cfg := &ssh.ClientConfig{
		User:            r.user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: use known_hosts in production
		Timeout:         r.timeout,
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return "", fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session on %s: %w", addr, err)
	}
	defer sess.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = client.Close() // unblocks CombinedOutput
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return string(res.out), fmt.Errorf("running %q on %s: %w", command, addr, res.err)
		}
		return string(res.out), nil
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
