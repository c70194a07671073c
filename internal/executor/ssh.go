package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"pgsentry/internal/domain"
)

// maxOutput caps the command output kept for logs and error details.
const maxOutput = 4 << 10

// SSHConfig configures the SSH runner.
type SSHConfig struct {
	Timeout time.Duration

	// KnownHostsFile enables host key checking when set.
	KnownHostsFile string

	// ExposeTargetSecrets makes target_db_url and target_ssh_password
	// available to command templates.
	ExposeTargetSecrets bool

	// TemplateVars are operator-defined template variables.
	TemplateVars map[string]string
}

// SSHRunner executes SSH steps on the target host with password auth.
type SSHRunner struct {
	timeout         time.Duration
	hostKeyCallback ssh.HostKeyCallback
	renderer        *CommandRenderer
	logger          *slog.Logger
}

// NewSSHRunner creates an SSH runner. It fails when the known hosts file
// cannot be read.
func NewSSHRunner(cfg SSHConfig, logger *slog.Logger) (*SSHRunner, error) {
	callback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		callback = cb
	} else {
		logger.Warn("ssh host key checking is disabled")
	}

	return &SSHRunner{
		timeout:         cfg.Timeout,
		hostKeyCallback: callback,
		renderer:        NewCommandRenderer(cfg.TemplateVars, cfg.ExposeTargetSecrets),
		logger:          logger,
	}, nil
}

// Kind implements StepRunner.
func (r *SSHRunner) Kind() domain.StepKind {
	return domain.StepSSH
}

// Run implements StepRunner. SSH steps never return rows.
func (r *SSHRunner) Run(ctx context.Context, step domain.Step, args map[string]any, target *domain.Target, _ Mode) ([]Row, error) {
	command, err := r.renderer.Render(step.Query, args, target)
	if err != nil {
		return nil, domain.NewSSHError("%v", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	client, err := r.dial(ctx, target)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, domain.NewSSHError("could not open session: %v", err)
	}
	defer session.Close()

	output := &limitedBuffer{limit: maxOutput}
	session.Stdout = output
	session.Stderr = output

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		client.Close()
		<-done
		return nil, domain.NewSSHError("command timed out after %s", r.timeout)
	}

	r.logger.Debug("ssh command finished",
		"target", target.Alias,
		"host", target.SSHHost,
		"output", output.String(),
	)

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return nil, domain.NewSSHError("command exited with status %d: %s", exitErr.ExitStatus(), strings.TrimSpace(output.String()))
		}
		return nil, domain.NewSSHError("%v", err)
	}
	return nil, nil
}

func (r *SSHRunner) dial(ctx context.Context, target *domain.Target) (*ssh.Client, error) {
	if target.SSHHost == "" {
		return nil, domain.NewSSHError("target has no ssh host configured")
	}
	port := target.SSHPort
	if port == 0 {
		port = domain.DefaultSSHPort
	}
	addr := net.JoinHostPort(target.SSHHost, strconv.Itoa(port))

	config := &ssh.ClientConfig{
		User: target.SSHUsername,
		Auth: []ssh.AuthMethod{
			ssh.Password(target.SSHPassword),
		},
		HostKeyCallback: r.hostKeyCallback,
		Timeout:         r.timeout,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, domain.NewSSHError("could not connect to %s: %v", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, domain.NewSSHError("ssh handshake with %s failed: %v", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// limitedBuffer keeps the first limit bytes written to it and discards the
// rest. It is safe for concurrent writes from stdout and stderr.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return b.buf.String() + "...(truncated)"
	}
	return b.buf.String()
}
