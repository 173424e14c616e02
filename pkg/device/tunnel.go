package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// DefaultRedisTarget is where SONiC's redis listens inside the switch.
const DefaultRedisTarget = "127.0.0.1:6379"

// TunnelConfig describes how to reach a DUT over SSH.
type TunnelConfig struct {
	Host     string
	Port     int // 0 means 22
	User     string
	Password string
	KeyFile  string // private key, tried before the password
	// Target is the address forwarded from LocalAddr; DefaultRedisTarget when empty.
	Target  string
	Timeout time.Duration
}

// SSHTunnel is the DUT's command channel. It also forwards a local TCP port
// to the switch's redis, which is not reachable from outside the box.
type SSHTunnel struct {
	localAddr string // "127.0.0.1:<port>"
	target    string
	sshClient *ssh.Client
	listener  net.Listener
	done      chan struct{}
	wg        sync.WaitGroup
}

func (c TunnelConfig) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.KeyFile != "" {
		pem, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key %s: %w", c.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: no SSH password or key for %s", util.ErrInvalidConfig, c.Host)
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ssh.ClientConfig{
		User: c.User,
		Auth: auth,
		// Lab DUTs are re-imaged constantly; host keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// NewSSHTunnel dials the DUT and starts forwarding a random local port to
// cfg.Target.
func NewSSHTunnel(cfg TunnelConfig) (*SSHTunnel, error) {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	target := cfg.Target
	if target == "" {
		target = DefaultRedisTarget
	}
	config, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	util.Logger.Debugf("SSH to %s: host key verification disabled", addr)
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", cfg.User, addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		localAddr: listener.Addr().String(),
		target:    target,
		sshClient: sshClient,
		listener:  listener,
		done:      make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

// LocalAddr returns the local end of the redis forward.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops forwarding and closes the SSH connection.
func (t *SSHTunnel) Close() error {
	close(t.done)
	t.listener.Close()
	// Closing the client tears down forwarded conns so the copy goroutines exit.
	err := t.sshClient.Close()
	t.wg.Wait()
	return err
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

// ExecCommandContext runs cmd in a fresh SSH session and returns its stdout.
// A failed command returns a *util.CommandError carrying stderr, so warnings
// never mix into output that is parsed. Cancelling ctx kills the remote
// command.
func (t *SSHTunnel) ExecCommandContext(ctx context.Context, cmd string) (string, error) {
	session, err := t.sshClient.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(cmd); err != nil {
		return "", fmt.Errorf("SSH start '%s': %w", cmd, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		<-done
		return stdout.String(), fmt.Errorf("SSH exec '%s': %w", cmd, ctx.Err())
	case err := <-done:
		if err != nil {
			return stdout.String(), &util.CommandError{Command: cmd, Output: stderr.String(), Err: err}
		}
		if stderr.Len() > 0 {
			util.Logger.Debugf("SSH exec '%s' stderr: %s", cmd, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.String(), nil
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.target)
	if err != nil {
		util.Logger.Debugf("SSH forward to %s: %v", t.target, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
