package device

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// serveExec starts an in-process SSH server answering exec requests with
// handler, and returns a client connected to it.
func serveExec(t *testing.T, handler func(cmd string, ch ssh.Channel) uint32) *ssh.Client {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)
	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		_, chans, reqs, err := ssh.NewServerConn(nc, config)
		if err != nil {
			return
		}
		go ssh.DiscardRequests(reqs)
		for nch := range chans {
			if nch.ChannelType() != "session" {
				nch.Reject(ssh.UnknownChannelType, "session only")
				continue
			}
			ch, chReqs, err := nch.Accept()
			if err != nil {
				continue
			}
			go func() {
				for req := range chReqs {
					if req.Type != "exec" {
						req.Reply(false, nil)
						continue
					}
					var exec struct{ Command string }
					if err := ssh.Unmarshal(req.Payload, &exec); err != nil {
						req.Reply(false, nil)
						continue
					}
					req.Reply(true, nil)
					status := handler(exec.Command, ch)
					ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
					ch.Close()
				}
			}()
		}
	}()

	client, err := ssh.Dial("tcp", ln.Addr().String(), &ssh.ClientConfig{
		User:            "admin",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

const portstatJSON = `{"Ethernet0": {"STATE": "U", "RX_OK": "1,000", "RX_DRP": "0"}}`

func TestExecCommandContext_StdoutOnly(t *testing.T) {
	client := serveExec(t, func(cmd string, ch ssh.Channel) uint32 {
		switch cmd {
		case "portstat -j":
			fmt.Fprintln(ch.Stderr(), "/usr/lib/python3/dist-packages/swsscommon: DeprecationWarning: pkg_resources is deprecated")
			fmt.Fprint(ch, portstatJSON)
			return 0
		default:
			fmt.Fprint(ch, "partial")
			fmt.Fprintln(ch.Stderr(), "sonic-clear: Permission denied")
			return 1
		}
	})
	tun := &SSHTunnel{sshClient: client}
	ctx := context.Background()

	out, err := tun.ExecCommandContext(ctx, "portstat -j")
	require.NoError(t, err)
	assert.JSONEq(t, portstatJSON, out, "stderr must not reach the parsed output")

	out, err = tun.ExecCommandContext(ctx, "sonic-clear counters")
	var ce *util.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "partial", out)
	assert.Equal(t, "sonic-clear counters", ce.Command)
	assert.Contains(t, ce.Output, "Permission denied")
	assert.NotContains(t, ce.Output, "partial")
	var exit *ssh.ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitStatus())
}

func TestExec_KeepsRunnerStderr(t *testing.T) {
	td := newTestDevice(1)
	td.run.errs["sonic-clear counters"] = &util.CommandError{
		Command: "sonic-clear counters",
		Output:  "sonic-clear: Permission denied\n",
		Err:     fmt.Errorf("exit status 1"),
	}

	_, err := td.Exec(context.Background(), "sonic-clear counters")
	var ce *util.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dut1", ce.Device)
	assert.Contains(t, ce.Output, "Permission denied")
	assert.Contains(t, err.Error(), `dut1: command "sonic-clear counters" failed`)
}
