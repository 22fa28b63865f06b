package scraping

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"dev.hon.one/netsot/common"
)

// CommandRunner - Runs a read-only command on a remote device and returns its output lines.
type CommandRunner interface {
	Run(ctx context.Context, command string) ([]string, error)
}

// SSHRunner - Runs each command over its own SSH connection.
type SSHRunner struct {
	firewall common.Firewall
	timeout  time.Duration
}

// NewSSHRunner - Create a runner for the firewall.
func NewSSHRunner(firewall common.Firewall) *SSHRunner {
	return &SSHRunner{
		firewall: firewall,
		timeout:  common.Seconds(firewall.TimeoutSeconds),
	}
}

func checkDeviceFailure(address string, message string, err error) bool {
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"device": address,
		}).Tracef("Device error: %v", message)
		return false
	}
	return true
}

func sshClientConfig(credential common.Credential, timeout time.Duration) (*ssh.ClientConfig, error) {
	authMethods := make([]ssh.AuthMethod, 0)
	if credential.Password != "" {
		authMethods = append(authMethods, ssh.Password(credential.Password))
	}
	if credential.PrivateKeyPath != "" {
		privkey, err := os.ReadFile(credential.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH private key %v: %w", credential.PrivateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(privkey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key %v: %w", credential.PrivateKeyPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	return &ssh.ClientConfig{
		User:            credential.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Auth:            authMethods,
		Timeout:         timeout,
	}, nil
}

func (runner *SSHRunner) openSSHClient(ctx context.Context) (*ssh.Client, error) {
	sshConfig, err := sshClientConfig(runner.firewall.Credential, runner.timeout)
	if err != nil {
		return nil, err
	}

	fullAddress := runner.firewall.SSHAddress()
	dialer := net.Dialer{Timeout: runner.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fullAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device %v: %w", fullAddress, err)
	}
	sshConn, channels, requests, err := ssh.NewClientConn(conn, fullAddress, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open SSH connection to %v: %w", fullAddress, err)
	}
	return ssh.NewClient(sshConn, channels, requests), nil
}

// Run - Open SSH connection and run a single command, bounded by the runner timeout.
func (runner *SSHRunner) Run(ctx context.Context, command string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, runner.timeout)
	defer cancel()

	sshClient, err := runner.openSSHClient(ctx)
	if err != nil {
		return nil, err
	}
	defer sshClient.Close()

	// Closing the client aborts a command that outlives the context
	go func() {
		<-ctx.Done()
		sshClient.Close()
	}()

	session, err := sshClient.NewSession()
	if !checkDeviceFailure(runner.firewall.Address, "Failed to start session", err) {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(command); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		checkDeviceFailure(runner.firewall.Address, fmt.Sprintf("Failed to run SSH command: %v", command), err)
		return nil, fmt.Errorf("failed to run SSH command %q: %w: %v", command, err, strings.TrimSpace(stderr.String()))
	}
	if stderr.Len() > 0 {
		log.WithFields(log.Fields{
			"device": runner.firewall.Address,
		}).Tracef("Received on STDERR: %v", strings.TrimSpace(stderr.String()))
	}

	return splitLines(stdout.String()), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")
	return strings.Split(text, "\n")
}
