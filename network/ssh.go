// Package network connects to servers over SSH and fetches pages over HTTP.
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/executor"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach one server.
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	KeyFile    string
	CertFile   string
	KnownHosts string
	UseAgent   bool
	Timeout    time.Duration
}

// Address returns host:port.
func (c SSHConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SSHExecutor runs commands and copies files over one SSH connection.
// It implements executor.Remote.
type SSHExecutor struct {
	client    *ssh.Client
	host      string
	agentConn net.Conn
}

// keySigner loads a private key and, when certPath is set, wraps it in the
// certificate signed for it.
func keySigner(privateKeyPath string, certPath string) (ssh.Signer, error) {
	pvtKeyBts, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(pvtKeyBts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", privateKeyPath, err)
	}

	if certPath == "" {
		return signer, nil
	}

	certBts, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey(certBts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", certPath, err)
	}
	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return nil, fmt.Errorf("%s is not an ssh certificate", certPath)
	}

	return ssh.NewCertSigner(cert, signer)
}

// authMethods collects the key file signer and the agent's signers. The
// returned connection to the agent, if any, must be closed by the caller.
func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, net.Conn, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		signer, err := keySigner(cfg.KeyFile, cfg.CertFile)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	var agentConn net.Conn
	if sock := os.Getenv("SSH_AUTH_SOCK"); cfg.UseAgent && sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			common.Logger.WithError(err).Warn("ssh agent not reachable")
		} else {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, nil, common.NewTaskError("no ssh authentication available: set ssh.key_file or start an ssh agent")
	}
	return methods, agentConn, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.KnownHosts == "" {
		common.Logger.WithField("host", cfg.Host).Debug("host key not verified, ssh.known_hosts is not set")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", cfg.KnownHosts, err)
	}
	return callback, nil
}

// Dial connects to the server described by cfg.
func Dial(ctx context.Context, cfg SSHConfig) (*SSHExecutor, error) {
	auth, agentConn, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	closeAgent := func() {
		if agentConn != nil {
			agentConn.Close()
		}
	}

	callback, err := hostKeyCallback(cfg)
	if err != nil {
		closeAgent()
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: callback,
		Timeout:         cfg.Timeout,
	}

	address := cfg.Address()
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		closeAgent()
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		closeAgent()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", address, err)
	}

	common.Logger.WithFields(map[string]interface{}{"host": cfg.Host, "user": cfg.User}).Debug("ssh connected")
	return &SSHExecutor{
		client:    ssh.NewClient(c, chans, reqs),
		host:      cfg.Host,
		agentConn: agentConn,
	}, nil
}

func (e *SSHExecutor) Name() string { return "ssh" }

func (e *SSHExecutor) Host() string { return e.host }

func (e *SSHExecutor) Close() error {
	if e.agentConn != nil {
		e.agentConn.Close()
	}
	return e.client.Close()
}

// session runs line in a new session. stdin and stdout may be nil; when
// stdout is nil the combined output is returned in the result.
func (e *SSHExecutor) session(ctx context.Context, line string, stdin io.Reader, stdout io.Writer) (*executor.Result, error) {
	result := &executor.Result{
		StartTime: time.Now(),
		ExitCode:  -1,
		Metadata:  map[string]interface{}{"command": line, "host": e.host},
	}
	done := func() *executor.Result {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result
	}

	session, err := e.client.NewSession()
	if err != nil {
		result.Status = executor.StatusFailed
		return done(), fmt.Errorf("failed to create session on %s: %w", e.host, err)
	}
	defer session.Close()

	session.Stdin = stdin
	stop := context.AfterFunc(ctx, func() {
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
	})
	defer stop()

	// CombinedOutput serialises the stdout and stderr copies into one buffer.
	if stdout != nil {
		var stderr bytes.Buffer
		session.Stdout = stdout
		session.Stderr = &stderr
		err = session.Run(line)
		result.Output = stderr.String()
	} else {
		var output []byte
		output, err = session.CombinedOutput(line)
		result.Output = string(output)
	}
	if err == nil {
		result.Status = executor.StatusCompleted
		result.ExitCode = 0
		return done(), nil
	}

	result.Status = executor.StatusFailed
	if ctx.Err() != nil {
		result.Status = executor.StatusCancelled
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
	}
	return done(), &executor.ExecutionError{
		Message:  fmt.Sprintf("command failed on %s: %s: %v: %s", e.host, line, err, result.Output),
		Code:     executor.CodeCommand,
		ExitCode: result.ExitCode,
		Output:   result.Output,
	}
}

// Run executes cmd on the server.
func (e *SSHExecutor) Run(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	if cmd.Line == "" {
		return nil, &executor.ExecutionError{Message: "empty command", Code: executor.CodeInvalid}
	}
	line := executor.BuildLine(cmd)
	result, err := e.session(ctx, line, nil, nil)
	if result != nil {
		common.Logger.WithFields(common.CommandFields(e.host, cmd.Line, result.ExitCode, result.Duration)).Debug("ssh run")
	}
	return result, err
}

// Put streams localPath into remotePath. With Sudo the file is written to
// /tmp first and moved into place as root.
func (e *SSHExecutor) Put(ctx context.Context, localPath, remotePath string, opts executor.PutOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	target := remotePath
	if opts.Sudo {
		target = "/tmp/deploy-" + uuid.NewString()
	}
	if _, err := e.session(ctx, uploadLine(target, opts), f, nil); err != nil {
		return &executor.ExecutionError{
			Message: fmt.Sprintf("failed to upload %s to %s:%s: %v", localPath, e.host, remotePath, err),
			Code:    executor.CodeTransfer,
		}
	}
	if opts.Sudo {
		mv := executor.Command{Line: "mv " + executor.Quote(target) + " " + executor.QuotePath(remotePath), Sudo: true}
		if _, err := e.Run(ctx, mv); err != nil {
			return err
		}
	}
	if opts.Mode != 0 {
		chmod := executor.Command{
			Line: fmt.Sprintf("chmod %o %s", opts.Mode.Perm(), executor.QuotePath(remotePath)),
			Sudo: opts.Sudo,
		}
		if _, err := e.Run(ctx, chmod); err != nil {
			return err
		}
	}
	common.Logger.WithFields(map[string]interface{}{"host": e.host, "remote": remotePath}).Infof("uploaded %s", localPath)
	return nil
}

// uploadLine writes stdin to target. Staged sudo copies and files meant to
// be private are created with umask 077, so they are never readable by
// other users on the server.
func uploadLine(target string, opts executor.PutOptions) string {
	line := "cat > " + executor.QuotePath(target)
	if opts.Sudo || (opts.Mode != 0 && opts.Mode.Perm()&0o077 == 0) {
		return "umask 077 && " + line
	}
	return line
}

// Get copies remotePath into localPath, creating parent folders. The file
// only appears under its final name once the copy is complete.
func (e *SSHExecutor) Get(ctx context.Context, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create folder for %s: %w", localPath, err)
	}
	tmp := localPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	counter := &WriteCounter{}
	_, err = e.session(ctx, "cat "+executor.QuotePath(remotePath), nil, io.MultiWriter(out, counter))
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return &executor.ExecutionError{
			Message: fmt.Sprintf("failed to download %s:%s: %v", e.host, remotePath, err),
			Code:    executor.CodeTransfer,
		}
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	if err := os.Rename(tmp, localPath); err != nil {
		return err
	}
	counter.Done(localPath)
	return nil
}
