package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// CLIConfig configures the subprocess provider: a local model CLI invoked per
// generation call.
type CLIConfig struct {
	Command string   // Binary name, e.g. "modelctl"
	Args    []string // Fixed args prepended to every invocation
	Models  ModelCatalog
}

// CLIProvider invokes a local CLI binary per call: the prompt goes to stdin,
// the document body comes back on stdout. It is the offline counterpart of
// HTTPProvider.
type CLIProvider struct {
	cfg CLIConfig
}

// NewCLIProvider creates a subprocess provider.
func NewCLIProvider(cfg CLIConfig) *CLIProvider {
	return &CLIProvider{cfg: cfg}
}

// Generate implements Provider.
func (p *CLIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	args := append([]string{}, p.cfg.Args...)
	args = append(args, "--model", p.cfg.Models.Resolve(req.Tier))
	if req.System != "" {
		args = append(args, "--system", req.System)
	}
	if req.Schema != nil {
		args = append(args, "--json")
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command, args...)
	// Own process group so cancellation kills the whole subprocess tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = strings.NewReader(req.Prompt)

	stdout, stderr, err := runCommand(cmd)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		if IsRateLimited(fmt.Errorf("%s", msg)) {
			return Response{}, &RateLimitedError{Message: msg}
		}
		return Response{}, &ProviderError{Message: msg, Err: err}
	}

	return Response{Text: string(stdout)}, nil
}

// runCommand starts cmd and drains stdout and stderr concurrently before
// waiting. Draining first prevents a deadlock when output exceeds the pipe
// buffer.
func runCommand(cmd *exec.Cmd) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting command: %w", err)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), waitErr
}
