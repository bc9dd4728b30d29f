package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/docetl-project/docetl/internal/errs"
)

// WorkerFlag is the hidden argv[1] a self-re-exec child process is
// started with; cmd/docetl checks for it before the cobra command tree
// is built and, if present, dispatches straight to RunChildWorker.
const WorkerFlag = "--internal-script-worker"

const (
	// DefaultDeadline bounds how long a script may run before SIGTERM.
	DefaultDeadline = 30 * time.Second
	// killGrace is how long a terminated child gets before SIGKILL.
	killGrace = 2 * time.Second
	// DefaultMemoryLimitBytes is the RLIMIT_AS ceiling applied by the
	// child before it evaluates any script source.
	DefaultMemoryLimitBytes = 100 * 1024 * 1024
)

// payload is the JSON message written to the child's stdin.
type payload struct {
	Source string         `json:"source"`
	Input  map[string]any `json:"input"`
}

// Sandbox runs validated scripts in an isolated child OS process.
type Sandbox struct {
	Deadline         time.Duration
	MemoryLimitBytes int64
}

// NewSandbox builds a Sandbox with the default deadline and memory cap.
func NewSandbox() *Sandbox {
	return &Sandbox{Deadline: DefaultDeadline, MemoryLimitBytes: DefaultMemoryLimitBytes}
}

// Run evaluates source against input in a freshly spawned child
// process, enforcing the sandbox's deadline and memory cap.
func (s *Sandbox) Run(ctx context.Context, source string, input map[string]any) (any, error) {
	deadline := s.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resultR, resultW, err := os.Pipe()
	if err != nil {
		return nil, errs.New(errs.KindIOFailure, "creating result pipe", err)
	}
	defer resultR.Close()

	errR, errW, err := os.Pipe()
	if err != nil {
		return nil, errs.New(errs.KindIOFailure, "creating error pipe", err)
	}
	defer errR.Close()

	body, err := json.Marshal(payload{Source: source, Input: input})
	if err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "marshaling script payload", err)
	}

	// A plain exec.Command, not exec.CommandContext: CommandContext ties
	// cancellation to an immediate Kill, which would short-circuit the
	// SIGTERM-then-grace-period-then-SIGKILL escalation below.
	cmd := exec.Command(os.Args[0], WorkerFlag)
	cmd.Stdin = bytes.NewReader(body)
	cmd.ExtraFiles = []*os.File{resultW, errW}
	cmd.Env = append(os.Environ(), fmt.Sprintf("DOCETL_SCRIPT_MEMLIMIT=%d", s.memoryLimit()))

	if startErr := cmd.Start(); startErr != nil {
		resultW.Close()
		errW.Close()
		return nil, errs.New(errs.KindScriptExecutionErr, "starting script worker", startErr)
	}
	resultW.Close()
	errW.Close()

	resultCh := make(chan []byte, 1)
	errCh := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(resultR)
		resultCh <- b
	}()
	go func() {
		b, _ := io.ReadAll(errR)
		errCh <- b
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case <-runCtx.Done():
		terminate(cmd, waitCh)
		return nil, errs.New(errs.KindScriptTimeout, fmt.Sprintf("script exceeded deadline of %s", deadline), runCtx.Err())
	case waitErr := <-waitCh:
		errBytes := <-errCh
		resultBytes := <-resultCh
		if len(errBytes) > 0 {
			return nil, errs.New(errs.KindScriptExecutionErr, string(errBytes), waitErr)
		}
		if waitErr != nil {
			return nil, errs.New(errs.KindScriptExecutionErr, "script worker exited abnormally", waitErr)
		}
		var result any
		if len(resultBytes) > 0 {
			if jsonErr := json.Unmarshal(resultBytes, &result); jsonErr != nil {
				return nil, errs.New(errs.KindScriptExecutionErr, "decoding script result", jsonErr)
			}
		}
		return result, nil
	}
}

func (s *Sandbox) memoryLimit() int64 {
	if s.MemoryLimitBytes <= 0 {
		return DefaultMemoryLimitBytes
	}
	return s.MemoryLimitBytes
}

// terminate sends SIGTERM and, if the process identified by waitCh
// hasn't exited within killGrace, escalates to SIGKILL. waitCh is the
// same channel Run's goroutine delivers cmd.Wait()'s result on, so the
// process is only ever waited on once.
func terminate(cmd *exec.Cmd, waitCh <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		<-waitCh
	}
}
