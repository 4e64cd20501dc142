package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/pkg/errors"

	"github.com/cleanr/inboxengine/internal/ierrors"
)

// ProcessRuntime launches workers as sibling OS processes: the same binary
// invoked with a "worker" argument, manifest and db path passed through the
// MANIFEST/DB_PATH environment variables per the worker entrypoint contract.
// This is the runtime every deployment has available, unlike a container
// runtime which needs a host that offers container isolation.
type ProcessRuntime struct {
	// BinaryPath is the executable to re-invoke; defaults to the running
	// binary (os.Executable()) when empty.
	BinaryPath string
	// Args is the full argument list passed to the binary; defaults to
	// []string{"worker"} when nil.
	Args []string
}

func (pr *ProcessRuntime) binary() (string, error) {
	if pr.BinaryPath != "" {
		return pr.BinaryPath, nil
	}
	return os.Executable()
}

func (pr *ProcessRuntime) args() []string {
	if pr.Args != nil {
		return pr.Args
	}
	return []string{"worker"}
}

func (pr *ProcessRuntime) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	bin, err := pr.binary()
	if err != nil {
		return nil, errors.Wrap(ierrors.ErrWorkerLaunchFailed, err.Error())
	}

	cmd := exec.Command(bin, pr.args()...)
	cmd.Env = append(os.Environ(),
		"MANIFEST="+spec.Manifest,
		"DB_PATH="+spec.DBPath,
	)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(ierrors.ErrWorkerLaunchFailed, err.Error())
	}

	h := &processHandle{name: spec.Name, pid: cmd.Process.Pid, cmd: cmd, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

// Attach re-derives a handle from a persisted PID after a process restart.
// The original *exec.Cmd is gone, so this handle can only observe liveness
// (via signal 0), not retrieve the real exit code — adequate for boot
// recovery, which only waits for an orphan to disappear before reaping it.
func (pr *ProcessRuntime) Attach(ctx context.Context, id, name string) (Handle, bool) {
	pid, err := strconv.Atoi(id)
	if err != nil {
		return nil, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, false
	}
	if !processAlive(proc) {
		return nil, false
	}
	return &attachedHandle{name: name, pid: pid, proc: proc}, true
}

type processHandle struct {
	name string
	pid  int
	cmd  *exec.Cmd

	mu       sync.Mutex
	done     chan struct{}
	exitCode int
	waitErr  error
}

func (h *processHandle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	if err == nil {
		h.exitCode = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		h.exitCode = exitErr.ExitCode()
	} else {
		h.exitCode = -1
	}
	h.mu.Unlock()
	close(h.done)
}

func (h *processHandle) ID() string   { return strconv.Itoa(h.pid) }
func (h *processHandle) Name() string { return h.name }

func (h *processHandle) Poll(ctx context.Context) (bool, int, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return true, h.exitCode, nil
	default:
		return false, 0, nil
	}
}

func (h *processHandle) Remove(ctx context.Context) error {
	return nil
}

// attachedHandle tracks a process this runtime did not start itself (found
// again via Attach after a restart). It cannot Wait() on a non-child
// process, so it polls liveness with signal 0 instead.
type attachedHandle struct {
	name string
	pid  int
	proc *os.Process
}

func (h *attachedHandle) ID() string   { return strconv.Itoa(h.pid) }
func (h *attachedHandle) Name() string { return h.name }

func (h *attachedHandle) Poll(ctx context.Context) (bool, int, error) {
	if processAlive(h.proc) {
		return false, 0, nil
	}
	return true, 0, nil
}

func (h *attachedHandle) Remove(ctx context.Context) error {
	return nil
}

func processAlive(proc *os.Process) bool {
	err := proc.Signal(syscall.Signal(0))
	return err == nil
}
