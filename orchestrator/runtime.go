// Package orchestrator drives a single FolderJob's batch loop: spawn a
// worker for one batch, wait for it to exit, decide whether to continue,
// pause, or finish, and repeat. Grounded on original_source/core/orchestrator.py.
package orchestrator

import (
	"context"
)

// LaunchSpec is everything a WorkerRuntime needs to start one worker batch.
type LaunchSpec struct {
	// Name is the container/process name, e.g. "inbox-worker-42-7".
	Name string
	// Manifest is the encoded MANIFEST environment variable payload.
	Manifest string
	// DBPath is the DB_PATH environment variable payload.
	DBPath string
}

// Handle is a live or exited worker instance.
type Handle interface {
	// ID is the runtime-assigned identifier (PID for ProcessRuntime,
	// container id for a container runtime), persisted as
	// models.WorkerContainer.ContainerID so a later process can re-Attach.
	ID() string
	Name() string
	// Poll reports whether the worker has exited and, if so, its exit
	// code. A non-nil err means the poll itself failed, not that the
	// worker exited non-zero.
	Poll(ctx context.Context) (exited bool, exitCode int, err error)
	// Remove reaps an exited worker (removing a stopped container,
	// releasing the process handle). Safe to call on an already-gone
	// worker.
	Remove(ctx context.Context) error
}

// WorkerRuntime supervises worker instances. The orchestrator's batch loop
// is written once against this port; ProcessRuntime is the required
// implementation (spawns a sibling OS process per §6's worker entrypoint
// contract). A container-based implementation is left for a host that
// offers container isolation — see DESIGN.md.
type WorkerRuntime interface {
	// Launch starts a new worker instance.
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
	// Attach re-acquires a handle to a worker started by a previous
	// process incarnation, identified by the id persisted in
	// models.WorkerContainer.ContainerID. ok is false if the worker is
	// no longer live.
	Attach(ctx context.Context, id, name string) (handle Handle, ok bool)
}
