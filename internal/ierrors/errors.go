// Package ierrors declares the sentinel errors shared across the engine,
// grouped by the area that raises them. Call sites wrap these with
// github.com/pkg/errors as they cross layer boundaries so both errors.Is
// identity checks and human-readable context survive.
package ierrors

import "github.com/pkg/errors"

// manifest errors
var (
	ErrManifestMissingJobType = errors.New("manifest: job_type is required")
	ErrManifestInvalidJSON    = errors.New("manifest: invalid JSON encoding")
	ErrManifestUnknownJobType = errors.New("manifest: unknown job_type")
)

// schedule errors
var (
	ErrScheduleIntervalAmbiguous = errors.New("schedule: exactly one of interval_hours/interval_minutes must be set")
)

// orchestrator errors
var (
	ErrJobAlreadyRunning  = errors.New("orchestrator: job already has an active driver")
	ErrJobNotFound        = errors.New("orchestrator: folder job not found")
	ErrWorkerLaunchFailed = errors.New("orchestrator: worker process failed to launch")
)

// worker / imap errors
var (
	ErrIMAPConnectionFailed = errors.New("imap: connection failed")
	ErrIMAPMoveFailed       = errors.New("imap: move failed")
	ErrCredentialMissing    = errors.New("credential: not found")
)

// classifier errors
var (
	ErrClassifierParseError  = errors.New("classifier: could not parse response")
	ErrClassifierRateLimited = errors.New("classifier: rate limited")
	ErrClassifierOverloaded  = errors.New("classifier: overloaded")
	ErrClassifierAPIError    = errors.New("classifier: request failed")
)

// persistence errors
var (
	ErrNotFound = errors.New("persistence: record not found")
)
