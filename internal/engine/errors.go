package engine

import "errors"

// Error taxonomy sentinels. Executors and the engine wrap these with
// fmt.Errorf("...: %w", ...) so callers can recover the kind via errors.Is.
var (
	// ErrConfig marks a failure discoverable before any node runs: a
	// missing credential, an invalid cron expression, a missing or
	// duplicated Scheduler node.
	ErrConfig = errors.New("config error")

	// ErrTransientIntegration marks a retryable downstream failure
	// (network error, 5xx response) from an executor's external call.
	ErrTransientIntegration = errors.New("transient integration error")

	// ErrUnrecoverableNode marks a deterministic node failure that a
	// retry cannot fix (bad template, type mismatch).
	ErrUnrecoverableNode = errors.New("unrecoverable node error")

	// ErrDependencyStall marks a node whose readiness gate never
	// cleared within the re-enqueue retry budget.
	ErrDependencyStall = errors.New("dependency stall")

	// ErrCycle marks a non-loop cycle detected during pre-flight
	// validation.
	ErrCycle = errors.New("cycle error")

	// ErrWatchdogTimeout marks a run cancelled by the scheduler's
	// per-run watchdog.
	ErrWatchdogTimeout = errors.New("watchdog timeout")

	// ErrUnsupportedCategory marks a node whose category has no
	// registered executor.
	ErrUnsupportedCategory = errors.New("unsupported category")

	// ErrNoSources marks a workflow definition with no node lacking
	// incoming edges (nothing to start from).
	ErrNoSources = errors.New("no source nodes")
)
