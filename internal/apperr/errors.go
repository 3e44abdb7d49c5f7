// Package apperr defines the typed error kinds shared across the
// deliberation core (spec §7). Each kind is a sentinel wrapped with
// fmt.Errorf("...: %w", err) at the call site, so callers can test with
// errors.Is while still getting a descriptive message.
package apperr

import "errors"

var (
	// ErrDuplicateTool is returned by the tool registry when a name is
	// already registered.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrSchemaViolation is returned when tool arguments fail schema
	// validation (missing required field, unknown field, or a value that
	// cannot be coerced to the declared JSON type).
	ErrSchemaViolation = errors.New("schema violation")

	// ErrLLMUnavailable is returned by the LLM client when a request
	// ultimately fails after exhausting retries.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrAlreadyHasPosition is returned by the paper-trader ledger when an
	// open is attempted while a position already exists.
	ErrAlreadyHasPosition = errors.New("already has position")

	// ErrPreconditionFailed marks an execution-phase action the engine
	// could not carry out given the current position context (e.g.
	// add_long with no remaining headroom).
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrCancelled marks a session or cycle that ended via cancellation
	// rather than completion or error.
	ErrCancelled = errors.New("cancelled")

	// ErrInternal marks an assertion/invariant violation. The owning
	// session moves to its ERROR terminal state; the process continues.
	ErrInternal = errors.New("internal error")

	// ErrTransientRemote marks a remote failure (LLM 503, tool-service
	// 5xx, network timeout) that is expected to be retried by the caller.
	ErrTransientRemote = errors.New("transient remote error")

	// ErrPermanentRemote marks a 4xx-class remote failure (bad schema,
	// invalid credentials) that retrying will not fix.
	ErrPermanentRemote = errors.New("permanent remote error")
)
