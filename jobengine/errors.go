package jobengine

import "errors"

var (
	// ErrNotFound is returned for status, stream, and cancel operations on
	// an unknown job identifier.
	ErrNotFound = errors.New("job not found")

	// ErrUnknownCommand is returned by an InstructionSource when no command
	// with the requested name exists.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownTool is returned (wrapped) by a ToolDispatcher for a tool
	// name outside its registered set. Fatal to the job: it indicates a
	// model/tool-schema mismatch, not an operational error.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrSandboxViolation is returned (wrapped) by a ToolDispatcher when a
	// tool call would operate outside the job's working directory. The
	// operation is refused and the job fails.
	ErrSandboxViolation = errors.New("sandbox violation")
)

// FailureReason classifies why a job ended in the Failed state. It is
// recorded on the job snapshot and on the job_failed transcript event so
// consumers can distinguish failure causes without internal logs.
type FailureReason string

const (
	ReasonUnknownCommand   FailureReason = "unknown_command"
	ReasonUnknownTool      FailureReason = "unknown_tool"
	ReasonSandboxViolation FailureReason = "sandbox_violation"
	ReasonBackendFailure   FailureReason = "backend_failure"
	ReasonBudgetExceeded   FailureReason = "budget_exceeded"
)
