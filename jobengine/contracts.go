package jobengine

import (
	"context"
	"encoding/json"

	"github.com/martinemde/conductor/modelstream"
)

// InstructionSource resolves a command name to its instruction text. The
// engine treats the text as opaque; it becomes the system context for the
// job's conversation. Implementations return ErrUnknownCommand (possibly
// wrapped) for names they do not know.
type InstructionSource interface {
	CommandInstructions(name string) (string, error)
}

// ToolDispatcher executes tool-call requests against a working directory
// and advertises the callable tool schemas. Execute returns the tool output
// on success. The error, when non-nil, is classified by the engine: an
// unknown-tool or sandbox-violation failure is fatal to the job, anything
// else is fed back to the model as a tool error.
//
// The engine calls Execute strictly sequentially within one job and never
// cancels an execution already in flight.
type ToolDispatcher interface {
	Execute(ctx context.Context, name string, args json.RawMessage, workingDirectory string) (string, error)
	Definitions() []modelstream.ToolDefinition
}
