package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/martinemde/conductor/jobengine"
	"github.com/martinemde/conductor/modelstream"
)

// Tool pairs a tool schema with its executor.
type Tool struct {
	Definition modelstream.ToolDefinition
	Run        func(ctx context.Context, args json.RawMessage, ws *Workspace) (string, error)
}

// Dispatcher resolves tool-call requests to concrete operations. The tool
// set is closed at construction: an unrecognized name is a distinguishable
// failure, never a runtime fallthrough.
type Dispatcher struct {
	tools            map[string]Tool
	defaultTimeoutMs int
	maxTimeoutMs     int
	httpClient       *http.Client
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCommandTimeouts sets the default and maximum shell command timeouts
// in milliseconds.
func WithCommandTimeouts(defaultMs, maxMs int) Option {
	return func(d *Dispatcher) {
		d.defaultTimeoutMs = defaultMs
		d.maxTimeoutMs = maxMs
	}
}

// WithHTTPClient overrides the client used by the fetch_url tool.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.httpClient = c
	}
}

// NewDispatcher creates a Dispatcher with the full built-in tool set:
// shell, read_file, write_file, edit_file, grep, glob, fetch_url.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:            make(map[string]Tool),
		defaultTimeoutMs: 10000,  // 10 seconds
		maxTimeoutMs:     600000, // 10 minutes
		httpClient:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.register(readFileTool())
	d.register(writeFileTool())
	d.register(editFileTool())
	d.register(shellTool(d.defaultTimeoutMs, d.maxTimeoutMs))
	d.register(grepTool())
	d.register(globTool())
	d.register(fetchURLTool(d.httpClient))

	return d
}

func (d *Dispatcher) register(t Tool) {
	d.tools[t.Definition.Name] = t
}

// Definitions returns the tool schemas for the model request, in stable
// name order.
func (d *Dispatcher) Definitions() []modelstream.ToolDefinition {
	defs := make([]modelstream.ToolDefinition, 0, len(d.tools))
	for _, t := range d.tools {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the registered tool names in stable order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute resolves and runs one tool call against workingDirectory. An
// unknown tool name fails with jobengine.ErrUnknownTool; a path escaping
// the working directory fails with jobengine.ErrSandboxViolation.
func (d *Dispatcher) Execute(ctx context.Context, name string, args json.RawMessage, workingDirectory string) (string, error) {
	t, ok := d.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", jobengine.ErrUnknownTool, name)
	}

	ws, err := NewWorkspace(workingDirectory)
	if err != nil {
		return "", err
	}
	return t.Run(ctx, args, ws)
}
